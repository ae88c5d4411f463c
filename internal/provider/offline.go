// Package provider holds the providers that settle outside any card network.
package provider

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"github.com/richardliu001/payment-ledger/internal/service"
	"go.uber.org/zap"
)

const (
	NameOffline  = "offline"
	NameCash     = "cash"
	NamePayLater = "pay_later"
)

// Offline records payments taken by staff outside the system, e.g. a bank
// transfer. Only cashiers may create or charge its transactions.
type Offline struct {
	payment.Base
}

func NewOffline(ledger *service.LedgerService, log *zap.SugaredLogger) *Offline {
	return &Offline{Base: payment.NewBase(NameOffline, ledger, log)}
}

func (p *Offline) Up(ctx context.Context) *payment.Response {
	return payment.NewResponse(payment.TypePing, true, "")
}

func (p *Offline) Down(ctx context.Context) *payment.Response {
	return payment.NewResponse(payment.TypePing, true, "")
}

func (p *Offline) Ping(ctx context.Context) *payment.Response {
	return payment.NewResponse(payment.TypePing, true, "")
}

// Init has nothing to prepare for a customer.
func (p *Offline) Init(ctx context.Context, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*payment.Response, error) {
	return payment.NewResponse(payment.TypeInit, true, ""), nil
}

func (p *Offline) CashierInit(ctx context.Context, cashierID string, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*payment.Response, error) {
	t := p.InitTransaction(amount, suggested)
	if t.TransactionFamilyID == nil {
		familyID := uuid.NewString()
		t.TransactionFamilyID = &familyID
	}
	t.CashierID = &cashierID
	if err := p.Ledger().Save(ctx, t); err != nil {
		return nil, err
	}
	return payment.NewResponse(payment.TypeInit, true, "").WithTransaction(t), nil
}

func (p *Offline) Charge(ctx context.Context, t *model.Transaction, data map[string]interface{}) (*payment.Response, error) {
	resp := payment.NewResponse(payment.TypeCharge, false, "Access denied", "Access to offline payment denied")
	resp.HTTPStatusCode = http.StatusForbidden
	return resp, nil
}

// CashierCharge marks the full orderable amount as received. Without a
// transaction one is created first. Charging a successful transaction again
// changes nothing.
func (p *Offline) CashierCharge(ctx context.Context, cashierID string, t *model.Transaction, data map[string]interface{}) (*payment.Response, error) {
	if t == nil {
		init, err := p.CashierInit(ctx, cashierID, nil, data, nil)
		if err != nil {
			return nil, err
		}
		t = init.Transaction
	}
	if err := p.Authorise(t); err != nil {
		return payment.NewResponse(payment.TypeCharge, false, "", payment.AuthorisationMessage(err)), nil
	}

	err := p.Finalize(ctx, t, func(l *model.Transaction) (bool, error) {
		if l.Success {
			return false, nil
		}
		l.CashierID = &cashierID
		l.Amount = l.OrderableAmount
		l.AmountRefunded = 0
		l.Success = true
		l.Refund = false
		l.Status = model.StatusSuccess
		l.LocalStatus = model.LocalStatusComplete
		if notes, ok := data["notes"].(string); ok {
			l.Notes = notes
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return payment.NewResponse(payment.TypeCharge, true, "").WithTransaction(t), nil
}

func (p *Offline) Refund(ctx context.Context, cashierID string, t *model.Transaction, amount int64, description string) (*payment.Response, error) {
	return p.RecordRefund(ctx, t, payment.RefundEntry{
		CashierID:   cashierID,
		Amount:      amount,
		Description: description,
	}), nil
}

// Cash is offline settlement under its own tag, so till takings stay apart
// from other manual payments.
type Cash struct {
	Offline
}

func NewCash(ledger *service.LedgerService, log *zap.SugaredLogger) *Cash {
	return &Cash{Offline: Offline{Base: payment.NewBase(NameCash, ledger, log)}}
}
