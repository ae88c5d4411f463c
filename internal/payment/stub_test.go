package payment

import (
	"context"
	"testing"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/repo"
	"github.com/richardliu001/payment-ledger/internal/service"
	"github.com/richardliu001/payment-ledger/internal/testutil"
	"gorm.io/gorm"
)

// stubProvider settles every charge immediately at the orderable amount.
type stubProvider struct {
	Base
}

func newLedger(t *testing.T) (*service.LedgerService, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	log := testutil.NewLogger(t)
	return service.NewLedgerService(repo.NewRepository(db, nil, nil, log), log), db
}

func newStub(t *testing.T, ledger *service.LedgerService) *stubProvider {
	return &stubProvider{Base: NewBase("stub", ledger, testutil.NewLogger(t))}
}

func (p *stubProvider) Up(ctx context.Context) *Response { return NewResponse(TypePing, true, "up") }
func (p *stubProvider) Down(ctx context.Context) *Response { return NewResponse(TypePing, true, "down") }
func (p *stubProvider) Ping(ctx context.Context) *Response { return NewResponse(TypePing, true, "pong") }

func (p *stubProvider) Init(ctx context.Context, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*Response, error) {
	t := p.InitTransaction(amount, suggested)
	if err := p.Ledger().Save(ctx, t); err != nil {
		return nil, err
	}
	return NewResponse(TypeInit, true, "").WithTransaction(t), nil
}

func (p *stubProvider) CashierInit(ctx context.Context, cashierID string, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*Response, error) {
	return p.CashierInitVia(ctx, p.Init, cashierID, amount, data, suggested)
}

func (p *stubProvider) Charge(ctx context.Context, t *model.Transaction, data map[string]interface{}) (*Response, error) {
	err := p.Finalize(ctx, t, func(l *model.Transaction) (bool, error) {
		l.Amount = l.OrderableAmount
		l.Success = true
		l.Status = model.StatusSuccess
		l.LocalStatus = model.LocalStatusComplete
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return NewResponse(TypeCharge, true, "").WithTransaction(t), nil
}

func (p *stubProvider) CashierCharge(ctx context.Context, cashierID string, t *model.Transaction, data map[string]interface{}) (*Response, error) {
	return p.CashierChargeVia(ctx, p.Charge, cashierID, t, data)
}

func (p *stubProvider) Refund(ctx context.Context, cashierID string, t *model.Transaction, amount int64, description string) (*Response, error) {
	return p.RecordRefund(ctx, t, RefundEntry{CashierID: cashierID, Amount: amount, Description: description}), nil
}
