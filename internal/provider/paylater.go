package provider

import (
	"context"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"github.com/richardliu001/payment-ledger/internal/service"
	"go.uber.org/zap"
)

// PayLater lets an order proceed unpaid. No operation touches the ledger.
type PayLater struct {
	payment.Base
}

func NewPayLater(ledger *service.LedgerService, log *zap.SugaredLogger) *PayLater {
	return &PayLater{Base: payment.NewBase(NamePayLater, ledger, log)}
}

func (p *PayLater) Up(ctx context.Context) *payment.Response {
	return payment.NewResponse(payment.TypePing, true, "")
}

func (p *PayLater) Down(ctx context.Context) *payment.Response {
	return payment.NewResponse(payment.TypePing, true, "")
}

func (p *PayLater) Ping(ctx context.Context) *payment.Response {
	return payment.NewResponse(payment.TypePing, true, "")
}

func (p *PayLater) Init(ctx context.Context, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*payment.Response, error) {
	return payment.NewResponse(payment.TypeInit, true, ""), nil
}

func (p *PayLater) CashierInit(ctx context.Context, cashierID string, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*payment.Response, error) {
	return payment.NewResponse(payment.TypeInit, true, ""), nil
}

func (p *PayLater) Charge(ctx context.Context, t *model.Transaction, data map[string]interface{}) (*payment.Response, error) {
	return payment.NewResponse(payment.TypeCharge, true, "Pay later"), nil
}

func (p *PayLater) CashierCharge(ctx context.Context, cashierID string, t *model.Transaction, data map[string]interface{}) (*payment.Response, error) {
	return payment.NewResponse(payment.TypeCharge, true, "Pay later"), nil
}

func (p *PayLater) Refund(ctx context.Context, cashierID string, t *model.Transaction, amount int64, description string) (*payment.Response, error) {
	return payment.NewResponse(payment.TypeRefund, true, ""), nil
}
