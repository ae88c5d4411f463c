package cardintent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"github.com/richardliu001/payment-ledger/internal/service"
	"go.uber.org/zap"
)

const Name = "stripe_intent"

// Configuration keys.
const (
	KeySecret          = "secret_key"
	KeyTestSecret      = "test_secret_key"
	KeyPublishable     = "publishable_key"
	KeyTestPublishable = "test_publishable_key"
	KeyTimeout         = "timeout"
)

const defaultTimeout = 30 * time.Second

var ErrNotConfigured = errors.New("card intent api key is not configured")

// CardIntent settles through payment intents. The customer confirms the
// intent client side; charge and sync read the outcome back from the gateway.
type CardIntent struct {
	payment.Base

	newGateway GatewayFactory
	gw         Gateway
	gwKey      string
}

func New(ledger *service.LedgerService, log *zap.SugaredLogger, gw GatewayFactory) *CardIntent {
	return &CardIntent{Base: payment.NewBase(Name, ledger, log), newGateway: gw}
}

// NewFactory returns a registry factory whose providers resolve tenant
// configuration through resolver.
func NewFactory(ledger *service.LedgerService, log *zap.SugaredLogger, gw GatewayFactory, resolver payment.ConfigResolver) func() *CardIntent {
	return func() *CardIntent {
		p := New(ledger, log, gw)
		p.SetConfigResolver(resolver)
		return p
	}
}

// Register adds the provider built by factory to reg.
func Register(reg *payment.Registry, factory func() *CardIntent) {
	reg.Register(Name, func() payment.Provider { return factory() })
}

func (p *CardIntent) secretKey() string {
	if p.IsLivemode() {
		return p.ConfigValue(KeySecret)
	}
	return p.ConfigValue(KeyTestSecret)
}

func (p *CardIntent) publishableKey() string {
	if p.IsLivemode() {
		return p.ConfigValue(KeyPublishable)
	}
	return p.ConfigValue(KeyTestPublishable)
}

func (p *CardIntent) timeout() time.Duration {
	if d, err := time.ParseDuration(p.ConfigValue(KeyTimeout)); err == nil && d > 0 {
		return d
	}
	return defaultTimeout
}

// gateway is built for the key of the current mode and rebuilt when it changes.
func (p *CardIntent) gateway() (Gateway, error) {
	key := p.secretKey()
	if key == "" {
		return nil, ErrNotConfigured
	}
	if p.gw == nil || p.gwKey != key {
		p.gw = p.newGateway(key, p.timeout())
		p.gwKey = key
	}
	return p.gw, nil
}

func (p *CardIntent) Up(ctx context.Context) *payment.Response {
	return p.Ping(ctx)
}

func (p *CardIntent) Down(ctx context.Context) *payment.Response {
	return payment.NewResponse(payment.TypePing, true, "")
}

func (p *CardIntent) Ping(ctx context.Context) *payment.Response {
	gw, err := p.gateway()
	if err == nil {
		err = gw.Ping(ctx)
	}
	if err != nil {
		return payment.NewResponse(payment.TypePing, false, "Ping failed", err.Error())
	}
	return payment.NewResponse(payment.TypePing, true, "pong")
}

// Init creates or updates the payment intent for the current order and
// persists the init row. The client secret goes back as client-side data.
func (p *CardIntent) Init(ctx context.Context, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*payment.Response, error) {
	resp := payment.NewResponse(payment.TypeInit, false, "")
	gw, err := p.gateway()
	if err != nil {
		return resp.Fail("Payment could not be initialised", err.Error()), nil
	}

	t := p.InitTransaction(amount, suggested)
	params := IntentParams{
		Amount:      t.OrderableAmount,
		Currency:    t.Currency,
		Description: t.Description,
		Metadata: map[string]string{
			"tenant_id":    t.TenantID,
			"orderable_id": t.OrderableID,
		},
	}
	if cd := p.CustomerData(); !cd.IsGuest() {
		c, err := p.ledgerCustomer(ctx, *cd)
		if err != nil {
			return nil, err
		}
		if c != nil {
			params.CustomerID = c.PaymentProviderCustomerID
		}
	}

	var intent *Intent
	if t.TransactionFamilyID != nil && *t.TransactionFamilyID != "" {
		intent, err = gw.UpdateIntent(ctx, *t.TransactionFamilyID, params)
	} else {
		if t.PID != "" {
			params.IdempotencyKey = "init-" + t.PID
		}
		intent, err = gw.CreateIntent(ctx, params)
	}
	if err != nil {
		p.Log().Warnf("init intent orderable=%s: %v", t.OrderableID, err)
		return resp.Fail("Payment could not be initialised", err.Error()), nil
	}

	familyID := intent.ID
	t.TransactionFamilyID = &familyID
	if err := p.Ledger().Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save init transaction: %w", err)
	}

	resp.Success = true
	resp.SetClientSideData("client_secret", intent.ClientSecret)
	resp.SetClientSideData("publishable_key", p.publishableKey())
	return resp.WithTransaction(t), nil
}

func (p *CardIntent) CashierInit(ctx context.Context, cashierID string, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*payment.Response, error) {
	return p.CashierInitVia(ctx, p.Init, cashierID, amount, data, suggested)
}

// Charge reads the intent back and records its outcome.
func (p *CardIntent) Charge(ctx context.Context, t *model.Transaction, data map[string]interface{}) (*payment.Response, error) {
	return p.settle(ctx, payment.TypeCharge, t, false)
}

func (p *CardIntent) CashierCharge(ctx context.Context, cashierID string, t *model.Transaction, data map[string]interface{}) (*payment.Response, error) {
	return p.CashierChargeVia(ctx, p.Charge, cashierID, t, data)
}

func (p *CardIntent) SyncTransaction(ctx context.Context, t *model.Transaction) (*payment.Response, error) {
	return p.settle(ctx, payment.TypeSync, t, false)
}

func (p *CardIntent) IsCancelable(t *model.Transaction) bool {
	return !t.Success
}

func (p *CardIntent) settle(ctx context.Context, typ payment.ResponseType, t *model.Transaction, throughWebhook bool) (*payment.Response, error) {
	resp := payment.NewResponse(typ, false, "")
	if t == nil || t.TransactionFamilyID == nil || *t.TransactionFamilyID == "" {
		return resp.Fail("Payment not found", "Transaction has no payment intent"), nil
	}
	if err := p.Authorise(t); err != nil {
		return resp.Fail("", payment.AuthorisationMessage(err)), nil
	}
	gw, err := p.gateway()
	if err != nil {
		return resp.Fail("Payment could not be retrieved", err.Error()), nil
	}
	intent, err := gw.GetIntent(ctx, *t.TransactionFamilyID)
	if err != nil {
		p.Log().Warnf("retrieve intent %s: %v", *t.TransactionFamilyID, err)
		return resp.Fail("Payment could not be retrieved", err.Error()), nil
	}
	if err := p.applyIntent(ctx, t, intent, throughWebhook); err != nil {
		return nil, err
	}
	resp.WithTransaction(t)
	if !t.Success {
		return resp.Fail("Payment not completed", "Payment intent status: "+intent.Status), nil
	}
	resp.Success = true
	return resp, nil
}

// applyIntent copies the intent's outcome onto the locked row. A row that is
// already successful is left as it is.
func (p *CardIntent) applyIntent(ctx context.Context, t *model.Transaction, intent *Intent, throughWebhook bool) error {
	return p.Finalize(ctx, t, func(l *model.Transaction) (bool, error) {
		if l.Success {
			return false, nil
		}
		if intent.Status != IntentSucceeded {
			if l.Status == intent.Status {
				return false, nil
			}
			l.Status = intent.Status
			if intent.Status == IntentCanceled {
				l.LocalStatus = model.LocalStatusComplete
			}
			return true, nil
		}
		l.Amount = intent.AmountReceived
		l.Success = true
		l.Status = intent.Status
		l.LocalStatus = model.LocalStatusComplete
		l.ThroughWebhook = throughWebhook
		if intent.LatestChargeID != "" {
			childID := intent.LatestChargeID
			l.TransactionChildID = &childID
		}
		l.AddressMatched = intent.AddressMatched
		l.PostcodeMatched = intent.PostcodeMatched
		l.CVCMatched = intent.CVCMatched
		l.ThreeDSecure = intent.ThreeDSecure
		l.CardType = intent.CardBrand
		l.LastFour = intent.LastFour
		return true, nil
	})
}

// Refund returns the money through the gateway, then books it.
func (p *CardIntent) Refund(ctx context.Context, cashierID string, t *model.Transaction, amount int64, description string) (*payment.Response, error) {
	resp := payment.NewResponse(payment.TypeRefund, false, "")
	if t.TransactionFamilyID == nil || *t.TransactionFamilyID == "" {
		return resp.Fail(payment.MsgInvalidRefund, "Transaction has no payment intent"), nil
	}
	if !p.ValidateRefund(t, amount) {
		return resp.Fail(payment.MsgInvalidRefund, "Refund was invalid"), nil
	}
	gw, err := p.gateway()
	if err != nil {
		return resp.Fail("Refund failed", err.Error()), nil
	}
	r, err := gw.Refund(ctx, *t.TransactionFamilyID, amount, description)
	if err != nil {
		return resp.Fail("Refund failed", err.Error()), nil
	}
	entry := payment.RefundEntry{
		CashierID:   cashierID,
		Amount:      amount,
		Description: description,
		FamilyID:    r.ID,
		Status:      r.Status,
	}
	out := p.RecordRefund(ctx, t, entry)
	if !out.Success {
		p.Log().Errorf("refund %s accepted by gateway but not booked on transaction=%d: %v", r.ID, t.ID, out.Errors)
		p.recordUnbookedRefund(ctx, t, r, entry, out.Errors)
	}
	return out, nil
}
