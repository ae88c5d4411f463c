package payment

import (
	"context"
	"fmt"

	"github.com/richardliu001/payment-ledger/internal/model"
	"go.uber.org/zap"
)

// Options selects and prepares a provider for one request.
type Options struct {
	Provider string
	Tenant   string
	// Config and Livemode are used as given. A nil Config asks the service's
	// resolver for the tenant's configuration instead.
	Config   map[string]string
	Livemode bool
	Order    Orderable
	Customer *model.CustomerData
}

// Service opens provider sessions.
type Service struct {
	registry      *Registry
	resolver      ConfigResolver
	defaultTenant string
	log           *zap.SugaredLogger
}

func NewService(registry *Registry, resolver ConfigResolver, defaultTenant string, log *zap.SugaredLogger) *Service {
	return &Service{registry: registry, resolver: resolver, defaultTenant: defaultTenant, log: log}
}

func (s *Service) Registry() *Registry { return s.registry }

// Open builds the named provider and applies tenant, configuration, order and
// customer context.
func (s *Service) Open(ctx context.Context, opts Options) (*Session, error) {
	p, err := s.registry.New(opts.Provider)
	if err != nil {
		return nil, err
	}
	tenant := opts.Tenant
	if tenant == "" {
		tenant = s.defaultTenant
	}
	p.SetTenant(tenant)
	if s.resolver != nil {
		p.SetConfigResolver(s.resolver)
	}
	if opts.Config == nil && s.resolver != nil {
		if err := p.ResolveConfig(ctx); err != nil {
			return nil, err
		}
	} else {
		p.Configure(opts.Config, opts.Livemode)
	}
	if opts.Order != nil {
		p.SetOrder(opts.Order)
	}
	if opts.Customer != nil {
		p.SetCustomerData(opts.Customer)
	}
	return &Session{provider: p, log: s.log}, nil
}

// Session runs operations against one prepared provider and applies the
// reuse policy and authorization gate in front of it.
type Session struct {
	provider Provider
	log      *zap.SugaredLogger
}

func NewSession(p Provider, log *zap.SugaredLogger) *Session {
	return &Session{provider: p, log: log}
}

func (s *Session) Provider() Provider { return s.provider }

func (s *Session) Ping(ctx context.Context) *Response { return s.provider.Ping(ctx) }

func (s *Session) Up(ctx context.Context) *Response { return s.provider.Up(ctx) }

func (s *Session) Down(ctx context.Context) *Response { return s.provider.Down(ctx) }

func (s *Session) usable(suggested *model.Transaction) *model.Transaction {
	if suggested == nil || !suggested.IsUsableFor(s.provider.Order()) {
		return nil
	}
	return suggested
}

func (s *Session) Init(ctx context.Context, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*Response, error) {
	return s.provider.Init(ctx, amount, data, s.usable(suggested))
}

func (s *Session) CashierInit(ctx context.Context, cashierID string, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*Response, error) {
	return s.provider.CashierInit(ctx, cashierID, amount, data, s.usable(suggested))
}

// Charge is the customer path. A transaction the provider may not touch is an
// integrity violation and comes back as *MismatchError.
func (s *Session) Charge(ctx context.Context, t *model.Transaction, data map[string]interface{}) (*Response, error) {
	if t == nil {
		return missingTransaction(TypeCharge), nil
	}
	if err := s.provider.Authorise(t); err != nil {
		resp := NewResponse(TypeCharge, false, "", AuthorisationMessage(err)).WithTransaction(t)
		merr := &MismatchError{Err: err, Transaction: t, Order: s.provider.Order(), Provider: s.provider, Response: resp}
		s.log.Errorw("customer charge rejected",
			"error", merr.Error(),
			"transaction_id", t.ID,
			"provider", s.provider.Name(),
			"errors", resp.Errors,
		)
		return resp, merr
	}
	return s.provider.Charge(ctx, t, data)
}

func (s *Session) CashierCharge(ctx context.Context, cashierID string, t *model.Transaction, data map[string]interface{}) (*Response, error) {
	if t != nil {
		if err := s.provider.Authorise(t); err != nil {
			return NewResponse(TypeCharge, false, "", AuthorisationMessage(err)), nil
		}
	}
	return s.provider.CashierCharge(ctx, cashierID, t, data)
}

// Refund gives back amount, or the remaining balance when amount is nil.
func (s *Session) Refund(ctx context.Context, cashierID string, t *model.Transaction, amount *int64, description string) (*Response, error) {
	if t == nil {
		return missingTransaction(TypeRefund), nil
	}
	if err := s.provider.Authorise(t); err != nil {
		return NewResponse(TypeRefund, false, "", AuthorisationMessage(err)), nil
	}
	value := t.RefundableAmount()
	if amount != nil {
		value = *amount
	}
	if value <= 0 || !s.provider.ValidateRefund(t, value) {
		return NewResponse(TypeRefund, false,
			"Invalid refund. Please check that there is enough fund available",
			MsgInvalidRefund, "Please check that there is enough fund available"), nil
	}
	if description == "" {
		description = DefaultRefundDescription
	}
	return s.provider.Refund(ctx, cashierID, t, value, description)
}

func (s *Session) Sync(ctx context.Context, t *model.Transaction) (*Response, error) {
	if t == nil {
		return missingTransaction(TypeSync), nil
	}
	if err := s.provider.Authorise(t); err != nil {
		return NewResponse(TypeSync, false, "", AuthorisationMessage(err)), nil
	}
	return s.provider.SyncTransaction(ctx, t)
}

func missingTransaction(typ ResponseType) *Response {
	return NewResponse(typ, false, "Transaction not found", "A transaction is required")
}

func (s *Session) Customer() CustomerManager { return s.provider.Customer() }

func (s *Session) PaymentMethod(cd model.CustomerData) PaymentMethodManager {
	return s.provider.PaymentMethod(cd)
}

func (s *Session) IsCancelable(t *model.Transaction) bool { return s.provider.IsCancelable(t) }

func (s *Session) IsRefundable() bool { return s.provider.IsRefundable() }

// String identifies the session in logs.
func (s *Session) String() string {
	return fmt.Sprintf("%s(tenant=%s livemode=%t)", s.provider.Name(), s.provider.Tenant(), s.provider.IsLivemode())
}
