package payment

import (
	"context"
	"fmt"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/service"
	"go.uber.org/zap"
)

// Base holds the state every provider shares and the behavior that does not
// depend on the provider's settlement logic. Concrete providers embed it.
type Base struct {
	name     string
	config   map[string]string
	livemode bool
	tenantID string
	order    Orderable
	customer *model.CustomerData
	resolver ConfigResolver

	ledger *service.LedgerService
	log    *zap.SugaredLogger
}

func NewBase(name string, ledger *service.LedgerService, log *zap.SugaredLogger) Base {
	return Base{name: name, config: map[string]string{}, ledger: ledger, log: log}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Ledger() *service.LedgerService { return b.ledger }

func (b *Base) Log() *zap.SugaredLogger { return b.log }

// Configure replaces the configuration and mode.
func (b *Base) Configure(cfg map[string]string, livemode bool) {
	b.config = make(map[string]string, len(cfg))
	for k, v := range cfg {
		b.config[k] = v
	}
	b.livemode = livemode
}

func (b *Base) SetLivemode(livemode bool) { b.livemode = livemode }

func (b *Base) IsLivemode() bool { return b.livemode }

func (b *Base) Config() map[string]string { return b.config }

// ConfigValue returns a single key, empty when unset.
func (b *Base) ConfigValue(key string) string { return b.config[key] }

// StaticConfig lists keys that cannot be changed at runtime.
func (b *Base) StaticConfig() []string { return nil }

func (b *Base) SetTenant(tenantID string) { b.tenantID = tenantID }

func (b *Base) Tenant() string { return b.tenantID }

func (b *Base) SetOrder(order Orderable) { b.order = order }

func (b *Base) Order() Orderable { return b.order }

func (b *Base) SetCustomerData(cd *model.CustomerData) { b.customer = cd }

// CustomerData is the explicit customer, else the order's.
func (b *Base) CustomerData() *model.CustomerData {
	if b.customer != nil {
		return b.customer
	}
	if b.order != nil {
		return b.order.Customer()
	}
	return nil
}

func (b *Base) SetConfigResolver(r ConfigResolver) { b.resolver = r }

// ResolveConfig applies the resolver's output for the current tenant.
// Without a resolver the current configuration stays.
func (b *Base) ResolveConfig(ctx context.Context) error {
	if b.resolver == nil {
		return nil
	}
	cfg, livemode, err := b.resolver(ctx, b.name, b.tenantID)
	if err != nil {
		return fmt.Errorf("resolve %s config for tenant %s: %w", b.name, b.tenantID, err)
	}
	b.Configure(cfg, livemode)
	return nil
}

func (b *Base) IsOwnTransaction(t *model.Transaction) bool {
	return t.IsForPaymentProvider(b.name)
}

func (b *Base) HasSameLivemode(t *model.Transaction) bool {
	return t.IsLivemode() == b.livemode
}

// Authorise checks ownership first, then mode.
func (b *Base) Authorise(t *model.Transaction) error {
	if !b.IsOwnTransaction(t) {
		return ErrWrongProvider
	}
	if !b.HasSameLivemode(t) {
		return ErrLivemodeMismatch
	}
	return nil
}

func (b *Base) ValidateRefund(t *model.Transaction, amount int64) bool {
	return t.IsValidRefundAmount(amount) && b.IsOwnTransaction(t)
}

func (b *Base) IsCancelable(t *model.Transaction) bool { return true }

func (b *Base) IsRefundable() bool { return true }

func (b *Base) SyncTransaction(ctx context.Context, t *model.Transaction) (*Response, error) {
	return NewResponse(TypeRetrieve, false, MsgNotImplemented, "Sync is not implemented"), nil
}

func (b *Base) Customer() CustomerManager { return nil }

func (b *Base) PaymentMethod(cd model.CustomerData) PaymentMethodManager { return nil }

// PopulateTransaction fills t from the current order, customer and mode.
// orderableAmount overrides the order's amount when set.
func (b *Base) PopulateTransaction(t *model.Transaction, orderableAmount *int64) *model.Transaction {
	t.TenantID = b.tenantID
	t.PaymentProvider = b.name
	t.Livemode = b.livemode
	t.LocalStatus = model.LocalStatusInit
	t.TransactionFamily = model.FamilyPayment
	t.Success = false
	t.Status = model.StatusUnknown
	if b.order != nil {
		t.OrderableID = b.order.Key()
		t.OrderableAmount = b.order.Amount()
		t.Currency = b.order.Currency()
		t.Description = b.order.Description()
	}
	if orderableAmount != nil {
		t.OrderableAmount = *orderableAmount
	}
	if cd := b.CustomerData(); cd != nil && !cd.IsGuest() {
		userType, userID := cd.UserType, cd.UserID
		t.UserType, t.UserID = &userType, &userID
	} else {
		t.UserType, t.UserID = nil, nil
	}
	return t
}

// InitTransaction overwrites suggested in place when it is usable for the
// current order, otherwise starts a new row. Nothing is persisted.
func (b *Base) InitTransaction(amount *int64, suggested *model.Transaction) *model.Transaction {
	if suggested != nil && suggested.IsUsableFor(b.order) {
		return b.PopulateTransaction(suggested, amount)
	}
	return b.PopulateTransaction(&model.Transaction{}, amount)
}

// CashierInitVia runs init, stamps the cashier on the resulting transaction
// and persists it.
func (b *Base) CashierInitVia(ctx context.Context, init InitFunc, cashierID string, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*Response, error) {
	resp, err := init(ctx, amount, data, suggested)
	if err != nil || resp == nil || resp.Transaction == nil {
		return resp, err
	}
	t := resp.Transaction
	t.CashierID = &cashierID
	if err := b.ledger.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save cashier init transaction: %w", err)
	}
	return resp, nil
}

// CashierChargeVia stamps the cashier on t and delegates to charge. The
// stamp carries over into Finalize's locked copy.
func (b *Base) CashierChargeVia(ctx context.Context, charge ChargeFunc, cashierID string, t *model.Transaction, data map[string]interface{}) (*Response, error) {
	if t != nil {
		t.CashierID = &cashierID
	}
	return charge(ctx, t, data)
}

type (
	InitFunc   func(ctx context.Context, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*Response, error)
	ChargeFunc func(ctx context.Context, t *model.Transaction, data map[string]interface{}) (*Response, error)
)

// Finalize re-reads t under a row lock, lets apply mutate the locked copy and
// saves it in the same unit. apply reporting no change skips the save. On
// success t is replaced by the saved row. A cashier stamped on t by the caller
// is copied onto the locked row.
func (b *Base) Finalize(ctx context.Context, t *model.Transaction, apply func(locked *model.Transaction) (bool, error)) error {
	var out *model.Transaction
	err := b.ledger.Atomic(ctx, func(tx *service.Tx) error {
		locked := t
		if t.ID != 0 {
			l, err := tx.Lock(t.ID)
			if err != nil {
				return err
			}
			locked = l
		} else {
			cp := *t
			locked = &cp
		}
		if t.CashierID != nil {
			locked.CashierID = t.CashierID
		}
		changed, err := apply(locked)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.Save(locked); err != nil {
				return err
			}
		}
		out = locked
		return nil
	})
	if err != nil {
		return err
	}
	*t = *out
	return nil
}
