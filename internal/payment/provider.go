package payment

import (
	"context"

	"github.com/richardliu001/payment-ledger/internal/model"
)

// Provider is the operation surface every payment provider implements.
// Validation-shaped failures come back inside the Response; the error return
// is reserved for integrity violations and infrastructure failures.
type Provider interface {
	Name() string

	Configure(cfg map[string]string, livemode bool)
	SetLivemode(livemode bool)
	IsLivemode() bool
	Config() map[string]string
	SetTenant(tenantID string)
	Tenant() string
	SetOrder(order Orderable)
	Order() Orderable
	SetCustomerData(cd *model.CustomerData)
	CustomerData() *model.CustomerData
	SetConfigResolver(r ConfigResolver)
	ResolveConfig(ctx context.Context) error

	Up(ctx context.Context) *Response
	Down(ctx context.Context) *Response
	Ping(ctx context.Context) *Response

	Init(ctx context.Context, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*Response, error)
	CashierInit(ctx context.Context, cashierID string, amount *int64, data map[string]interface{}, suggested *model.Transaction) (*Response, error)
	Charge(ctx context.Context, t *model.Transaction, data map[string]interface{}) (*Response, error)
	CashierCharge(ctx context.Context, cashierID string, t *model.Transaction, data map[string]interface{}) (*Response, error)
	Refund(ctx context.Context, cashierID string, t *model.Transaction, amount int64, description string) (*Response, error)
	SyncTransaction(ctx context.Context, t *model.Transaction) (*Response, error)

	// Customer and PaymentMethod return nil when the provider has no vault.
	Customer() CustomerManager
	PaymentMethod(cd model.CustomerData) PaymentMethodManager

	Authorise(t *model.Transaction) error
	ValidateRefund(t *model.Transaction, amount int64) bool
	IsCancelable(t *model.Transaction) bool
	IsRefundable() bool
}

// CustomerManager links local customers to provider-side customers.
type CustomerManager interface {
	Has(ctx context.Context, cd model.CustomerData) (bool, error)
	Get(ctx context.Context, cd model.CustomerData) (*model.ProviderCustomer, error)
	Create(ctx context.Context, cd model.CustomerData, data map[string]interface{}) *Response
	Delete(ctx context.Context, cd model.CustomerData) *Response
}

// PaymentMethodManager manages the saved payment methods of one customer.
type PaymentMethodManager interface {
	Init(ctx context.Context, data map[string]interface{}) *Response
	Save(ctx context.Context, data map[string]interface{}) *Response
	Remove(ctx context.Context, paymentMethodID string) *Response
	// SyncAll refreshes every saved method; false when unsupported.
	SyncAll(ctx context.Context) bool
}

// ConfigResolver looks up a provider's configuration and mode for a tenant.
type ConfigResolver func(ctx context.Context, provider, tenantID string) (map[string]string, bool, error)
