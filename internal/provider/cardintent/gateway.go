// Package cardintent settles card payments through a payment-intent API and
// keeps the provider's customer and payment-method vault in sync.
package cardintent

import (
	"context"
	"time"
)

// Intent statuses the provider reacts to.
const (
	IntentSucceeded      = "succeeded"
	IntentProcessing     = "processing"
	IntentRequiresAction = "requires_action"
	IntentCanceled       = "canceled"
)

// Intent is the gateway's view of one payment attempt.
type Intent struct {
	ID              string
	ClientSecret    string
	Status          string
	Amount          int64
	AmountReceived  int64
	Currency        string
	LatestChargeID  string
	CustomerID      string
	PaymentMethodID string
	Metadata        map[string]string

	AddressMatched  bool
	PostcodeMatched bool
	CVCMatched      bool
	ThreeDSecure    bool
	CardBrand       string
	LastFour        string
}

type IntentParams struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type RefundResult struct {
	ID     string
	Status string
	Amount int64
}

type CustomerParams struct {
	Email    string
	Name     string
	Phone    string
	Metadata map[string]string
}

type GatewayCustomer struct {
	ID    string
	Email string
}

type GatewayPaymentMethod struct {
	ID         string
	CustomerID string
	Type       string
	Brand      string
	Country    string
	LastFour   string
	ExpMonth   int
	ExpYear    int
}

type SetupIntent struct {
	ID           string
	ClientSecret string
}

// Gateway is the outbound surface of the card network.
type Gateway interface {
	Ping(ctx context.Context) error

	CreateIntent(ctx context.Context, p IntentParams) (*Intent, error)
	UpdateIntent(ctx context.Context, id string, p IntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	Refund(ctx context.Context, intentID string, amount int64, reason string) (*RefundResult, error)

	CreateCustomer(ctx context.Context, p CustomerParams) (*GatewayCustomer, error)
	DeleteCustomer(ctx context.Context, id string) error

	CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error)
	GetPaymentMethod(ctx context.Context, id string) (*GatewayPaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, id, customerID string) (*GatewayPaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, id string) error
}

// GatewayFactory builds a gateway for one API key.
type GatewayFactory func(secretKey string, timeout time.Duration) Gateway
