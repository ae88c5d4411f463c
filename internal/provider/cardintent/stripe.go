package cardintent

import (
	"context"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type stripeGateway struct {
	api *client.API
}

// NewStripeGateway talks to the Stripe API with a per-request timeout.
func NewStripeGateway(secretKey string, timeout time.Duration) Gateway {
	httpClient := &http.Client{Timeout: timeout}
	backend := func(t stripe.SupportedBackend) stripe.Backend {
		return stripe.GetBackendWithConfig(t, &stripe.BackendConfig{HTTPClient: httpClient})
	}
	api := client.New(secretKey, &stripe.Backends{
		API:     backend(stripe.APIBackend),
		Connect: backend(stripe.ConnectBackend),
		Uploads: backend(stripe.UploadsBackend),
	})
	return &stripeGateway{api: api}
}

func (g *stripeGateway) Ping(ctx context.Context) error {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	_, err := g.api.Balance.Get(params)
	return err
}

func intentParams(ctx context.Context, p IntentParams) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	return params
}

func (g *stripeGateway) CreateIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	params := intentParams(ctx, p)
	params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{Enabled: stripe.Bool(true)}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *stripeGateway) UpdateIntent(ctx context.Context, id string, p IntentParams) (*Intent, error) {
	p.IdempotencyKey = ""
	pi, err := g.api.PaymentIntents.Update(id, intentParams(ctx, p))
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *stripeGateway) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         string(pi.Status),
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Metadata:       pi.Metadata,
	}
	if pi.Customer != nil {
		in.CustomerID = pi.Customer.ID
	}
	if pi.PaymentMethod != nil {
		in.PaymentMethodID = pi.PaymentMethod.ID
	}
	ch := pi.LatestCharge
	if ch == nil {
		return in
	}
	in.LatestChargeID = ch.ID
	if ch.PaymentMethodDetails == nil || ch.PaymentMethodDetails.Card == nil {
		return in
	}
	card := ch.PaymentMethodDetails.Card
	in.CardBrand = string(card.Brand)
	in.LastFour = card.Last4
	if c := card.Checks; c != nil {
		in.AddressMatched = string(c.AddressLine1Check) == "pass"
		in.PostcodeMatched = string(c.AddressPostalCodeCheck) == "pass"
		in.CVCMatched = string(c.CVCCheck) == "pass"
	}
	if card.ThreeDSecure != nil {
		in.ThreeDSecure = string(card.ThreeDSecure.Result) == "authenticated"
	}
	return in
}

func (g *stripeGateway) Refund(ctx context.Context, intentID string, amount int64, reason string) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, err
	}
	return &RefundResult{ID: r.ID, Status: string(r.Status), Amount: r.Amount}, nil
}

func (g *stripeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (*GatewayCustomer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.Phone != "" {
		params.Phone = stripe.String(p.Phone)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, err
	}
	return &GatewayCustomer{ID: c.ID, Email: c.Email}, nil
}

func (g *stripeGateway) DeleteCustomer(ctx context.Context, id string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	_, err := g.api.Customers.Del(id, params)
	return err
}

func (g *stripeGateway) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	si, err := g.api.SetupIntents.New(params)
	if err != nil {
		return nil, err
	}
	return &SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func toPaymentMethod(pm *stripe.PaymentMethod) *GatewayPaymentMethod {
	out := &GatewayPaymentMethod{ID: pm.ID, Type: string(pm.Type)}
	if pm.Customer != nil {
		out.CustomerID = pm.Customer.ID
	}
	if c := pm.Card; c != nil {
		out.Brand = string(c.Brand)
		out.Country = c.Country
		out.LastFour = c.Last4
		out.ExpMonth = int(c.ExpMonth)
		out.ExpYear = int(c.ExpYear)
	}
	return out
}

func (g *stripeGateway) GetPaymentMethod(ctx context.Context, id string) (*GatewayPaymentMethod, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	pm, err := g.api.PaymentMethods.Get(id, params)
	if err != nil {
		return nil, err
	}
	return toPaymentMethod(pm), nil
}

func (g *stripeGateway) AttachPaymentMethod(ctx context.Context, id, customerID string) (*GatewayPaymentMethod, error) {
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	pm, err := g.api.PaymentMethods.Attach(id, params)
	if err != nil {
		return nil, err
	}
	return toPaymentMethod(pm), nil
}

func (g *stripeGateway) DetachPaymentMethod(ctx context.Context, id string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	_, err := g.api.PaymentMethods.Detach(id, params)
	return err
}
