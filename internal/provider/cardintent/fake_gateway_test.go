package cardintent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeGateway keeps intents, customers and payment methods in memory.
type fakeGateway struct {
	mu sync.Mutex

	keys      []string
	seq       int
	intents   map[string]*Intent
	params    map[string]IntentParams
	refunds   []RefundResult
	refundErr error
	customers map[string]*GatewayCustomer
	methods   map[string]*GatewayPaymentMethod
	gets      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents:   map[string]*Intent{},
		params:    map[string]IntentParams{},
		customers: map[string]*GatewayCustomer{},
		methods:   map[string]*GatewayPaymentMethod{},
	}
}

func (g *fakeGateway) factory() GatewayFactory {
	return func(secretKey string, timeout time.Duration) Gateway {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.keys = append(g.keys, secretKey)
		return g
	}
}

func (g *fakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

// succeed marks an intent as paid with a card that passed every check.
func (g *fakeGateway) succeed(id string, received int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in := g.intents[id]
	in.Status = IntentSucceeded
	in.AmountReceived = received
	in.LatestChargeID = "ch_" + id
	in.CVCMatched = true
	in.PostcodeMatched = true
	in.CardBrand = "visa"
	in.LastFour = "4242"
}

func (g *fakeGateway) setStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[id].Status = status
}

func (g *fakeGateway) Ping(ctx context.Context) error { return nil }

func (g *fakeGateway) CreateIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID("pi")
	in := &Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method",
		Amount: p.Amount, Currency: p.Currency, CustomerID: p.CustomerID, Metadata: p.Metadata}
	g.intents[id] = in
	g.params[id] = p
	cp := *in
	return &cp, nil
}

func (g *fakeGateway) UpdateIntent(ctx context.Context, id string, p IntentParams) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[id]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	in.Amount = p.Amount
	g.params[id] = p
	cp := *in
	return &cp, nil
}

func (g *fakeGateway) GetIntent(ctx context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets++
	in, ok := g.intents[id]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	cp := *in
	return &cp, nil
}

func (g *fakeGateway) Refund(ctx context.Context, intentID string, amount int64, reason string) (*RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	r := RefundResult{ID: g.nextID("re"), Status: "succeeded", Amount: amount}
	g.refunds = append(g.refunds, r)
	return &r, nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (*GatewayCustomer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := &GatewayCustomer{ID: g.nextID("cus"), Email: p.Email}
	g.customers[c.ID] = c
	return c, nil
}

func (g *fakeGateway) DeleteCustomer(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.customers, id)
	return nil
}

func (g *fakeGateway) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID("seti")
	return &SetupIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) GetPaymentMethod(ctx context.Context, id string) (*GatewayPaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pm, ok := g.methods[id]
	if !ok {
		return nil, errors.New("no such payment_method")
	}
	cp := *pm
	return &cp, nil
}

func (g *fakeGateway) AttachPaymentMethod(ctx context.Context, id, customerID string) (*GatewayPaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pm, ok := g.methods[id]
	if !ok {
		pm = &GatewayPaymentMethod{ID: id, Type: "card", Brand: "visa", Country: "GB", LastFour: "4242", ExpMonth: 12, ExpYear: 2030}
		g.methods[id] = pm
	}
	pm.CustomerID = customerID
	cp := *pm
	return &cp, nil
}

func (g *fakeGateway) DetachPaymentMethod(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pm, ok := g.methods[id]; ok {
		pm.CustomerID = ""
	}
	return nil
}
