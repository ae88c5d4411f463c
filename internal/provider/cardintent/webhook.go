package cardintent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"github.com/richardliu001/payment-ledger/internal/service"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types handled by WebhookHandler.
const (
	EventIntentSucceeded   = "payment_intent.succeeded"
	EventCustomerDeleted   = "customer.deleted"
	EventMethodAttached    = "payment_method.attached"
	EventMethodDetached    = "payment_method.detached"
	EventMethodUpdated     = "payment_method.updated"
	EventMethodAutoUpdated = "payment_method.automatically_updated"
	metadataTenantKey      = "tenant_id"
)

var (
	ErrUnhandledEvent      = errors.New("unhandled webhook event")
	ErrTransactionNotFound = errors.New("no transaction for payment intent")
	ErrEventLivemode       = errors.New("event livemode does not match tenant configuration")
)

// Event is a verified, parsed webhook delivery.
type Event struct {
	ID       string
	Type     string
	Livemode bool
	// Object is the raw JSON of the event's data object.
	Object json.RawMessage
}

type eventObject struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata"`
	Card     *struct {
		Brand    string `json:"brand"`
		Country  string `json:"country"`
		Last4    string `json:"last4"`
		ExpMonth int    `json:"exp_month"`
		ExpYear  int    `json:"exp_year"`
	} `json:"card"`
}

func (o eventObject) paymentMethod() *GatewayPaymentMethod {
	pm := &GatewayPaymentMethod{ID: o.ID, CustomerID: o.Customer, Type: o.Type}
	if o.Card != nil {
		pm.Brand = o.Card.Brand
		pm.Country = o.Card.Country
		pm.LastFour = o.Card.Last4
		pm.ExpMonth = o.Card.ExpMonth
		pm.ExpYear = o.Card.ExpYear
	}
	return pm
}

// WebhookHandler applies gateway events to the ledger and the vault. Every
// event is recorded first; a replay of an event that was processed before is
// acknowledged without doing anything.
type WebhookHandler struct {
	newProvider   func() *CardIntent
	ledger        *service.LedgerService
	defaultTenant string
	log           *zap.SugaredLogger
}

func NewWebhookHandler(newProvider func() *CardIntent, ledger *service.LedgerService, defaultTenant string, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{newProvider: newProvider, ledger: ledger, defaultTenant: defaultTenant, log: log}
}

func handled(eventType string) bool {
	switch eventType {
	case EventIntentSucceeded, EventCustomerDeleted,
		EventMethodAttached, EventMethodDetached, EventMethodUpdated, EventMethodAutoUpdated:
		return true
	}
	return false
}

func (h *WebhookHandler) Handle(ctx context.Context, evt Event) error {
	if !handled(evt.Type) {
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, evt.Type)
	}
	var obj eventObject
	if err := json.Unmarshal(evt.Object, &obj); err != nil {
		return fmt.Errorf("decode %s object: %w", evt.Type, err)
	}

	r := h.ledger.Repo()
	tenant := h.tenantOf(ctx, evt.Type, obj)
	record := &model.ProviderEvent{
		Provider:    Name,
		EventID:     evt.ID,
		EventType:   evt.Type,
		TenantID:    tenant,
		PayloadJSON: datatypes.JSON(evt.Object),
		ReceivedAt:  time.Now(),
	}
	fresh, err := r.RecordProviderEvent(ctx, r.DB(ctx), record)
	if err != nil {
		return fmt.Errorf("record event %s: %w", evt.ID, err)
	}
	if !fresh {
		seen, err := r.GetProviderEvent(ctx, r.DB(ctx), Name, evt.ID)
		if err != nil {
			return fmt.Errorf("load event %s: %w", evt.ID, err)
		}
		if seen.ProcessedAt != nil {
			h.log.Infof("webhook event %s already processed", evt.ID)
			return nil
		}
		record = seen
	}

	processErr := h.dispatch(ctx, evt, obj, tenant)
	if err := r.FinishProviderEvent(ctx, r.DB(ctx), record.ID, processErr); err != nil {
		h.log.Errorf("finish event %s: %v", evt.ID, err)
	}
	if processErr != nil {
		h.log.Errorf("webhook event %s type=%s tenant=%s: %v", evt.ID, evt.Type, tenant, processErr)
	}
	return processErr
}

// tenantOf reads the tenant from object metadata, else from the stored
// customer or payment method the object refers to.
func (h *WebhookHandler) tenantOf(ctx context.Context, eventType string, obj eventObject) string {
	if t := obj.Metadata[metadataTenantKey]; t != "" {
		return t
	}
	r := h.ledger.Repo()
	switch eventType {
	case EventCustomerDeleted:
		if c, err := r.FindCustomerByProviderID(ctx, r.DB(ctx), Name, obj.ID); err == nil {
			return c.TenantID
		}
	case EventMethodAttached, EventMethodDetached, EventMethodUpdated, EventMethodAutoUpdated:
		if pm, err := r.FindPaymentMethod(ctx, r.DB(ctx), Name, obj.ID); err == nil {
			return pm.TenantID
		}
		if obj.Customer != "" {
			if c, err := r.FindCustomerByProviderID(ctx, r.DB(ctx), Name, obj.Customer); err == nil {
				return c.TenantID
			}
		}
	}
	return h.defaultTenant
}

func (h *WebhookHandler) dispatch(ctx context.Context, evt Event, obj eventObject, tenant string) error {
	p := h.newProvider()
	p.SetTenant(tenant)
	if err := p.ResolveConfig(ctx); err != nil {
		return err
	}
	if p.IsLivemode() != evt.Livemode {
		return ErrEventLivemode
	}

	switch evt.Type {
	case EventIntentSucceeded:
		return h.intentSucceeded(ctx, p, obj.ID)
	case EventCustomerDeleted:
		return h.customerDeleted(ctx, obj.ID)
	case EventMethodDetached:
		return h.methodDetached(ctx, obj.ID)
	default:
		return h.methodChanged(ctx, p, obj)
	}
}

// intentSucceeded charges by retrieval: the intent is read back from the
// gateway rather than trusted from the payload.
func (h *WebhookHandler) intentSucceeded(ctx context.Context, p *CardIntent, intentID string) error {
	t, err := h.ledger.FindByFamily(ctx, p.Tenant(), Name, intentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, intentID)
	}
	if err != nil {
		return err
	}
	if t.Success {
		return nil
	}
	resp, err := p.settle(ctx, payment.TypeCharge, t, true)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("settle intent %s: %s %v", intentID, resp.Message, resp.Errors)
	}
	return nil
}

func (h *WebhookHandler) customerDeleted(ctx context.Context, customerID string) error {
	r := h.ledger.Repo()
	c, err := r.FindCustomerByProviderID(ctx, r.DB(ctx), Name, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.DeleteCustomer(ctx, r.DB(ctx), c.ID)
}

func (h *WebhookHandler) methodDetached(ctx context.Context, paymentMethodID string) error {
	r := h.ledger.Repo()
	pm, err := r.FindPaymentMethod(ctx, r.DB(ctx), Name, paymentMethodID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.DeletePaymentMethod(ctx, r.DB(ctx), pm.ID)
}

func (h *WebhookHandler) methodChanged(ctx context.Context, p *CardIntent, obj eventObject) error {
	if obj.Customer == "" {
		return nil
	}
	r := h.ledger.Repo()
	c, err := r.FindCustomerByProviderID(ctx, r.DB(ctx), Name, obj.Customer)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = p.upsertPaymentMethod(ctx, c, obj.paymentMethod())
	return err
}
