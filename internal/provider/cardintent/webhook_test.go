package cardintent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intentEvent(t *testing.T, eventID, intentID, tenant string) Event {
	t.Helper()
	obj, err := json.Marshal(map[string]interface{}{
		"id":       intentID,
		"object":   "payment_intent",
		"metadata": map[string]string{"tenant_id": tenant},
	})
	require.NoError(t, err)
	return Event{ID: eventID, Type: EventIntentSucceeded, Object: obj}
}

func newHandler(t *testing.T, f *fixture) *WebhookHandler {
	return NewWebhookHandler(f.factory, f.ledger, "1", testutil.NewLogger(t))
}

func TestWebhook_IntentSucceededIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := newHandler(t, f)
	s := f.open(t, &testutil.Order{ID: "o1", Total: 1000, CurrencyCode: "gbp"})

	init, err := s.Init(ctx, nil, nil, nil)
	require.NoError(t, err)
	intentID := *init.Transaction.TransactionFamilyID
	f.gw.succeed(intentID, 1000)

	evt := intentEvent(t, "evt_1", intentID, "1")
	require.NoError(t, h.Handle(ctx, evt))
	require.NoError(t, h.Handle(ctx, evt))
	assert.Equal(t, 1, f.gw.gets)

	// a different delivery for the same intent changes nothing either
	require.NoError(t, h.Handle(ctx, intentEvent(t, "evt_2", intentID, "1")))

	rows, err := f.ledger.History(ctx, "1", "o1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Success)
	assert.True(t, rows[0].ThroughWebhook)
	assert.Equal(t, int64(1000), rows[0].Amount)

	total, err := f.ledger.TotalPaid(ctx, "1", "o1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total)

	var events int64
	require.NoError(t, f.ledger.Repo().DB(ctx).Model(&model.ProviderEvent{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestWebhook_FailedEventIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := newHandler(t, f)

	evt := intentEvent(t, "evt_1", "pi_unknown", "1")
	assert.ErrorIs(t, h.Handle(ctx, evt), ErrTransactionNotFound)

	r := f.ledger.Repo()
	seen, err := r.GetProviderEvent(ctx, r.DB(ctx), Name, "evt_1")
	require.NoError(t, err)
	assert.Nil(t, seen.ProcessedAt)
	require.NotNil(t, seen.ProcessError)

	// the replay is processed again rather than skipped
	assert.ErrorIs(t, h.Handle(ctx, evt), ErrTransactionNotFound)
}

func TestWebhook_RejectsUnknownTypeAndModeMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := newHandler(t, f)

	err := h.Handle(ctx, Event{ID: "evt_1", Type: "charge.dispute.created", Object: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrUnhandledEvent)

	evt := intentEvent(t, "evt_2", "pi_1", "1")
	evt.Livemode = true
	assert.ErrorIs(t, h.Handle(ctx, evt), ErrEventLivemode)

	assert.Error(t, h.Handle(ctx, intentEvent(t, "evt_3", "pi_1", "missing")))
}

func TestWebhook_VaultEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := newHandler(t, f)
	cd := model.CustomerData{UserType: "user", UserID: "7"}
	s := f.open(t, &testutil.Order{ID: "o1", Total: 100, CustomerData: &cd})

	created := s.Customer().Create(ctx, cd, nil)
	require.True(t, created.Success)
	customerID := created.Customer.PaymentProviderCustomerID

	attached, err := json.Marshal(map[string]interface{}{
		"id":       "pm_9",
		"customer": customerID,
		"type":     "card",
		"card":     map[string]interface{}{"brand": "mastercard", "country": "FR", "last4": "4444", "exp_month": 1, "exp_year": 2031},
	})
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, Event{ID: "evt_a", Type: EventMethodAttached, Object: attached}))

	r := f.ledger.Repo()
	pm, err := r.FindPaymentMethod(ctx, r.DB(ctx), Name, "pm_9")
	require.NoError(t, err)
	assert.Equal(t, "4444", pm.LastFour)
	assert.Equal(t, "mastercard", pm.Brand)
	assert.Equal(t, 2031, pm.ExpiresAtYear)
	assert.Equal(t, "1", pm.TenantID)

	detached := json.RawMessage(`{"id":"pm_9","customer":null}`)
	require.NoError(t, h.Handle(ctx, Event{ID: "evt_d", Type: EventMethodDetached, Object: detached}))
	_, err = r.FindPaymentMethod(ctx, r.DB(ctx), Name, "pm_9")
	assert.Error(t, err)

	deleted := json.RawMessage(`{"id":"` + customerID + `","object":"customer"}`)
	require.NoError(t, h.Handle(ctx, Event{ID: "evt_c", Type: EventCustomerDeleted, Object: deleted}))
	has, err := s.Customer().Has(ctx, cd)
	require.NoError(t, err)
	assert.False(t, has)
}
