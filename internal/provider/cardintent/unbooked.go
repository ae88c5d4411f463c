package cardintent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"gorm.io/datatypes"
)

// EventRefundUnbooked marks a refund the gateway accepted but the ledger could
// not book. It is stored as a provider event whose process error stays set
// until someone books the refund by hand.
const EventRefundUnbooked = "refund.unbooked"

type unbookedRefund struct {
	TransactionID  uint64 `json:"transaction_id"`
	TransactionPID string `json:"transaction_pid"`
	OrderableID    string `json:"orderable_id"`
	IntentID       string `json:"payment_intent_id"`
	RefundID       string `json:"refund_id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	CashierID      string `json:"cashier_id,omitempty"`
	Description    string `json:"description"`
	Livemode       bool   `json:"livemode"`
}

func (p *CardIntent) recordUnbookedRefund(ctx context.Context, t *model.Transaction, r *RefundResult, e payment.RefundEntry, reasons []string) {
	log := p.Log()
	payload, err := json.Marshal(unbookedRefund{
		TransactionID:  t.ID,
		TransactionPID: t.PID,
		OrderableID:    t.OrderableID,
		IntentID:       *t.TransactionFamilyID,
		RefundID:       r.ID,
		Status:         r.Status,
		Amount:         e.Amount,
		CashierID:      e.CashierID,
		Description:    e.Description,
		Livemode:       t.Livemode,
	})
	if err != nil {
		log.Errorf("encode unbooked refund %s: %v", r.ID, err)
		return
	}

	repo := p.Ledger().Repo()
	evt := &model.ProviderEvent{
		Provider:    Name,
		EventID:     r.ID,
		EventType:   EventRefundUnbooked,
		TenantID:    t.TenantID,
		PayloadJSON: datatypes.JSON(payload),
		ReceivedAt:  time.Now(),
	}
	fresh, err := repo.RecordProviderEvent(ctx, repo.DB(ctx), evt)
	if err != nil {
		log.Errorw("unbooked refund not recorded", "refund", r.ID, "transaction", t.ID, "payload", string(payload), "error", err)
		return
	}
	if !fresh {
		return
	}
	reason := strings.Join(reasons, "; ")
	if reason == "" {
		reason = "refund not booked"
	}
	if err := repo.FinishProviderEvent(ctx, repo.DB(ctx), evt.ID, errors.New(reason)); err != nil {
		log.Errorf("mark unbooked refund %s: %v", r.ID, err)
	}
}
