package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/service"
)

const DefaultRefundDescription = "duplicate"

// RefundEntry describes one refund to record against a parent transaction.
type RefundEntry struct {
	CashierID   string
	Amount      int64
	Description string
	// FamilyID is the provider-side refund id; a uuid is generated when empty.
	FamilyID string
	// Status is what the provider reported; defaults to success.
	Status string
}

// RecordRefund writes the refund row and the parent's new refunded total as
// one unit. The parent is re-read under a lock and re-validated, so two
// concurrent refunds cannot both pass against the same balance. On success
// parent is replaced by the saved copy; on failure it is left untouched.
// Escrow stays on the parent only.
func (b *Base) RecordRefund(ctx context.Context, parent *model.Transaction, e RefundEntry) *Response {
	resp := NewResponse(TypeRefund, false, "")
	if err := b.Authorise(parent); err != nil {
		return resp.Fail(MsgInvalidRefund, AuthorisationMessage(err))
	}
	if e.Amount <= 0 || !b.ValidateRefund(parent, e.Amount) {
		return resp.Fail(MsgInvalidRefund, "Refund was invalid")
	}
	if e.FamilyID == "" {
		e.FamilyID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.StatusSuccess
	}
	if e.Description == "" {
		e.Description = DefaultRefundDescription
	}

	var row, saved *model.Transaction
	err := b.ledger.Atomic(ctx, func(tx *service.Tx) error {
		locked, err := tx.Lock(parent.ID)
		if err != nil {
			return err
		}
		if err := b.Authorise(locked); err != nil {
			return err
		}
		if !b.ValidateRefund(locked, e.Amount) {
			return ErrInvalidRefund
		}

		parentID := locked.ID
		familyID := e.FamilyID
		row = &model.Transaction{
			TenantID:            locked.TenantID,
			ParentID:            &parentID,
			OrderableID:         locked.OrderableID,
			Currency:            locked.Currency,
			Amount:              0,
			AmountRefunded:      -abs(e.Amount),
			TransactionFamily:   model.FamilyRefund,
			TransactionFamilyID: &familyID,
			Success:             true,
			Refund:              true,
			DisplayOnly:         true,
			Status:              e.Status,
			LocalStatus:         model.LocalStatusComplete,
			Description:         e.Description,
			Livemode:            locked.Livemode,
			PaymentProvider:     locked.PaymentProvider,
			UserType:            locked.UserType,
			UserID:              locked.UserID,
		}
		if e.CashierID != "" {
			cashierID := e.CashierID
			row.CashierID = &cashierID
		}
		if err := tx.Save(row); err != nil {
			return err
		}

		locked.AmountRefunded = -(abs(locked.AmountRefunded) + abs(e.Amount))
		if err := tx.Save(locked); err != nil {
			return err
		}
		saved = locked
		return nil
	})
	if err != nil {
		b.log.Errorf("refund transaction=%d amount=%d: %v", parent.ID, e.Amount, err)
		return resp.Fail(MsgInvalidRefund, err.Error())
	}

	*parent = *saved
	resp.Success = true
	resp.Message = "Refund successful"
	return resp.WithTransaction(row)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
