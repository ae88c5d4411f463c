package payment

import "github.com/richardliu001/payment-ledger/internal/model"

// State is a transaction's position in the payment lifecycle.
type State string

const (
	StateNew           State = "NEW"
	StateInit          State = "INIT"
	StateChargePending State = "CHARGE_PENDING"
	StateSuccess       State = "SUCCESS"
	StateFailed        State = "FAILED"
)

// RefundState tracks how much of a successful payment has been given back.
type RefundState string

const (
	RefundNone      RefundState = "NONE"
	RefundPartially RefundState = "PARTIALLY_REFUNDED"
	RefundFully     RefundState = "FULLY_REFUNDED"
)

var failureStatuses = map[string]bool{
	"failed":   true,
	"canceled": true,
}

// StateOf derives the lifecycle state from the stored columns.
func StateOf(t *model.Transaction) State {
	switch {
	case t == nil || t.ID == 0:
		return StateNew
	case t.Success:
		return StateSuccess
	case t.LocalStatus == model.LocalStatusComplete || failureStatuses[t.Status]:
		return StateFailed
	case t.Status == "" || t.Status == model.StatusUnknown:
		return StateInit
	default:
		return StateChargePending
	}
}

func RefundStateOf(t *model.Transaction) RefundState {
	switch {
	case t == nil || t.Refund || t.AmountRefunded == 0:
		return RefundNone
	case t.RefundableAmount() <= 0:
		return RefundFully
	default:
		return RefundPartially
	}
}
