package payment

import (
	"errors"
	"fmt"

	"github.com/richardliu001/payment-ledger/internal/model"
)

const (
	MsgUnauthorised     = "Unauthorised payment transaction with provider"
	MsgLivemodeMismatch = "Livemode mismatch"
	MsgNotImplemented   = "Not implemented"
	MsgInvalidRefund    = "Invalid refund"
)

var (
	ErrWrongProvider    = errors.New("transaction belongs to another payment provider")
	ErrLivemodeMismatch = errors.New("transaction livemode does not match provider livemode")
	ErrUnknownProvider  = errors.New("unknown payment provider")
	ErrInvalidRefund    = errors.New("refund amount exceeds the refundable balance")
)

// AuthorisationMessage maps a gate failure to the message reported to callers.
func AuthorisationMessage(err error) string {
	if errors.Is(err, ErrLivemodeMismatch) {
		return MsgLivemodeMismatch
	}
	return MsgUnauthorised
}

// MismatchError is raised when a customer-initiated operation hits a transaction
// the acting provider may not touch. No operator is present to read a failed
// response, so it carries everything needed to investigate.
type MismatchError struct {
	Err         error
	Transaction *model.Transaction
	Order       Orderable
	Provider    Provider
	Response    *Response
}

func (e *MismatchError) Error() string {
	var (
		txID       uint64
		txLivemode bool
		txProvider string
		orderKey   string
		provider   string
		pLivemode  bool
	)
	if e.Transaction != nil {
		txID, txLivemode, txProvider = e.Transaction.ID, e.Transaction.Livemode, e.Transaction.PaymentProvider
	}
	if e.Order != nil {
		orderKey = e.Order.Key()
	}
	if e.Provider != nil {
		provider, pLivemode = e.Provider.Name(), e.Provider.IsLivemode()
	}
	return fmt.Sprintf("%v: transaction=%d transaction_livemode=%t transaction_provider=%s order=%s provider=%s provider_livemode=%t",
		e.Err, txID, txLivemode, txProvider, orderKey, provider, pLivemode)
}

func (e *MismatchError) Unwrap() error { return e.Err }
