package payment

import "github.com/richardliu001/payment-ledger/internal/model"

// Orderable is the order being paid. The ledger only reads it.
type Orderable interface {
	Key() string
	Amount() int64
	Currency() string
	Customer() *model.CustomerData
	Description() string
}
