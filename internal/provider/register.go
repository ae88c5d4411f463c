package provider

import (
	"github.com/richardliu001/payment-ledger/internal/payment"
	"github.com/richardliu001/payment-ledger/internal/service"
	"go.uber.org/zap"
)

// Register adds the offline, cash and pay-later providers to reg.
func Register(reg *payment.Registry, ledger *service.LedgerService, log *zap.SugaredLogger) {
	reg.Register(NameOffline, func() payment.Provider { return NewOffline(ledger, log) })
	reg.Register(NameCash, func() payment.Provider { return NewCash(ledger, log) })
	reg.Register(NamePayLater, func() payment.Provider { return NewPayLater(ledger, log) })
}
