package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier receives the change notification of every committed ledger save.
type Notifier interface {
	TransactionsTotaled(ctx context.Context, evt model.TransactionsTotaled)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt model.TransactionsTotaled)

func (f NotifierFunc) TransactionsTotaled(ctx context.Context, evt model.TransactionsTotaled) {
	f(ctx, evt)
}

// LedgerService glues ledger rules and repository.
type LedgerService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewLedgerService returns LedgerService.
func NewLedgerService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, log: logger}
}

// Subscribe registers an in-process sink for change notifications.
func (s *LedgerService) Subscribe(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Tx is one all-or-nothing unit of ledger work.
type Tx struct {
	ctx   context.Context
	db    *gorm.DB
	repo  repo.RepositoryInterface
	saved []model.TransactionsTotaled
}

// DB exposes the underlying gorm transaction.
func (t *Tx) DB() *gorm.DB { return t.db }

// Lock re-reads a transaction row and holds it until the unit ends.
func (t *Tx) Lock(id uint64) (*model.Transaction, error) {
	return t.repo.GetTransactionForUpdate(t.ctx, t.db, id)
}

// FindByFamily locks the payment row of a provider-side group.
func (t *Tx) FindByFamily(tenantID, provider, familyID string) (*model.Transaction, error) {
	return t.repo.FindByFamily(t.ctx, t.db, tenantID, provider, familyID)
}

// Save inserts or updates row, recomputes the orderable's total paid and
// queues the change notification in the outbox.
func (t *Tx) Save(row *model.Transaction) error {
	if err := row.Validate(); err != nil {
		return err
	}
	if row.ID == 0 {
		if err := t.repo.CreateTransaction(t.ctx, t.db, row); err != nil {
			return err
		}
	} else if err := t.repo.UpdateTransaction(t.ctx, t.db, row); err != nil {
		return err
	}

	total, err := t.repo.TotalPaid(t.ctx, t.db, row.TenantID, row.OrderableID, row.Livemode)
	if err != nil {
		return err
	}
	evt := model.TransactionsTotaled{
		TenantID:       row.TenantID,
		OrderableID:    row.OrderableID,
		Livemode:       row.Livemode,
		TotalPaid:      total,
		TransactionID:  row.ID,
		TransactionPID: row.PID,
		Transaction:    row,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := t.repo.CreateOutboxEvent(t.ctx, t.db, &model.OutboxEvent{
		Aggregate:   model.AggregateOrderable,
		AggregateID: row.OrderableID,
		EventType:   model.EventTransactionsTotaled,
		Payload:     string(payload),
	}); err != nil {
		return err
	}
	t.saved = append(t.saved, evt)
	return nil
}

// Atomic runs fn in one database transaction. Notifications for the rows fn
// saved are delivered only after commit.
func (s *LedgerService) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	var unit *Tx
	err := s.repo.DB(ctx).Transaction(func(db *gorm.DB) error {
		unit = &Tx{ctx: ctx, db: db, repo: s.repo}
		return fn(unit)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, unit.saved)
	return nil
}

// Save persists a single row.
func (s *LedgerService) Save(ctx context.Context, row *model.Transaction) error {
	return s.Atomic(ctx, func(tx *Tx) error { return tx.Save(row) })
}

func (s *LedgerService) afterCommit(ctx context.Context, evts []model.TransactionsTotaled) {
	s.mu.RLock()
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.mu.RUnlock()

	for _, evt := range evts {
		if err := s.repo.InvalidateTotalPaid(ctx, evt.TenantID, evt.OrderableID, evt.Livemode); err != nil {
			s.log.Warnf("invalidate total paid orderable=%s: %v", evt.OrderableID, err)
		}
		for _, n := range notifiers {
			n.TransactionsTotaled(ctx, evt)
		}
	}
}

// TotalPaid returns the orderable's net paid amount, cache first. A miss is
// filled only if no save committed since the cache was read.
func (s *LedgerService) TotalPaid(ctx context.Context, tenantID, orderableID string, livemode bool) (int64, error) {
	total, gen, err := s.repo.GetCachedTotalPaid(ctx, tenantID, orderableID, livemode)
	if err == nil {
		return total, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warnf("read total paid cache orderable=%s: %v", orderableID, err)
		return s.repo.TotalPaid(ctx, s.repo.DB(ctx), tenantID, orderableID, livemode)
	}
	total, err = s.repo.TotalPaid(ctx, s.repo.DB(ctx), tenantID, orderableID, livemode)
	if err != nil {
		return 0, err
	}
	if _, err := s.repo.CacheTotalPaid(ctx, tenantID, orderableID, livemode, gen, total); err != nil {
		s.log.Warn(err)
	}
	return total, nil
}

// History lists every row of an orderable, oldest first.
func (s *LedgerService) History(ctx context.Context, tenantID, orderableID string) ([]model.Transaction, error) {
	return s.repo.ListByOrderable(ctx, s.repo.DB(ctx), tenantID, orderableID)
}

func (s *LedgerService) Get(ctx context.Context, id uint64) (*model.Transaction, error) {
	return s.repo.GetTransaction(ctx, s.repo.DB(ctx), id)
}

func (s *LedgerService) GetByPID(ctx context.Context, pid string) (*model.Transaction, error) {
	return s.repo.GetTransactionByPID(ctx, s.repo.DB(ctx), pid)
}

// FindByFamily returns the payment row of a provider-side group.
func (s *LedgerService) FindByFamily(ctx context.Context, tenantID, provider, familyID string) (*model.Transaction, error) {
	return s.repo.FindByFamily(ctx, s.repo.DB(ctx), tenantID, provider, familyID)
}

// Repo exposes underlying repository (unit tests helper).
func (s *LedgerService) Repo() repo.RepositoryInterface {
	return s.repo
}
