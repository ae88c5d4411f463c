package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/repo"
	"github.com/richardliu001/payment-ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recorder struct {
	evts []model.TransactionsTotaled
}

func (r *recorder) TransactionsTotaled(_ context.Context, evt model.TransactionsTotaled) {
	r.evts = append(r.evts, evt)
}

func newTestService(t *testing.T) (*LedgerService, *recorder, context.Context) {
	repository := repo.NewRepository(testutil.NewDB(t), nil, nil, testutil.NewLogger(t))
	svc := NewLedgerService(repository, testutil.NewLogger(t))
	rec := &recorder{}
	svc.Subscribe(rec)
	return svc, rec, context.Background()
}

func paid(orderable string, amount int64) *model.Transaction {
	return &model.Transaction{
		TenantID: "1", OrderableID: orderable, PaymentProvider: "offline",
		TransactionFamily: model.FamilyPayment, Status: model.StatusSuccess,
		LocalStatus: model.LocalStatusComplete, Success: true, Amount: amount,
	}
}

func TestLedgerService_SaveNotifiesOnce(t *testing.T) {
	svc, rec, ctx := newTestService(t)

	row := paid("o1", 1000)
	require.NoError(t, svc.Save(ctx, row))
	require.Len(t, rec.evts, 1)
	assert.Equal(t, "o1", rec.evts[0].OrderableID)
	assert.Equal(t, int64(1000), rec.evts[0].TotalPaid)
	assert.Same(t, row, rec.evts[0].Transaction)

	row.AmountRefunded = -400
	require.NoError(t, svc.Save(ctx, row))
	require.Len(t, rec.evts, 2)
	assert.Equal(t, int64(600), rec.evts[1].TotalPaid)

	events, err := svc.Repo().PollOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, model.EventTransactionsTotaled, events[0].EventType)
}

func TestLedgerService_RollbackDoesNotNotify(t *testing.T) {
	svc, rec, ctx := newTestService(t)
	boom := errors.New("boom")

	err := svc.Atomic(ctx, func(tx *Tx) error {
		if err := tx.Save(paid("o1", 1000)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rec.evts)

	total, err := svc.TotalPaid(ctx, "1", "o1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	events, err := svc.Repo().PollOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLedgerService_SaveRejectsBadSigns(t *testing.T) {
	svc, rec, ctx := newTestService(t)

	row := paid("o1", 1000)
	row.AmountRefunded = 5
	assert.ErrorIs(t, svc.Save(ctx, row), model.ErrPositiveRefunded)
	assert.Empty(t, rec.evts)
}

func TestLedgerService_TotalPaidIgnoresOrder(t *testing.T) {
	amounts := []int64{300, 200, 500}
	rows := func() []*model.Transaction {
		refund := &model.Transaction{TenantID: "1", OrderableID: "o1", PaymentProvider: "offline",
			TransactionFamily: model.FamilyRefund, Status: model.StatusSuccess, LocalStatus: model.LocalStatusComplete,
			Success: true, Refund: true, DisplayOnly: true, AmountRefunded: -100}
		out := []*model.Transaction{refund}
		for _, a := range amounts {
			out = append(out, paid("o1", a))
		}
		return out
	}

	forward, _, ctx := newTestService(t)
	for _, r := range rows() {
		require.NoError(t, forward.Save(ctx, r))
	}
	backward, _, _ := newTestService(t)
	rs := rows()
	for i := len(rs) - 1; i >= 0; i-- {
		require.NoError(t, backward.Save(ctx, rs[i]))
	}

	a, err := forward.TotalPaid(ctx, "1", "o1", false)
	require.NoError(t, err)
	b, err := backward.TotalPaid(ctx, "1", "o1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), a)
	assert.Equal(t, a, b)
}

func TestLedgerService_TotalPaidServesCacheHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	repository := repo.NewRepository(testutil.NewDB(t), rdb, nil, testutil.NewLogger(t))
	svc := NewLedgerService(repository, testutil.NewLogger(t))

	mock.ExpectHMGet("total_paid:1:o1:false", "gen", "total").SetVal([]interface{}{"2", "750"})

	total, err := svc.TotalPaid(context.Background(), "1", "o1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(750), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// genCache wraps a repository with an in-memory total-paid cache that follows
// the same generation rules as the Redis one. With pause set, the next
// database read of the total blocks until resume is closed.
type genCache struct {
	repo.RepositoryInterface

	mu     sync.Mutex
	gens   map[string]int64
	totals map[string]int64
	reads  int

	pause  atomic.Bool
	paused chan struct{}
	resume chan struct{}
}

func newGenCache(r repo.RepositoryInterface) *genCache {
	return &genCache{
		RepositoryInterface: r,
		gens:                map[string]int64{},
		totals:              map[string]int64{},
		paused:              make(chan struct{}),
		resume:              make(chan struct{}),
	}
}

func cacheKey(tenantID, orderableID string, livemode bool) string {
	return fmt.Sprintf("%s:%s:%t", tenantID, orderableID, livemode)
}

func (c *genCache) TotalPaid(ctx context.Context, tx *gorm.DB, tenantID, orderableID string, livemode bool) (int64, error) {
	total, err := c.RepositoryInterface.TotalPaid(ctx, tx, tenantID, orderableID, livemode)
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	if c.pause.CompareAndSwap(true, false) {
		close(c.paused)
		<-c.resume
	}
	return total, err
}

func (c *genCache) GetCachedTotalPaid(_ context.Context, tenantID, orderableID string, livemode bool) (int64, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(tenantID, orderableID, livemode)
	total, ok := c.totals[k]
	if !ok {
		return 0, c.gens[k], redis.Nil
	}
	return total, c.gens[k], nil
}

func (c *genCache) CacheTotalPaid(_ context.Context, tenantID, orderableID string, livemode bool, gen, total int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(tenantID, orderableID, livemode)
	if c.gens[k] != gen {
		return false, nil
	}
	c.totals[k] = total
	return true, nil
}

func (c *genCache) InvalidateTotalPaid(_ context.Context, tenantID, orderableID string, livemode bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(tenantID, orderableID, livemode)
	c.gens[k]++
	delete(c.totals, k)
	return nil
}

func TestLedgerService_TotalPaidFillsCacheOnce(t *testing.T) {
	log := testutil.NewLogger(t)
	cache := newGenCache(repo.NewRepository(testutil.NewDB(t), nil, nil, log))
	svc := NewLedgerService(cache, log)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, paid("o1", 400)))
	readsAfterSave := cache.reads

	for i := 0; i < 3; i++ {
		total, err := svc.TotalPaid(ctx, "1", "o1", false)
		require.NoError(t, err)
		assert.Equal(t, int64(400), total)
	}
	assert.Equal(t, readsAfterSave+1, cache.reads)
}

func TestLedgerService_SlowReaderCannotCacheOldTotal(t *testing.T) {
	log := testutil.NewLogger(t)
	cache := newGenCache(repo.NewRepository(testutil.NewDB(t), nil, nil, log))
	svc := NewLedgerService(cache, log)
	ctx := context.Background()

	cache.pause.Store(true)
	done := make(chan int64, 1)
	go func() {
		total, _ := svc.TotalPaid(ctx, "1", "o1", false)
		done <- total
	}()

	<-cache.paused
	require.NoError(t, svc.Save(ctx, paid("o1", 1000)))
	close(cache.resume)
	assert.Equal(t, int64(0), <-done)

	total, err := svc.TotalPaid(ctx, "1", "o1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total)

	cached, _, err := cache.GetCachedTotalPaid(ctx, "1", "o1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cached)
}

func TestLedgerService_History(t *testing.T) {
	svc, _, ctx := newTestService(t)
	require.NoError(t, svc.Save(ctx, paid("o1", 100)))
	require.NoError(t, svc.Save(ctx, paid("o2", 100)))
	require.NoError(t, svc.Save(ctx, paid("o1", 200)))

	hist, err := svc.History(ctx, "1", "o1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(100), hist[0].Amount)

	got, err := svc.GetByPID(ctx, hist[1].PID)
	require.NoError(t, err)
	assert.Equal(t, hist[1].ID, got.ID)
}
