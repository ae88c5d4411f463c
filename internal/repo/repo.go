package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when a transaction row changed since it was read.
var ErrVersionConflict = errors.New("optimistic lock conflict")

const totalPaidTTL = 5 * time.Minute

// RepositoryInterface restricts Repo methods so services can be tested against fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	Migrate(ctx context.Context) error

	GetTransaction(ctx context.Context, tx *gorm.DB, id uint64) (*model.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Transaction, error)
	GetTransactionByPID(ctx context.Context, tx *gorm.DB, pid string) (*model.Transaction, error)
	FindByFamily(ctx context.Context, tx *gorm.DB, tenantID, provider, familyID string) (*model.Transaction, error)
	ListByOrderable(ctx context.Context, tx *gorm.DB, tenantID, orderableID string) ([]model.Transaction, error)
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	UpdateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	TotalPaid(ctx context.Context, tx *gorm.DB, tenantID, orderableID string, livemode bool) (int64, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	GetCachedTotalPaid(ctx context.Context, tenantID, orderableID string, livemode bool) (int64, int64, error)
	CacheTotalPaid(ctx context.Context, tenantID, orderableID string, livemode bool, gen, total int64) (bool, error)
	InvalidateTotalPaid(ctx context.Context, tenantID, orderableID string, livemode bool) error

	RecordProviderEvent(ctx context.Context, tx *gorm.DB, evt *model.ProviderEvent) (bool, error)
	GetProviderEvent(ctx context.Context, tx *gorm.DB, provider, eventID string) (*model.ProviderEvent, error)
	FinishProviderEvent(ctx context.Context, tx *gorm.DB, id uint64, processErr error) error
	ListPendingProviderEvents(ctx context.Context, tx *gorm.DB, provider, eventType string) ([]model.ProviderEvent, error)

	FindCustomer(ctx context.Context, tx *gorm.DB, tenantID, provider string, cd model.CustomerData) (*model.ProviderCustomer, error)
	FindCustomerByProviderID(ctx context.Context, tx *gorm.DB, provider, providerCustomerID string) (*model.ProviderCustomer, error)
	CreateCustomer(ctx context.Context, tx *gorm.DB, c *model.ProviderCustomer) error
	DeleteCustomer(ctx context.Context, tx *gorm.DB, id uint64) error
	FindPaymentMethod(ctx context.Context, tx *gorm.DB, provider, providerPaymentMethodID string) (*model.ProviderPaymentMethod, error)
	SavePaymentMethod(ctx context.Context, tx *gorm.DB, m *model.ProviderPaymentMethod) error
	DeletePaymentMethod(ctx context.Context, tx *gorm.DB, id uint64) error
	ListPaymentMethods(ctx context.Context, tx *gorm.DB, customerID uint64) ([]model.ProviderPaymentMethod, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo. rdb and w may be nil when caching or publishing is not needed.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// Migrate creates or updates every table.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(model.All()...)
}

func (r *Repository) GetTransaction(ctx context.Context, tx *gorm.DB, id uint64) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransactionForUpdate locks the transaction row.
func (r *Repository) GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) GetTransactionByPID(ctx context.Context, tx *gorm.DB, pid string) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).Where("pid = ?", pid).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// FindByFamily locks the payment row of a provider-side group. Refund rows are skipped.
func (r *Repository) FindByFamily(ctx context.Context, tx *gorm.DB, tenantID, provider, familyID string) (*model.Transaction, error) {
	var t model.Transaction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND payment_provider = ? AND transaction_family_id = ? AND refund = ?",
			tenantID, provider, familyID, false).
		Order("id asc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListByOrderable(ctx context.Context, tx *gorm.DB, tenantID, orderableID string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND orderable_id = ?", tenantID, orderableID).
		Order("id asc").
		Find(&txs).Error
	return txs, err
}

// CreateTransaction inserts record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// UpdateTransaction writes every column with optimistic lock on version.
func (r *Repository) UpdateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	oldVersion := t.Version
	t.Version = oldVersion + 1
	res := tx.WithContext(ctx).
		Model(t).
		Where("version = ?", oldVersion).
		Select("*").
		Omit("id", "pid", "created_at").
		Updates(t)
	if res.Error != nil {
		t.Version = oldVersion
		return res.Error
	}
	if res.RowsAffected == 0 {
		t.Version = oldVersion
		return ErrVersionConflict
	}
	return nil
}

// TotalPaid sums amount + amount_refunded over successful, non display-only rows.
func (r *Repository) TotalPaid(ctx context.Context, tx *gorm.DB, tenantID, orderableID string, livemode bool) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount + amount_refunded), 0)").
		Where("tenant_id = ? AND orderable_id = ? AND livemode = ? AND success = ? AND display_only = ?",
			tenantID, orderableID, livemode, true, false).
		Scan(&total).Error
	return total, err
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = ?", false).Order("id").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka, keyed by orderable so one order's totals stay ordered.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	if r.writer == nil {
		return errors.New("kafka writer not configured")
	}
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
			{Key: "outbox_id", Value: []byte(strconv.FormatUint(evt.ID, 10))},
		},
		Time: time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

func totalPaidKey(tenantID, orderableID string, livemode bool) string {
	return fmt.Sprintf("total_paid:%s:%s:%t", tenantID, orderableID, livemode)
}

// The total-paid cache is a hash holding a generation counter and, when
// filled, the total. Writers bump the generation after commit and drop the
// total; a reader only fills the total if the generation it saw before its
// database read is still current.
const (
	fillTotalPaidScript = `if (redis.call('HGET', KEYS[1], 'gen') or '0') ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'total', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1`
	invalidateTotalPaidScript = `redis.call('HINCRBY', KEYS[1], 'gen', 1)
redis.call('HDEL', KEYS[1], 'total')
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1`
)

// GetCachedTotalPaid reads Redis. On a miss it returns redis.Nil together
// with the generation to pass to CacheTotalPaid.
func (r *Repository) GetCachedTotalPaid(ctx context.Context, tenantID, orderableID string, livemode bool) (int64, int64, error) {
	if r.rdb == nil {
		return 0, 0, redis.Nil
	}
	vals, err := r.rdb.HMGet(ctx, totalPaidKey(tenantID, orderableID, livemode), "gen", "total").Result()
	if err != nil {
		return 0, 0, err
	}
	var gen int64
	if s, ok := vals[0].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return 0, 0, err
		}
	}
	s, ok := vals[1].(string)
	if !ok {
		return 0, gen, redis.Nil
	}
	total, err := strconv.ParseInt(s, 10, 64)
	return total, gen, err
}

// CacheTotalPaid stores total if gen is still the current generation. It
// reports whether the value was stored.
func (r *Repository) CacheTotalPaid(ctx context.Context, tenantID, orderableID string, livemode bool, gen, total int64) (bool, error) {
	if r.rdb == nil {
		return false, nil
	}
	n, err := r.rdb.Eval(ctx, fillTotalPaidScript,
		[]string{totalPaidKey(tenantID, orderableID, livemode)},
		strconv.FormatInt(gen, 10), strconv.FormatInt(total, 10), strconv.FormatInt(totalPaidTTL.Milliseconds(), 10),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InvalidateTotalPaid starts a new generation and drops the cached total.
// Call it after the write that changed the total has committed.
func (r *Repository) InvalidateTotalPaid(ctx context.Context, tenantID, orderableID string, livemode bool) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Eval(ctx, invalidateTotalPaidScript,
		[]string{totalPaidKey(tenantID, orderableID, livemode)},
		strconv.FormatInt(totalPaidTTL.Milliseconds(), 10),
	).Err()
}

// RecordProviderEvent inserts a webhook event; false means it was seen before.
func (r *Repository) RecordProviderEvent(ctx context.Context, tx *gorm.DB, evt *model.ProviderEvent) (bool, error) {
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(evt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) GetProviderEvent(ctx context.Context, tx *gorm.DB, provider, eventID string) (*model.ProviderEvent, error) {
	var evt model.ProviderEvent
	err := tx.WithContext(ctx).Where("provider = ? AND event_id = ?", provider, eventID).First(&evt).Error
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

// FinishProviderEvent stamps processed_at or stores the processing error.
func (r *Repository) FinishProviderEvent(ctx context.Context, tx *gorm.DB, id uint64, processErr error) error {
	upd := map[string]interface{}{}
	if processErr != nil {
		msg := processErr.Error()
		if len(msg) > 250 {
			msg = msg[:250]
		}
		upd["process_error"] = msg
	} else {
		now := time.Now()
		upd["processed_at"] = &now
		upd["process_error"] = nil
	}
	return tx.WithContext(ctx).Model(&model.ProviderEvent{}).Where("id = ?", id).Updates(upd).Error
}

// ListPendingProviderEvents returns events of a type that were never processed, oldest first.
func (r *Repository) ListPendingProviderEvents(ctx context.Context, tx *gorm.DB, provider, eventType string) ([]model.ProviderEvent, error) {
	var evts []model.ProviderEvent
	err := tx.WithContext(ctx).
		Where("provider = ? AND event_type = ? AND processed_at IS NULL", provider, eventType).
		Order("id").Find(&evts).Error
	return evts, err
}

func (r *Repository) FindCustomer(ctx context.Context, tx *gorm.DB, tenantID, provider string, cd model.CustomerData) (*model.ProviderCustomer, error) {
	var c model.ProviderCustomer
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND payment_provider = ? AND user_type = ? AND user_id = ?",
			tenantID, provider, cd.UserType, cd.UserID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) FindCustomerByProviderID(ctx context.Context, tx *gorm.DB, provider, providerCustomerID string) (*model.ProviderCustomer, error) {
	var c model.ProviderCustomer
	err := tx.WithContext(ctx).
		Where("payment_provider = ? AND payment_provider_customer_id = ?", provider, providerCustomerID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) CreateCustomer(ctx context.Context, tx *gorm.DB, c *model.ProviderCustomer) error {
	return tx.WithContext(ctx).Create(c).Error
}

// DeleteCustomer removes the customer and its payment methods.
func (r *Repository) DeleteCustomer(ctx context.Context, tx *gorm.DB, id uint64) error {
	if err := tx.WithContext(ctx).Where("payment_provider_customer_id = ?", id).
		Delete(&model.ProviderPaymentMethod{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Delete(&model.ProviderCustomer{}, id).Error
}

func (r *Repository) FindPaymentMethod(ctx context.Context, tx *gorm.DB, provider, providerPaymentMethodID string) (*model.ProviderPaymentMethod, error) {
	var m model.ProviderPaymentMethod
	err := tx.WithContext(ctx).
		Where("payment_provider = ? AND payment_provider_payment_method_id = ?", provider, providerPaymentMethodID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SavePaymentMethod inserts or fully updates a payment method.
func (r *Repository) SavePaymentMethod(ctx context.Context, tx *gorm.DB, m *model.ProviderPaymentMethod) error {
	return tx.WithContext(ctx).Save(m).Error
}

func (r *Repository) DeletePaymentMethod(ctx context.Context, tx *gorm.DB, id uint64) error {
	return tx.WithContext(ctx).Delete(&model.ProviderPaymentMethod{}, id).Error
}

func (r *Repository) ListPaymentMethods(ctx context.Context, tx *gorm.DB, customerID uint64) ([]model.ProviderPaymentMethod, error) {
	var ms []model.ProviderPaymentMethod
	err := tx.WithContext(ctx).Where("payment_provider_customer_id = ?", customerID).Order("id").Find(&ms).Error
	return ms, err
}
