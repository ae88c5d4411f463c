// Package testutil provides database, logger, and order fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/richardliu001/payment-ledger/internal/logger"
	"github.com/richardliu001/payment-ledger/internal/model"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

// NewDB opens a private in-memory SQLite database with every table migrated.
// A single connection keeps the memory database alive and serializes writers.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

// NewLogger returns the production logger or fails the test.
func NewLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	log, err := logger.NewLogger()
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// Order is an in-memory orderable.
type Order struct {
	ID           string
	Total        int64
	CurrencyCode string
	CustomerData *model.CustomerData
	Note         string
}

func (o *Order) Key() string { return o.ID }
func (o *Order) Amount() int64 { return o.Total }
func (o *Order) Currency() string { return o.CurrencyCode }
func (o *Order) Customer() *model.CustomerData { return o.CustomerData }
func (o *Order) Description() string { return o.Note }
