package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/payment-ledger/internal/config"
	"github.com/richardliu001/payment-ledger/internal/logger"
	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"github.com/richardliu001/payment-ledger/internal/provider"
	"github.com/richardliu001/payment-ledger/internal/provider/cardintent"
	"github.com/richardliu001/payment-ledger/internal/repo"
	"github.com/richardliu001/payment-ledger/internal/service"
	httptransport "github.com/richardliu001/payment-ledger/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.New("ledger-server")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	defer kw.Close()

	// 6. repo & ledger
	repository := repo.NewRepository(gdb, rdb, kw, log)
	ledger := service.NewLedgerService(repository, log)

	// 7. providers
	reg := payment.NewRegistry()
	provider.Register(reg, ledger, log)
	cardIntent := cardintent.NewFactory(ledger, log, cardintent.NewStripeGateway, cfg.Resolve)
	cardintent.Register(reg, cardIntent)
	log.Infow("providers registered", "names", reg.Names())

	// 8. gin router
	router := httptransport.NewRouter(httptransport.Deps{
		Payments:         payment.NewService(reg, cfg.Resolve, cfg.Tenancy.DefaultTenant, log),
		Ledger:           ledger,
		Webhooks:         cardintent.NewWebhookHandler(cardIntent, ledger, cfg.Tenancy.DefaultTenant, log),
		WebhookSecret:    cfg.CardIntent.WebhookSecret,
		WebhookTolerance: cfg.CardIntent.Tolerance,
	}, cfg, log)

	// 9. serve until signalled
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Infof("ledger-server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
}
