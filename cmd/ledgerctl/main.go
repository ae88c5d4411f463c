package main

import (
	"fmt"
	"os"

	"github.com/richardliu001/payment-ledger/internal/config"
	"github.com/richardliu001/payment-ledger/internal/logger"
	"github.com/richardliu001/payment-ledger/internal/repo"
	"github.com/richardliu001/payment-ledger/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "ledgerctl",
		Short:   "Inspect and maintain the payment ledger",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "Path to config file")

	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(totalPaidCmd(&configPath))
	rootCmd.AddCommand(historyCmd(&configPath))
	rootCmd.AddCommand(showCmd(&configPath))
	rootCmd.AddCommand(unbookedRefundsCmd(&configPath))
	rootCmd.AddCommand(providersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every database-backed command needs.
type env struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	repo   *repo.Repository
	ledger *service.LedgerService
}

func openEnv(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New("ledgerctl")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	r := repo.NewRepository(gdb, nil, nil, log)
	return &env{cfg: cfg, log: log, repo: r, ledger: service.NewLedgerService(r, log)}, nil
}
