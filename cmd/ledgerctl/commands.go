package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/richardliu001/payment-ledger/internal/payment"
	"github.com/richardliu001/payment-ledger/internal/provider"
	"github.com/richardliu001/payment-ledger/internal/provider/cardintent"
	"github.com/spf13/cobra"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			if err := e.repo.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("Migrations applied")
			return nil
		},
	}
}

func totalPaidCmd(configPath *string) *cobra.Command {
	var (
		tenant string
		live   bool
	)
	cmd := &cobra.Command{
		Use:   "total-paid [orderable]",
		Short: "Print the net amount paid for an orderable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			if tenant == "" {
				tenant = e.cfg.Tenancy.DefaultTenant
			}
			total, err := e.repo.TotalPaid(cmd.Context(), e.repo.DB(cmd.Context()), tenant, args[0], live)
			if err != nil {
				return err
			}
			fmt.Println(total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant id (default tenant when empty)")
	cmd.Flags().BoolVar(&live, "live", false, "Sum live mode transactions")
	return cmd
}

func historyCmd(configPath *string) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "history [orderable]",
		Short: "List every transaction of an orderable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			if tenant == "" {
				tenant = e.cfg.Tenancy.DefaultTenant
			}
			rows, err := e.ledger.History(cmd.Context(), tenant, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tPROVIDER\tAMOUNT\tREFUNDED\tSTATE\tREFUND STATE\tLIVE")
			for i := range rows {
				t := &rows[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
					t.PID, t.PaymentProvider,
					payment.FormatAmount(t.Amount, t.Currency),
					payment.FormatAmount(t.AmountRefunded, t.Currency),
					payment.StateOf(t), payment.RefundStateOf(t), t.Livemode)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant id (default tenant when empty)")
	return cmd
}

func showCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show [pid]",
		Short: "Print one transaction as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			t, err := e.ledger.GetByPID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("transaction %s: %w", args[0], err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the payment providers this build supports",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			reg := payment.NewRegistry()
			provider.Register(reg, nil, nil)
			cardintent.Register(reg, func() *cardintent.CardIntent { return cardintent.New(nil, nil, nil) })
			for _, name := range reg.Names() {
				fmt.Println(name)
			}
		},
	}
}

func unbookedRefundsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unbooked-refunds",
		Short: "List gateway refunds that were never booked on the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			evts, err := e.repo.ListPendingProviderEvents(cmd.Context(), e.repo.DB(cmd.Context()), cardintent.Name, cardintent.EventRefundUnbooked)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REFUND\tTENANT\tRECEIVED\tERROR\tPAYLOAD")
			for _, evt := range evts {
				reason := ""
				if evt.ProcessError != nil {
					reason = *evt.ProcessError
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					evt.EventID, evt.TenantID, evt.ReceivedAt.Format(time.RFC3339), reason, string(evt.PayloadJSON))
			}
			return w.Flush()
		},
	}
}
