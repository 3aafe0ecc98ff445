package cli

import (
	"context"
	"fmt"
	"io"

	appfinance "github.com/erp/stockledger/internal/application/finance"
	appinventory "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/bootstrap"
	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/spf13/cobra"
)

// BalanceOptions holds flags for the balance command
type BalanceOptions struct {
	*RootOptions
	Batches bool
}

// BalanceReport is the stock position of one item@warehouse
type BalanceReport struct {
	*appinventory.BalanceResponse
	Batches []appinventory.BatchResponse `json:"batches,omitempty"`
}

// NewBalanceCommand creates the balance command
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BalanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "balance <item> <warehouse>",
		Short:         "Show the quantity and book value of an item in a warehouse",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				return showBalance(ctx, cmd, opts, rt.Engine, args[0], args[1])
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Batches, "batches", false, "list the open cost layers in FIFO order")

	return cmd
}

func showBalance(ctx context.Context, cmd *cobra.Command, opts *BalanceOptions, engine *appinventory.FIFOEngine, item, warehouse string) error {
	balance, err := engine.GetBalance(ctx, item, warehouse)
	if err != nil {
		return WrapExitError(ExitFailure, "balance query failed", err)
	}
	report := BalanceReport{BalanceResponse: balance}
	if opts.Batches {
		if report.Batches, err = engine.ListBatches(ctx, item, warehouse); err != nil {
			return WrapExitError(ExitFailure, "batch query failed", err)
		}
	}
	return opts.formatter(cmd).Success(report, func(w io.Writer) {
		fmt.Fprintf(w, "%s@%s\tquantity %s\tbook value %s\n",
			balance.ItemID, balance.WarehouseID, balance.Quantity, balance.BookValue)
		if len(report.Batches) == 0 {
			return
		}
		fmt.Fprintln(w, "\nSEQ\tRECEIVED\tREMAINING\tORIGINAL\tUNIT COST\tCURRENCY\tUNIT COST BASE")
		for _, b := range report.Batches {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", b.Sequence, b.ReceivedAt.Format("2006-01-02"),
				b.RemainingQuantity, b.OriginalQuantity, b.UnitCost, b.Currency, b.UnitCostBase)
		}
	})
}

// NewEntriesCommand creates the entries command
func NewEntriesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "entries <doc-type> <doc-id>",
		Short:         "List the ledger lines booked for a document",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				entries, err := rt.Gateway.GetEntries(ctx, args[0], args[1])
				if err != nil {
					return WrapExitError(ExitFailure, "entries query failed", err)
				}
				return opts.formatter(cmd).Success(entries, func(w io.Writer) { writeEntries(w, entries) })
			})
		},
	}
}

func writeEntries(w io.Writer, entries []appfinance.EntryResponse) {
	fmt.Fprintln(w, "LINE\tDATE\tDEBIT\tCREDIT\tAMOUNT\tCURRENCY\tRATE\tBASE\tLEGAL ENTITY")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s %s\t%s\n", e.LineNumber, e.PostingDate.Format("2006-01-02"),
			e.DebitAccount, e.CreditAccount, e.Amount, e.Currency, e.FxRateToBase, e.AmountBase, e.BaseCurrency, e.LegalEntityID)
	}
}

// NewTrialBalanceCommand creates the trial-balance command
func NewTrialBalanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trial-balance [legal-entity]",
		Short: "Show debit and credit totals per account",
		Long: `Show debit and credit totals per account in the base currency. Without an
argument the configured default legal entity is used. Exits with status 1
when the ledger does not balance.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				le := rt.Config.Accounts.DefaultLegalEntity
				if len(args) == 1 {
					le = args[0]
				}
				tb, err := rt.Gateway.TrialBalance(ctx, le)
				if err != nil {
					return WrapExitError(ExitFailure, "trial balance failed", err)
				}
				if err := opts.formatter(cmd).Success(tb, func(w io.Writer) { writeTrialBalance(w, tb) }); err != nil {
					return err
				}
				if !tb.IsBalanced() {
					return NewExitError(ExitFailure, fmt.Sprintf("ledger of %s is out of balance", le))
				}
				return nil
			})
		},
	}
}

func writeTrialBalance(w io.Writer, tb *finance.TrialBalance) {
	fmt.Fprintf(w, "legal entity %s\n\n", tb.LegalEntityID)
	fmt.Fprintln(w, "ACCOUNT\tDEBIT\tCREDIT\tBALANCE")
	for _, a := range tb.Accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Account, a.Debit, a.Credit, a.Balance)
	}
	fmt.Fprintf(w, "TOTAL\t%s\t%s\t%s\n", tb.TotalDebit, tb.TotalCredit, tb.Status)
}
