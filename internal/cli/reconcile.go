package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	appinventory "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/bootstrap"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/infrastructure/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ReconcileOptions holds flags for the reconcile command
type ReconcileOptions struct {
	*RootOptions
	All       bool
	Apply     bool
	Watch     bool
	Interval  time.Duration
	MaxSweeps int
}

// ReconcileResult pairs a drift report with the state after repair
type ReconcileResult struct {
	Report   *inventory.ReconciliationReport `json:"report"`
	Repaired *inventory.ReconciliationReport `json:"repaired,omitempty"`
}

// NewReconcileCommand creates the reconcile command
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile [<item> <warehouse>]",
		Short: "Compare balance projections with their cost layers",
		Long: `Compare the stored balance of an item@warehouse with the sums over its open
batches and report the drift. Nothing is written unless --apply is given;
then each drifted balance is reset to its batch sums, provided it has not
changed since the report was taken. Exits with status 1 when drift remains.

With --watch every balance is swept on an interval until the command is
interrupted or --max-sweeps sweeps have run.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.All || opts.Watch {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if opts.Watch {
					return watch(ctx, cmd, opts, rt)
				}
				return reconcile(ctx, cmd, opts, rt.Engine, rt.Logger, args)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "reconcile every item@warehouse with a balance")
	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "repair drifted balances")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "sweep every balance periodically")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "sweep interval (default from config)")
	cmd.Flags().IntVar(&opts.MaxSweeps, "max-sweeps", 0, "stop watching after this many sweeps (0 runs until interrupted)")

	return cmd
}

func reconcile(ctx context.Context, cmd *cobra.Command, opts *ReconcileOptions, engine *appinventory.FIFOEngine, log *zap.Logger, args []string) error {
	var reports []*inventory.ReconciliationReport
	if opts.All {
		var err error
		if reports, err = engine.ReconcileAll(ctx); err != nil {
			return WrapExitError(ExitFailure, "reconciliation failed", err)
		}
	} else {
		report, err := engine.Reconcile(ctx, args[0], args[1])
		if err != nil {
			return WrapExitError(ExitFailure, "reconciliation failed", err)
		}
		reports = append(reports, report)
	}

	results := make([]ReconcileResult, 0, len(reports))
	drifted := 0
	for _, report := range reports {
		result := ReconcileResult{Report: report}
		if !report.InSync() && opts.Apply {
			repaired, err := engine.Repair(ctx, report)
			if err != nil {
				log.Warn("repair failed", zap.String("key", report.Key().String()), zap.Error(err))
			} else {
				result.Repaired = repaired
			}
		}
		if !result.inSync() {
			drifted++
		}
		results = append(results, result)
	}

	if err := opts.formatter(cmd).Success(results, func(w io.Writer) { writeReconciliation(w, results) }); err != nil {
		return err
	}
	if drifted > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d balance(s) out of sync", drifted))
	}
	return nil
}

func (r ReconcileResult) inSync() bool {
	if r.Repaired != nil {
		return r.Repaired.InSync()
	}
	return r.Report.InSync()
}

func writeReconciliation(w io.Writer, results []ReconcileResult) {
	fmt.Fprintln(w, "ITEM@WAREHOUSE\tQUANTITY\tBATCHES\tQTY DRIFT\tVALUE\tBATCH VALUE\tVALUE DRIFT\tSTATE")
	for _, r := range results {
		rep := r.Report
		state := "in sync"
		switch {
		case r.Repaired != nil && !rep.InSync():
			state = "repaired"
		case !rep.InSync():
			state = "drifted"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", rep.Key(),
			rep.ProjectedQuantity, rep.BatchQuantity, rep.QuantityDrift,
			rep.ProjectedValue, rep.BatchValue, rep.ValueDrift, state)
	}
}

// watch runs the reconcile scheduler in the foreground and reports each sweep
func watch(ctx context.Context, cmd *cobra.Command, opts *ReconcileOptions, rt *bootstrap.Runtime) error {
	cfg := scheduler.Config{
		Interval:       rt.Config.Reconcile.Interval,
		SweepTimeout:   rt.Config.Reconcile.SweepTimeout,
		Repair:         opts.Apply || rt.Config.Reconcile.Repair,
		RunImmediately: true,
	}
	if opts.Interval > 0 {
		cfg.Interval = opts.Interval
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		sweeps    int
		remaining int
		failed    bool
		writeErr  error
	)
	formatter := opts.formatter(cmd)
	onSweep := func(s *scheduler.Sweep) {
		mu.Lock()
		defer mu.Unlock()
		sweeps++
		remaining = s.Remaining()
		failed = s.Status == scheduler.SweepStatusFailed
		if err := formatter.Success(s, func(w io.Writer) { writeSweep(w, s) }); err != nil && writeErr == nil {
			writeErr = err
		}
		if opts.MaxSweeps > 0 && sweeps >= opts.MaxSweeps {
			cancel()
		}
	}

	sched, err := scheduler.NewReconcileScheduler(cfg, rt.Engine, onSweep, rt.Logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid reconcile schedule", err)
	}
	if err := sched.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start reconcile scheduler", err)
	}
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.SweepTimeout+5*time.Second)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		return WrapExitError(ExitFailure, "reconcile scheduler did not stop", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		return writeErr
	}
	if failed {
		return NewExitError(ExitFailure, "last reconciliation sweep failed")
	}
	if remaining > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d balance(s) out of sync", remaining))
	}
	return nil
}

func writeSweep(w io.Writer, s *scheduler.Sweep) {
	fmt.Fprintf(w, "%s\t%s\tchecked %d\tdrifted %d\trepaired %d\n",
		s.CompletedAt.Format(time.RFC3339), s.Status, s.Checked, s.Drifted, s.Repaired)
	if s.Error != "" {
		fmt.Fprintf(w, "\terror: %s\n", s.Error)
	}
}
