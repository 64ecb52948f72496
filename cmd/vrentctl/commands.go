package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vrent/internal/app"
	"vrent/internal/infra"
	"vrent/internal/logger"
	"vrent/internal/report"
	"vrent/internal/scheduler"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				d, err := infra.MigrationsDir()
				if err != nil {
					return fmt.Errorf("locate migrations: %w", err)
				}
				dir = d
			}
			cfg := configFrom(cmd)
			db, err := infra.NewDB(cmd.Context(), cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := infra.Migrate(cmd.Context(), db, dir); err != nil {
				return err
			}
			logger.Info("migrations applied", "dir", dir)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "migrations directory (default: <module root>/migrations)")
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run background jobs",
	}

	run := &cobra.Command{
		Use:       "run [no-shows|extensions|assignments]",
		Short:     "Run jobs once and exit",
		ValidArgs: []string{"no-shows", "extensions", "assignments"},
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) == 0 {
					a.Jobs.RunAll()
					return nil
				}
				switch args[0] {
				case "no-shows":
					a.Jobs.SweepNoShows()
				case "extensions":
					a.Jobs.ExpireExtensions()
				case "assignments":
					a.Jobs.RetryAssignments()
				}
				return nil
			})
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the cron scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				cfg := configFrom(cmd)
				sched, err := scheduler.NewScheduler(a.Jobs, cfg.Scheduler, cfg.Location())
				if err != nil {
					return err
				}
				sched.Start()
				<-ctx.Done()
				sched.Stop()
				return nil
			})
		},
	}

	cmd.AddCommand(run, serve)
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export reports",
	}

	cash := &cobra.Command{
		Use:   "cash",
		Short: "Write the agent cash reconciliation workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromStr, _ := cmd.Flags().GetString("from")
			toStr, _ := cmd.Flags().GetString("to")
			out, _ := cmd.Flags().GetString("out")

			cfg := configFrom(cmd)
			loc := cfg.Location()
			from, err := time.ParseInLocation(time.DateOnly, fromStr, loc)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			to, err := time.ParseInLocation(time.DateOnly, toStr, loc)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			// --to is inclusive of the whole day.
			to = to.AddDate(0, 0, 1)

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				reports, err := a.Cash.ReconcileAll(ctx, from, to)
				if err != nil {
					return err
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := report.WriteCashReconciliation(f, reports, loc); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				logger.Info("cash report written", "path", out, "agents", len(reports))
				return nil
			})
		},
	}
	today := time.Now().Format(time.DateOnly)
	cash.Flags().String("from", today, "first day (YYYY-MM-DD)")
	cash.Flags().String("to", today, "last day (YYYY-MM-DD)")
	cash.Flags().String("out", "cash-reconciliation.xlsx", "output file")

	cmd.AddCommand(cash)
	return cmd
}

// withApp wires the services, runs fn and flushes queued notifications.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, configFrom(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	notifyCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Notifier.Run(notifyCtx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	return fn(ctx, a)
}
