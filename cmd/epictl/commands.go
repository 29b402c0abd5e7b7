package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/prudhvinik1/episync/internal/database"
	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/repositories"
	"github.com/prudhvinik1/episync/internal/schedule"
	"github.com/prudhvinik1/episync/internal/services"
)

func newScheduleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Print the vaccination schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := schedule.Default().AllGroups()
			return render(cmd.OutOrStdout(), flags.format, groups, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "GROUP\tMIN WEEKS\tVACCINE\tDOSE")
				for _, g := range groups {
					for _, v := range g.Vaccines {
						fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", g.Name, g.MinEligibleWeeks, v.Name, v.DoseNumber)
					}
				}
			})
		},
	}
}

func newValidateCmd(flags *globalFlags) *cobra.Command {
	var dob, date, vaccine string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an administration date against the schedule",
		Long:  "Exits 0 when the date is acceptable and 2 when it is rejected.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(flags)
			if err != nil {
				return err
			}
			birth, err := models.ParseDate(dob)
			if err != nil {
				return codeError(3, "invalid --dob: %s", err)
			}
			administered, err := models.ParseDate(date)
			if err != nil {
				return codeError(3, "invalid --date: %s", err)
			}
			group, ok := engine.Catalog().GroupContaining(vaccine)
			if !ok {
				return codeError(3, "unknown vaccine %q", vaccine)
			}

			if err := engine.Validate(administered, birth, group.MinEligibleWeeks); err != nil {
				return codeError(2, "%s", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s on %s is valid for a child born %s\n", vaccine, administered, birth)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&dob, "dob", "", "Date of birth (YYYY-MM-DD)")
	f.StringVar(&date, "date", "", "Administration date (YYYY-MM-DD)")
	f.StringVar(&vaccine, "vaccine", "", "Vaccine id, e.g. penta1")
	cmd.MarkFlagRequired("dob")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("vaccine")
	return cmd
}

func newDefaultersCmd(flags *globalFlags) *cobra.Command {
	var facility string
	cmd := &cobra.Command{
		Use:   "defaulters",
		Short: "List children with overdue vaccines, most overdue first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			node, err := openNode(ctx, flags)
			if err != nil {
				return err
			}
			defer node.close()

			defaulters, err := node.children.Defaulters(ctx, facility)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flags.format, defaulters, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "CHILD\tMC NUMBER\tFACILITY\tOVERDUE\tMAX DAYS")
				for _, d := range defaulters {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", d.Child.FullName, d.Child.MCNumber, d.Child.Facility, len(d.Overdue), d.MaxDaysOverdue)
				}
			})
		},
	}
	cmd.Flags().StringVar(&facility, "facility", "", "Only list children of this facility")
	return cmd
}

func newProgressCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <child-id>",
		Short: "Show a child's schedule completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			node, err := openNode(ctx, flags)
			if err != nil {
				return err
			}
			defer node.close()

			summary, err := node.children.Summary(ctx, args[0])
			if errors.Is(err, repositories.ErrNotFound) {
				return codeError(4, "child %s not found", args[0])
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flags.format, summary, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Child:\t%s (%s)\n", summary.Child.FullName, summary.Child.MCNumber)
				fmt.Fprintf(w, "Progress:\t%d%%\n", summary.Progress)
				fmt.Fprintf(w, "Doses recorded:\t%d\n", len(summary.Records))
				fmt.Fprintf(w, "Overdue:\t%d\n", len(summary.Overdue))
				if summary.NextDue != nil {
					fmt.Fprintf(w, "Next due:\t%s on %s\n", summary.NextDue.GroupName, summary.NextDue.DueDate)
				}
			})
		},
	}
}

func newSyncCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local replica with the remote replica once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.databaseURL == "" {
				return codeError(3, "--database-url or DATABASE_URL is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			node, err := openNode(ctx, flags)
			if err != nil {
				return err
			}
			defer node.close()

			pool, err := database.NewPostgresPool(ctx, flags.databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			remoteKV := repositories.NewPostgresKVStore(pool)
			if err := remoteKV.EnsureSchema(ctx); err != nil {
				return codeError(5, "remote replica unreachable: %s", err)
			}
			remote := repositories.NewStore(remoteKV, nil)
			syncer := services.NewSyncService(node.local, remote, services.NewPingConnectivity(remoteKV, 0), node.opts...)

			result, err := syncer.Sync(ctx)
			switch {
			case errors.Is(err, services.ErrOffline):
				return codeError(5, "%s", err)
			case errors.Is(err, services.ErrSyncInProgress):
				return codeError(6, "%s", err)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flags.format, result, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "COLLECTION\tTOTAL\tLOCAL ADDED\tLOCAL WINS\tREMOTE KEPT")
				fmt.Fprintf(w, "children\t%d\t%d\t%d\t%d\n", result.Children.Total, result.Children.LocalAdded, result.Children.LocalWins, result.Children.RemoteKept)
				fmt.Fprintf(w, "records\t%d\t%d\t%d\t%d\n", result.Records.Total, result.Records.LocalAdded, result.Records.LocalWins, result.Records.RemoteKept)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Give up after this long")
	return cmd
}

// node is an opened local replica plus the services that read it.
type node struct {
	local    *repositories.Store
	children *services.ChildService
	opts     []services.Option
	close    func()
}

func newEngine(flags *globalFlags) (*schedule.Engine, error) {
	loc, err := time.LoadLocation(flags.timezone)
	if err != nil {
		return nil, codeError(3, "invalid --timezone: %s", err)
	}
	return schedule.NewEngine(schedule.Default(), schedule.WithLocation(loc)), nil
}

func openNode(ctx context.Context, flags *globalFlags) (*node, error) {
	engine, err := newEngine(flags)
	if err != nil {
		return nil, err
	}
	db, err := database.NewSQLiteDB(ctx, flags.db)
	if err != nil {
		return nil, err
	}
	kv, err := repositories.NewSQLiteKVStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	opts := []services.Option{services.WithLogger(logger)}
	local := repositories.NewStore(kv, nil)
	return &node{
		local:    local,
		children: services.NewChildService(local, engine, opts...),
		opts:     opts,
		close:    func() { db.Close() },
	}, nil
}

// render writes v as indented JSON, or as a table drawn by table.
func render(out io.Writer, format string, v any, table func(w *tabwriter.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		table(w)
		return w.Flush()
	default:
		return codeError(3, "unknown --format %q", format)
	}
}
