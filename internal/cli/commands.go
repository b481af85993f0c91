package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"finanzas/internal/amqp"
	"finanzas/internal/config"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var asJSON bool

	rootCmd := &cobra.Command{
		Use:   "finanzas",
		Short: "Currency-aware personal finance dashboard",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(
		newSummaryCommand(&asJSON),
		newConvertCommand(&asJSON),
		newRatesCommand(&asJSON),
		newRemindersCommand(&asJSON),
		newCurrencyCommand(),
		newSnapshotsCommand(&asJSON),
		newNotifyCommand(),
	)
	return rootCmd
}

// withApp loads configuration, wires the app and runs fn. Logs go to the
// command's stderr so stdout only carries results.
func withApp(cmd *cobra.Command, opts AppOptions, fn func(ctx context.Context, app *App) error) error {
	LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := applog.DefaultConfig()
	logCfg.Level = applog.ParseLevel(cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	logCfg.Component = applog.ComponentCLI
	logCfg.Output = cmd.ErrOrStderr()
	logger := applog.New(logCfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := BuildApp(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSummaryCommand(asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Compute the month-to-date summary in the display currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, AppOptions{}, func(ctx context.Context, app *App) error {
				st, err := app.Dashboard.Recompute(ctx, services.ReasonManual)
				if err != nil {
					return err
				}
				if *asJSON {
					return printJSON(cmd.OutOrStdout(), st)
				}
				writeSummary(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

func writeSummary(w io.Writer, st services.State) {
	s := st.Summary
	fmt.Fprintf(w, "%04d-%02d (%s)\n", s.Year, s.Month, s.Currency)
	fmt.Fprintf(w, "  Income:    %s\n", core.FormatAmount(s.TotalIncome, s.Currency))
	fmt.Fprintf(w, "  Expenses:  %s\n", core.FormatAmount(s.TotalExpenses, s.Currency))
	fmt.Fprintf(w, "  Net:       %s\n", core.FormatAmount(s.NetBalance, s.Currency))
	if st.Trend != nil {
		fmt.Fprintf(w, "  Vs last:   %s\n", core.FormatAmount(st.Trend.Change, s.Currency))
	}
	for _, c := range s.ByCategory {
		fmt.Fprintf(w, "    %-20s %s\n", c.Name, core.FormatAmount(c.Amount, s.Currency))
	}
	if g := s.Goal; g != nil {
		fmt.Fprintf(w, "  Goal %q: %s of %s (%s%%)",
			g.Name,
			core.FormatAmount(g.Current, s.Currency),
			core.FormatAmount(g.Target, s.Currency),
			g.PercentComplete.StringFixed(0))
		if g.Exceeded {
			fmt.Fprint(w, " exceeded")
		} else {
			fmt.Fprintf(w, ", %s to go", core.FormatAmount(g.DisplayRemaining(), s.Currency))
		}
		fmt.Fprintln(w)
	}
	switch {
	case s.Degraded:
		fmt.Fprintln(w, "  (rates unavailable, amounts not converted)")
	case s.Approximate:
		fmt.Fprintln(w, "  (approximate: some rates were missing)")
	}
}

func newConvertCommand(asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "convert AMOUNT FROM TO",
		Short: "Convert an amount between currencies",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[0])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[0], err)
			}
			from, to := core.NormalizeCurrency(args[1]), core.NormalizeCurrency(args[2])
			if !core.ValidCurrency(from) || !core.ValidCurrency(to) {
				return core.ErrInvalidCurrency
			}
			return withApp(cmd, AppOptions{}, func(ctx context.Context, app *App) error {
				conv, err := app.Converter.Convert(ctx, amount, from, to)
				if err != nil {
					return err
				}
				if *asJSON {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"amount":      conv.Amount,
						"currency":    to,
						"approximate": conv.Approximate,
					})
				}
				out := core.FormatAmount(conv.Amount, to)
				if conv.Approximate {
					out += " (approximate)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newRatesCommand(asJSON *bool) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Show the current exchange rate table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base = core.NormalizeCurrency(base)
			if !core.ValidCurrency(base) {
				return core.ErrInvalidCurrency
			}
			return withApp(cmd, AppOptions{}, func(ctx context.Context, app *App) error {
				table, err := app.Rates.Rates(ctx, base)
				if err != nil {
					return err
				}
				if *asJSON {
					return printJSON(cmd.OutOrStdout(), table)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Base %s, fetched %s", table.Base, table.FetchedAt.Format(time.RFC3339))
				if table.Fallback {
					fmt.Fprint(w, " (fallback)")
				}
				fmt.Fprintln(w)
				for _, code := range sortedCodes(table) {
					fmt.Fprintf(w, "  %s %s\n", code, table.Rates[code].String())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&base, "base", core.BaseCurrency, "base currency")
	return cmd
}

func newRemindersCommand(asJSON *bool) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List unpaid reminders due soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, AppOptions{}, func(ctx context.Context, app *App) error {
				horizon := time.Duration(days) * 24 * time.Hour
				list, err := app.Reminders.Upcoming(ctx, time.Now(), horizon, app.Dashboard.DisplayCurrency())
				if err != nil {
					return err
				}
				if *asJSON {
					return printJSON(cmd.OutOrStdout(), list)
				}
				w := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(w, "No reminders due")
					return nil
				}
				for _, o := range list {
					status := fmt.Sprintf("in %d days", o.DaysLeft)
					if o.Overdue {
						status = "overdue"
					}
					fmt.Fprintf(w, "%s  %-20s %s  %s\n", o.DueDate, o.Reminder.Name, core.FormatAmount(o.Amount, o.Currency), status)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "look-ahead window in days")
	return cmd
}

func newCurrencyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "currency",
		Short: "Show or change the display currency",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the display currency",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, AppOptions{}, func(_ context.Context, app *App) error {
					fmt.Fprintln(cmd.OutOrStdout(), app.Dashboard.DisplayCurrency())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set CODE",
			Short: "Persist a new display currency and recompute",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, AppOptions{}, func(ctx context.Context, app *App) error {
					st, err := app.Dashboard.SetDisplayCurrency(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Display currency set to %s\n", st.Summary.Currency)
					return nil
				})
			},
		},
	)
	return cmd
}

func newSnapshotsCommand(asJSON *bool) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List recorded summary snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, AppOptions{}, func(ctx context.Context, app *App) error {
				rows, err := app.Repo.ListSnapshots(ctx, limit)
				if err != nil {
					return err
				}
				if *asJSON {
					return printJSON(cmd.OutOrStdout(), rows)
				}
				for _, r := range rows {
					fmt.Fprintf(cmd.OutOrStdout(), "#%d %04d-%02d %s %s %s\n",
						r.Seq, r.Year, r.Month, r.Currency, r.NetBalance, r.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of snapshots")
	return cmd
}

// newNotifyCommand publishes an input.changed event for the worker.
func newNotifyCommand() *cobra.Command {
	var currency string
	cmd := &cobra.Command{
		Use:       "notify KIND",
		Short:     "Publish an input change so the worker recomputes",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{amqp.KindHistoryLoaded, amqp.KindWalletsLoaded, amqp.KindCurrencyChanged, amqp.KindMonthChanged},
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := amqp.NewInputChangedMessage(args[0], core.NormalizeCurrency(currency))
			if err := msg.Validate(); err != nil {
				return err
			}
			LoadEnvFile()
			cfg := config.Load()
			if !cfg.AMQPEnabled() {
				return fmt.Errorf("AMQP_URL is not set")
			}
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := client.PublishInputChanged(ctx, msg.Kind, msg.Currency); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", msg.Kind)
			return nil
		},
	}
	cmd.Flags().StringVar(&currency, "currency", "", "new display currency for currency_changed")
	return cmd
}

func sortedCodes(t core.RateTable) []string {
	return slices.Sorted(maps.Keys(t.Rates))
}
