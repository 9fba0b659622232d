package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// TickOptions holds flags shared by tick and tick-all.
type TickOptions struct {
	*RootOptions
	At string
}

// NewTickCommand creates the tick command.
func NewTickCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TickOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tick <relationship-id>",
		Short: "Evaluate one relationship and deliver its due message",
		Long: `Evaluate one relationship and deliver its due message.

Example:
  anniversary-server tick 3f0c9b2e-... --at 2024-02-15T09:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts.RootOptions, func(ctx context.Context, app *App) error {
				now, err := opts.now(app)
				if err != nil {
					return err
				}
				result, err := app.Scheduler.Tick(ctx, args[0], now)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "relationship %s month %d: %s", result.RelationshipID, result.MonthIndex, result.Outcome)
				if result.MessageID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " (message %s)", result.MessageID)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "evaluation time in RFC3339 (default now)")
	return cmd
}

// NewTickAllCommand creates the tick-all command.
func NewTickAllCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TickOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tick-all",
		Short: "Run one tick round over every active relationship",
		Long: `Run one tick round over every active relationship, for use from cron
when the server runs with --no-scheduler.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts.RootOptions, func(ctx context.Context, app *App) error {
				now, err := opts.now(app)
				if err != nil {
					return err
				}
				summary, err := app.Runner.RunOnce(ctx, now)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), summary)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ticked %d relationships: %d delivered, %d to retry, %d failed\n",
					summary.Relationships, summary.Delivered, len(summary.Retry), len(summary.Failed))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "evaluation time in RFC3339 (default now)")
	return cmd
}

func (o *TickOptions) now(app *App) (time.Time, error) {
	if o.At == "" {
		return app.Clock.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, o.At)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", o.At, err)
	}
	return t, nil
}

func withApp(ctx context.Context, opts *RootOptions, fn func(context.Context, *App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
