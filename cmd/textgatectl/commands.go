package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raakeshmj/textgate/internal/app"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/limiter"
	"github.com/spf13/cobra"
)

type openFunc func(ctx context.Context) (*app.App, error)

func newRootCommand(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "textgatectl",
		Short:         "Administer textgate accounts, keys and quotas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newRegisterCommand(open),
		newIssueKeyCommand(open),
		newSetTierCommand(open),
		newHistoryCommand(open),
		newAnalyticsCommand(open),
		newAdmitCommand(open),
	)
	return cmd
}

// withApp opens the store for the duration of one command.
func withApp(cmd *cobra.Command, open openFunc, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRegisterCommand(open openFunc) *cobra.Command {
	var password, email string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if err := a.Credentials.Register(ctx, args[0], password, email); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&email, "email", "", "Contact email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newIssueKeyCommand(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-key <username>",
		Short: "Issue a new API key and print it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if _, err := a.Credentials.GetAccount(ctx, args[0]); err != nil {
					return fmt.Errorf("user %s: %w", args[0], err)
				}
				raw, err := a.Keys.Issue(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), raw)
				return nil
			})
		},
	}
}

func newSetTierCommand(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier <username> <guest|user|pro>",
		Short: "Change a user's rate-limit tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier := db.Tier(args[1])
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				ok, err := a.Credentials.UpdateAccount(ctx, args[0], db.AccountUpdate{Tier: &tier})
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no such user: %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], tier)
				return nil
			})
		},
	}
}

func newHistoryCommand(open openFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <username>",
		Short: "Print a user's most recent tool calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				entries, err := a.History.Recent(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of entries (default 50)")
	return cmd
}

func newAnalyticsCommand(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics <username>",
		Short: "Print usage analytics for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				snap, err := a.Analytics.Summarize(ctx, args[0])
				if err != nil {
					return err
				}
				if snap == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "no history for %s\n", args[0])
					return nil
				}
				return printJSON(cmd, snap)
			})
		},
	}
}

func newAdmitCommand(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "admit <username>",
		Short: "Consume one request slot for a user and report the quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				account, err := a.Credentials.GetAccount(ctx, args[0])
				if err != nil {
					return fmt.Errorf("user %s: %w", args[0], err)
				}
				d, err := limiter.AdmitOrError(ctx, a.Limiter, account.Username, account.Tier)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), d.Message())
				return nil
			})
		},
	}
}
