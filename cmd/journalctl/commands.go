package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"tradejournal/internal/api"
	"tradejournal/internal/app"
	"tradejournal/internal/config"
	"tradejournal/internal/logging"
	"tradejournal/pkg/tradejournal"
)

type cli struct {
	dataDir  string
	envFile  string
	logLevel string

	logger *slog.Logger
	core   *tradejournal.Core
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "journalctl",
		Short:        "Administer the trade journal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(c.envFile); err != nil {
				return err
			}
			if c.dataDir != "" {
				config.SetRuntimeDataDir(c.dataDir)
			}
			level, err := c.resolveLogLevel(cmd)
			if err != nil {
				return err
			}
			c.logger = logging.New(cmd.ErrOrStderr(), level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "Directory for the database")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Optional .env file to load")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error); overrides TRADE_JOURNAL_LOG_LEVEL")

	root.AddCommand(c.newUserCmd())
	root.AddCommand(c.newTradesCmd())
	root.AddCommand(c.newQuotaCmd())
	root.AddCommand(c.newStatsCmd())
	root.AddCommand(c.newAnalyzeCmd())
	root.AddCommand(c.newTokenCmd())
	return root
}

// resolveLogLevel prefers an explicit --log-level, then the environment,
// then the flag default.
func (c *cli) resolveLogLevel(cmd *cobra.Command) (slog.Level, error) {
	level, ok := logging.ParseLevel(c.logLevel)
	if !ok {
		return 0, fmt.Errorf("invalid --log-level %q", c.logLevel)
	}
	if cmd.Flags().Changed("log-level") {
		return level, nil
	}
	return logging.ResolveLevel(level), nil
}

func (c *cli) open() (*tradejournal.Core, error) {
	if c.core != nil {
		return c.core, nil
	}
	core, err := app.OpenCore(c.logger)
	if err != nil {
		return nil, err
	}
	c.core = core
	return core, nil
}

func (c *cli) close() error {
	if c.core == nil {
		return nil
	}
	err := c.core.Close()
	c.core = nil
	return err
}

func (c *cli) newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email, name string
	create := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Create a user or refresh their profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.open()
			if err != nil {
				return err
			}
			user, err := core.EnsureUser(cmd.Context(), tradejournal.UserProfile{ID: args[0], Email: email, DisplayName: name})
			if err != nil {
				return err
			}
			return printJSON(cmd, user)
		},
	}
	create.Flags().StringVar(&email, "email", "", "Email address")
	create.Flags().StringVar(&name, "name", "", "Display name")

	plan := &cobra.Command{
		Use:   "plan <user-id> <free|pro|elite>",
		Short: "Change a user's plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.open()
			if err != nil {
				return err
			}
			user, err := core.SetUserPlan(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, user)
		},
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.open()
			if err != nil {
				return err
			}
			user, err := core.GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, user)
		},
	}

	del := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user and all their trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.open()
			if err != nil {
				return err
			}
			if err := core.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, plan, show, del)
	return cmd
}

func (c *cli) newTradesCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "trades <user-id>",
		Short: "List a user's trades, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.open()
			if err != nil {
				return err
			}
			trades, err := core.ListTrades(cmd.Context(), args[0], tradejournal.TradeListOptions{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			return printJSON(cmd, trades)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum trades to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Trades to skip")
	return cmd
}

func (c *cli) newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota <user-id>",
		Short: "Show a user's analysis quota for this month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.open()
			if err != nil {
				return err
			}
			quota, err := core.GetQuota(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, quota)
		},
	}
}

func (c *cli) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Show a user's journal statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.open()
			if err != nil {
				return err
			}
			stats, err := core.GetTradeStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func (c *cli) newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <user-id> <trade-id>",
		Short: "Analyze a trade now, spending one unit of the user's quota",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.open()
			if err != nil {
				return err
			}
			result, err := core.AnalyzeTrade(cmd.Context(), args[0], args[1])
			var degraded *tradejournal.AnalysisDegradedError
			if errors.As(err, &degraded) {
				_ = printJSON(cmd, degraded.Analysis)
				return err
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func (c *cli) newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg, err := config.LoadAuthConfig()
			if err != nil {
				return err
			}
			auth, err := api.NewAuthenticator(authCfg.JWTSecret, authCfg.TokenTTL)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
