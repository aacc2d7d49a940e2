package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bdobrica/Kiroku/common/environment"
	"github.com/bdobrica/Kiroku/common/trace"
	"github.com/bdobrica/Kiroku/common/version"
	"github.com/bdobrica/Kiroku/internal/kiroku/app"
	"github.com/bdobrica/Kiroku/internal/kiroku/config"
	"github.com/bdobrica/Kiroku/internal/kiroku/observability"
	"github.com/bdobrica/Kiroku/internal/kiroku/tools"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "kiroku",
		Short:         "Memory-augmented chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", environment.StringOr("KIROKU_CONFIG", ""),
		"YAML config file (env: KIROKU_CONFIG); environment variables override it")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, nil, err
		}
		logger := observability.Setup(cfg.Log.Level, cfg.Log.Format)
		return cfg, logger, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newAskCmd(load),
		newNewsCmd(load),
		newVersionCmd(),
	)
	return root
}

type loader func() (*config.Config, *slog.Logger, error)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Printf("Kiroku\n%s\n\n", version.Info())

			cfg, logger, err := load()
			if err != nil {
				return err
			}
			logger.Info("configuration loaded", "config", cfg.Redacted())

			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize Kiroku: %w", err)
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
}

func newAskCmd(load loader) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer one query through the full memory and tool pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			ctx, _ := trace.Ensure(cmd.Context())

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize Kiroku: %w", err)
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			resp, err := a.Ask(ctx, sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, inv := range resp.Invocations {
				fmt.Fprintf(cmd.ErrOrStderr(), "[tool] %s(%s)\n", inv.Name, inv.Arguments)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Output)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: a new one)")
	return cmd
}

func newNewsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "news <topic>",
		Short: "Look up recent headlines the way the model's tool does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			news := tools.NewNewsTool(tools.NewsConfig{
				APIToken:   cfg.News.APIToken,
				BaseURL:    cfg.News.BaseURL,
				HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
			})
			out, err := news.Lookup(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

