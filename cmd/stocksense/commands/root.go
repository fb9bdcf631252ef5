package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stocksense/internal/alerts"
	"stocksense/internal/auth"
	"stocksense/internal/chat"
	"stocksense/internal/config"
	"stocksense/internal/core"
	"stocksense/internal/httpapi"
	"stocksense/internal/llm"
	"stocksense/internal/logging"
	"stocksense/internal/risk"
	"stocksense/internal/store"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "stocksense",
	Short: "StockSense is an inventory and sales analytics service",
	Long: `An inventory-and-sales analytics service with a hybrid chat answering core:
free-text business questions are routed, resolved to typed analytic intents and
answered from the sales mart, with daily stockout alerting on top.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		logging.Init(verbose, cfg.LogDir)

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("StockSense starting")
	},
	Run: func(cmd *cobra.Command, args []string) {
		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer st.Close()

		client := llm.New(cfg.LLM, "")
		c, err := core.New(cfg, st, client, chat.NullRetriever{})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build chat core")
		}

		tokens := auth.NewManager(cfg.JWTSecret, cfg.AccessMinutes, cfg.RefreshDays)
		scheduler := alerts.NewScheduler(st, store.NewSQLIdemStore(st),
			func(ctx context.Context, org store.Org, strategy risk.Strategy) (*risk.Digest, error) {
				return risk.BuildDigest(ctx, st, org, strategy, 30)
			},
			alerts.NewEmailSink(cfg.Alerts),
			alerts.NewWebhookSink(cfg.Alerts),
		)

		server := httpapi.NewServer(cfg, st, c, tokens, scheduler)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := server.ListenAndServe(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
