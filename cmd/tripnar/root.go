package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xudanli/tripnaraht-sub002/internal/actions"
	"github.com/xudanli/tripnaraht-sub002/internal/agent"
	actioncache "github.com/xudanli/tripnaraht-sub002/internal/agent/cache"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/dedup"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/events"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/fastpath"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/orchestrator"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/planner"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/registry"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/router"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
	"github.com/xudanli/tripnaraht-sub002/internal/config"
	"github.com/xudanli/tripnaraht-sub002/internal/llm"
	"github.com/xudanli/tripnaraht-sub002/internal/observability"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
	"github.com/xudanli/tripnaraht-sub002/internal/utils"
)

const version = "0.3.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tripnar",
		Short:         "Travel planning agent core",
		Long:          "tripnar routes travel requests to a fast path or a bounded reasoning loop and returns an itinerary.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	viper.SetEnvPrefix("TRIPNAR")
	viper.AutomaticEnv()

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tripnar %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		userID         string
		tripID         string
		allowWebbrowse bool
		dryRun         bool
		maxSeconds     int
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "Handle one travel request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			if viper.GetBool("verbose") {
				cfg.Verbose = true
			}

			core, metrics, cleanup, err := composeCore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			req := agent.Request{
				UserID:  userID,
				TripID:  tripID,
				Message: strings.Join(args, " "),
				Options: &agent.Options{
					DryRun:         dryRun,
					AllowWebbrowse: allowWebbrowse,
					MaxSeconds:     maxSeconds,
				},
			}

			start := time.Now()
			resp, err := core.RouteAndRun(cmd.Context(), req)
			if err != nil {
				return err
			}
			metrics.RecordRequest(cmd.Context(),
				string(resp.Route), resp.Result.Status,
				time.Since(start),
				time.Duration(resp.Observability.RouterMS)*time.Millisecond,
				resp.Observability.TokensEst, resp.Observability.CostEstUSD)
			metrics.RecordBrowserSteps(cmd.Context(), resp.Observability.BrowserSteps)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Result.AnswerText)
			fmt.Fprintf(cmd.OutOrStdout(), "[%s · %s · %dms]\n",
				resp.Route, resp.Result.Status, resp.Observability.LatencyMS)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "user id")
	cmd.Flags().StringVar(&tripID, "trip", "", "trip id")
	cmd.Flags().BoolVar(&allowWebbrowse, "allow-webbrowse", false, "permit web browsing actions")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "skip deduplication and response caching")
	cmd.Flags().IntVar(&maxSeconds, "max-seconds", 0, "override the time budget")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response envelope as JSON")
	return cmd
}

// composeCore wires every collaborator of the agent core from config.
func composeCore(ctx context.Context, cfg *config.RuntimeConfig) (*agent.Agent, *observability.MetricsCollector, func(), error) {
	base := utils.NewComponentLogger("tripnar")
	if cfg.Verbose {
		base.SetLevel(utils.DEBUG)
	} else {
		base.SetLevel(utils.INFO)
	}
	var logger logging.Logger = base

	metrics, err := observability.NewMetricsCollector(cfg.Metrics, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init metrics: %w", err)
	}

	store := state.NewStore(logger)
	journal := events.NewJournal()

	reg := registry.NewRegistry(logger)
	if err := actions.RegisterDefaults(reg); err != nil {
		return nil, nil, nil, fmt.Errorf("register actions: %w", err)
	}

	cache := actioncache.New(actioncache.Config{
		TTL:      cfg.CacheTTL(),
		Capacity: cfg.Cache.Capacity,
		Logger:   logger,
	})
	cache.StartSweeper(actioncache.DefaultSweepInterval)

	var plan *planner.Planner
	if cfg.LLM.APIKey != "" || strings.EqualFold(cfg.LLM.Provider, "mock") {
		client, err := llm.NewClient(llm.Config{
			Provider:   cfg.LLM.Provider,
			Model:      cfg.LLM.Model,
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Timeout:    cfg.LLM.TimeoutSecs,
			MaxRetries: cfg.LLM.MaxRetries,
		}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init llm client: %w", err)
		}
		plan = planner.New(client, reg, logger)
	} else {
		logger.Info("No LLM API key configured, planning uses the rule ladder only")
	}

	orch := orchestrator.New(orchestrator.Deps{
		Store:    store,
		Registry: reg,
		Cache:    cache,
		Planner:  plan,
		Journal:  journal,
		Logger:   logger,
	})

	index, err := fastpath.NewIndex(ctx, actions.CatalogDocuments())
	if err != nil {
		logger.Warn("RAG index unavailable, catalog lookup only: %v", err)
		index = nil
	}
	fast := fastpath.New(store, index, logger)

	core := agent.New(agent.Deps{
		Store:        store,
		Router:       router.New(logger),
		Orchestrator: orch,
		Fast:         fast,
		Dedup:        dedup.NewCache(cfg.DedupTTL(), cfg.Dedup.Capacity),
		Journal:      journal,
		Logger:       logger,
	})

	cleanup := func() {
		cache.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics shutdown: %v", err)
		}
	}
	return core, metrics, cleanup, nil
}
