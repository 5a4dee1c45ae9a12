package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipscope/clipscope/internal/capability"
	"github.com/clipscope/clipscope/internal/config"
	"github.com/clipscope/clipscope/internal/coordinator"
	"github.com/clipscope/clipscope/internal/gateway"
	"github.com/clipscope/clipscope/internal/maintenance"
	"github.com/clipscope/clipscope/internal/metrics"
	"github.com/clipscope/clipscope/internal/orchestrator"
	"github.com/clipscope/clipscope/internal/provider"
	"github.com/clipscope/clipscope/internal/router"
	"github.com/clipscope/clipscope/internal/state"
	"github.com/clipscope/clipscope/internal/state/store"
	"github.com/clipscope/clipscope/internal/storage"
	"github.com/clipscope/clipscope/internal/version"
	"github.com/clipscope/clipscope/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	listen := flag.String("listen", "", "gateway listen address (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		os.Exit(0)
	}
	fmt.Println(version.Get())

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Gateway.Listen = *listen
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	planner, plannerModel, err := resolveModel(providers, cfg.Models.Planner)
	if err != nil {
		return fmt.Errorf("planner model: %w", err)
	}
	chat, chatModel, err := resolveModel(providers, cfg.Models.Chat)
	if err != nil {
		return fmt.Errorf("chat model: %w", err)
	}

	var db *store.DB
	if cfg.Sessions.PostgresDSN != "" {
		db, err = store.OpenPostgres(cfg.Sessions.PostgresDSN)
	} else {
		db, err = store.Open(cfg.Sessions.DataDir)
	}
	if err != nil {
		return err
	}
	defer db.Close()
	sessions := store.NewSessionStore(db, cfg.Sessions.MaxMessages)

	var media state.MediaContext
	if cfg.Sessions.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Sessions.RedisAddr})
		defer client.Close()
		media = state.NewRedisMedia(client, 24*time.Hour)
	} else {
		media = state.NewMemoryMedia()
	}

	outputs, err := storage.NewOutputStore(cfg.Storage.ReportsDir)
	if err != nil {
		return err
	}
	engine := worker.NewScriptEngine(cfg.Storage.ScriptsDir)

	registry := capability.NewRegistry()
	classifier := router.NewClassifier(registry)
	coord := coordinator.New(registry, classifier, nil)
	coord.Register(worker.NewTranscription(media, engine))
	coord.Register(worker.NewVision(media, engine))
	coord.Register(worker.NewReport(media, chat, outputs))
	coord.Register(worker.NewReclarify(media, chat))

	mets := metrics.New()

	opts := orchestrator.DefaultOptions()
	opts.UseIntentRouting = *cfg.Routing.UseIntent
	opts.MinWorkerConf = cfg.Routing.MinWorkerConf
	opts.AmbiguityDelta = cfg.Routing.AmbiguityDelta
	opts.MinToolsConf = cfg.Routing.MinToolsConf
	opts.TotalTimeout = time.Duration(cfg.Orchestration.TotalTimeoutS) * time.Second
	opts.DefaultWorkerBudget = time.Duration(cfg.Orchestration.DefaultBudgetS) * time.Second
	opts.WorkerBudgets = cfg.WorkerBudgets()
	opts.SafetyMargin = time.Duration(cfg.Orchestration.SafetyMarginS) * time.Second
	opts.MaxReclarify = *cfg.Orchestration.MaxReclarify
	opts.RequireMediaForTools = *cfg.Orchestration.RequireMediaForTools
	opts.PlannerModel = plannerModel
	opts.ChatModel = chatModel

	orch := orchestrator.New(planner, chat, coord, classifier, media, sessions, mets, opts)

	jobs, err := maintenance.LoadJobs(cfg.Maintenance.JobsFile)
	if err != nil {
		return err
	}
	jobs = applyRetention(jobs, cfg)
	sched := maintenance.NewScheduler(sessions, outputs)
	if err := sched.Apply(jobs); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:    cfg.Gateway.Listen,
		Handler: gateway.New(orch, mets.Handler()).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("main: gateway listening on %s", cfg.Gateway.Listen)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("main: received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func buildProviders(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	for name, pc := range cfg.Models.Providers {
		p, err := provider.FromConfig(provider.BackendConfig{
			ID:      name,
			Backend: pc.Backend,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	if len(registry.List()) == 0 {
		// no config: talk to a local Ollama with defaults
		p, err := provider.FromConfig(provider.BackendConfig{ID: "local", Backend: provider.BackendOllama})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// applyRetention overlays the config file's retention knobs on the
// loaded jobs. The jobs file stays authoritative for anything it sets;
// these are the short-hand settings for the common case.
func applyRetention(jobs []maintenance.Job, cfg *config.Config) []maintenance.Job {
	for i := range jobs {
		if cfg.Maintenance.PruneSchedule != "" {
			jobs[i].Schedule = cfg.Maintenance.PruneSchedule
		}
		switch jobs[i].Kind {
		case maintenance.KindPruneSessions:
			if cfg.Sessions.MaxIdleDays > 0 {
				jobs[i].MaxAge = fmt.Sprintf("%dh", cfg.Sessions.MaxIdleDays*24)
			}
		case maintenance.KindPruneReports:
			if cfg.Storage.MaxAgeDays > 0 {
				jobs[i].MaxAge = fmt.Sprintf("%dh", cfg.Storage.MaxAgeDays*24)
			}
		}
	}
	return jobs
}

func resolveModel(providers *provider.Registry, ref config.ModelRef) (provider.Client, string, error) {
	if ref.Provider != "" {
		p, err := providers.Get(ref.Provider)
		if err != nil {
			return nil, "", err
		}
		return p, ref.Model, nil
	}
	if p, err := providers.Get("local"); err == nil {
		return p, ref.Model, nil
	}
	all := providers.List()
	if len(all) == 0 {
		return nil, "", fmt.Errorf("no providers configured")
	}
	return all[0], ref.Model, nil
}
