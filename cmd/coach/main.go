// Coach is a conversational fitness assistant service.
//
// It exposes a chat endpoint backed by an agent loop that decides
// which fitness tools to invoke (BMI, body fat, ideal weight, macros,
// meal plans, nutrition lookup) and a two-tier conversation memory
// (Redis short-term, Qdrant long-term). Configuration is loaded from
// a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	coach serve              Start the API server
//	coach init [dir]         Initialize a working directory with defaults
//	coach ask <question>     Ask a single question (for testing)
//	coach version            Print version and build information
//	coach -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/fitstack/coach/internal/agent"
	"github.com/fitstack/coach/internal/api"
	"github.com/fitstack/coach/internal/buildinfo"
	"github.com/fitstack/coach/internal/config"
	"github.com/fitstack/coach/internal/embeddings"
	"github.com/fitstack/coach/internal/gateway"
	"github.com/fitstack/coach/internal/identity"
	"github.com/fitstack/coach/internal/llm"
	"github.com/fitstack/coach/internal/memory"
	"github.com/fitstack/coach/internal/observability"
	"github.com/fitstack/coach/internal/tools"
	"github.com/fitstack/coach/internal/usage"
)

// main is intentionally minimal. It constructs the OS-level
// environment (context, stdio, argv) and delegates immediately to
// [run], keeping os.Exit and os.Args out of the application logic so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the coach command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests,
// and the argument surface is small enough that manual parsing is
// clearer than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: coach ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Coach - Conversational Fitness Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: coach [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize a working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/coach/config.yaml, /etc/coach/config.yaml")
	return nil
}

// runAsk boots a minimal controller with in-memory stores and
// processes a single question. Useful for smoke tests and debugging
// without starting the server or the memory backends.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	chat := llm.NewOpenAIClient(llm.Config{
		BaseURL:     cfg.Model.BaseURL,
		APIKey:      cfg.Model.APIKey,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
	}, logger)

	// One-shot questions have no history worth persisting.
	mem := memory.NewManager(
		memory.NewMemShortTerm(cfg.Memory.ShortTerm.Window, cfg.Memory.ShortTerm.TTL.Std()),
		nil, nil,
		memory.Policy{TopK: cfg.Memory.LongTerm.TopK, TTL: cfg.Memory.ShortTerm.TTL.Std()},
		logger,
	)

	registry := buildRegistry(cfg, nil, logger)
	ctrl := agent.NewController(chat, mem, registry, agent.Options{
		MaxRounds:   cfg.Agent.MaxRounds,
		TurnTimeout: cfg.Agent.TurnTimeout.Std(),
	}, logger, nil)

	answer, err := ctrl.HandleTurn(ctx, identity.Hash("cli"), strings.Join(args, " "))
	if err != nil && !errors.Is(err, agent.ErrLoopExceeded) {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout, answer)
	return nil
}

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting coach",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.Model.Name)

	metrics := observability.NewMetrics("coach")

	// --- Memory tiers ---
	// Either backend being unreachable degrades that tier to an
	// in-process store instead of refusing to start; conversation
	// quality suffers but turns still complete.
	short := buildShortTerm(ctx, cfg, logger)
	long, closeLong := buildLongTerm(ctx, cfg, logger)
	if closeLong != nil {
		defer closeLong()
	}

	embedder := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})

	mem := memory.NewManager(short, long, embedder, memory.Policy{
		TopK:          cfg.Memory.LongTerm.TopK,
		MinScore:      cfg.Memory.LongTerm.MinScore,
		ContextBudget: cfg.Memory.ContextBudget,
		TTL:           cfg.Memory.ShortTerm.TTL.Std(),
	}, logger)
	mem.OnError(metrics.RecordMemoryFailure)

	// --- Model and tools ---
	chat := llm.NewOpenAIClient(llm.Config{
		BaseURL:     cfg.Model.BaseURL,
		APIKey:      cfg.Model.APIKey,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
	}, logger)

	registry := buildRegistry(cfg, metrics, logger)

	ctrl := agent.NewController(chat, mem, registry, agent.Options{
		MaxRounds:   cfg.Agent.MaxRounds,
		TurnTimeout: cfg.Agent.TurnTimeout.Std(),
	}, logger, metrics)

	tracker := usage.NewTracker()
	ctrl.SetUsageTracker(tracker)

	// --- HTTP server ---
	srv := api.New(ctrl, logger, metrics, tracker)
	srv.SetPinger(chat)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	// Let in-flight long-term memory writes land before exit.
	_ = mem.Flush(shutdownCtx)
	logger.Info("shutdown complete")
	return nil
}

// buildShortTerm connects to Redis, falling back to an in-process
// window when the server is unreachable.
func buildShortTerm(ctx context.Context, cfg *config.Config, logger *slog.Logger) memory.ShortTermStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Memory.Redis.Addr,
		Username: cfg.Memory.Redis.Username,
		Password: cfg.Memory.Redis.Password,
		DB:       cfg.Memory.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, short-term memory degraded to in-process",
			"addr", cfg.Memory.Redis.Addr, "error", err)
		return memory.NewMemShortTerm(cfg.Memory.ShortTerm.Window, cfg.Memory.ShortTerm.TTL.Std())
	}

	logger.Info("short-term memory connected", "addr", cfg.Memory.Redis.Addr)
	return memory.NewRedisShortTerm(client, cfg.Memory.ShortTerm.Window, cfg.Memory.ShortTerm.TTL.Std(), logger)
}

// buildLongTerm connects to Qdrant, falling back to an in-process
// store when the collection cannot be reached or created.
func buildLongTerm(ctx context.Context, cfg *config.Config, logger *slog.Logger) (memory.LongTermStore, func()) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := memory.NewQdrantStore(connectCtx, &qdrant.Config{
		Host:   cfg.Memory.Qdrant.Host,
		Port:   cfg.Memory.Qdrant.Port,
		APIKey: cfg.Memory.Qdrant.APIKey,
		UseTLS: cfg.Memory.Qdrant.UseTLS,
	}, cfg.Memory.Qdrant.Collection, uint64(cfg.Embeddings.Dimensions), logger)
	if err != nil {
		logger.Warn("qdrant unreachable, long-term memory degraded to in-process",
			"host", cfg.Memory.Qdrant.Host, "error", err)
		return memory.NewMemLongTerm(), nil
	}

	logger.Info("long-term memory connected",
		"host", cfg.Memory.Qdrant.Host, "collection", cfg.Memory.Qdrant.Collection)
	return store, func() { _ = store.Close() }
}

// buildRegistry wires the tool registry. Provider-backed tools are
// registered only when their endpoints are configured; the pure
// computational tools are always available.
func buildRegistry(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *tools.Registry {
	caller := gateway.NewCaller(nil, gateway.Options{
		CallTimeout:      cfg.Gateway.CallTimeout.Std(),
		MaxRetries:       cfg.Gateway.MaxRetries,
		BackoffBase:      cfg.Gateway.BackoffBase.Std(),
		BackoffCap:       cfg.Gateway.BackoffCap.Std(),
		BreakerThreshold: cfg.Gateway.BreakerThreshold,
		BreakerWindow:    cfg.Gateway.BreakerWindow.Std(),
		BreakerCooldown:  cfg.Gateway.BreakerCooldown.Std(),
		CacheTTL:         cfg.Gateway.CacheTTL.Std(),
	}, logger)
	caller.OnCall(metrics.RecordProviderCall)

	var planner tools.MealPlanner
	if cfg.Providers.Recipe.BaseURL != "" {
		planner = tools.GatewayPlanner{
			Client: gateway.NewRecipeClient(caller, cfg.Providers.Recipe.BaseURL, cfg.Providers.Recipe.APIKey),
		}
	}
	var nutrition tools.NutritionLookup
	if cfg.Providers.Nutrition.BaseURL != "" {
		nutrition = tools.GatewayNutrition{
			Client: gateway.NewNutritionClient(caller, cfg.Providers.Nutrition.BaseURL, cfg.Providers.Nutrition.APIKey),
		}
	}
	return tools.NewRegistry(planner, nutrition)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		// No config file is fine for local runs; defaults plus env
		// expansion in an empty config cover the basics.
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
