package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit"
	"github.com/groupkit-ai/groupkit/checkpoint"
	"github.com/groupkit-ai/groupkit/config"
	"github.com/groupkit-ai/groupkit/internal/telemetry"
	"github.com/groupkit-ai/groupkit/tokenizer"
	"github.com/groupkit-ai/groupkit/types"
)

// Build metadata, injected via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "demo":
		runDemo(os.Args[2:])
	case "checkpoints":
		runCheckpoints(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	task := fs.String("task", "Plan the launch announcement", "Task to seed the group with")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := config.BuildLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting groupkit demo",
		zap.String("version", Version),
		zap.String("task", *task),
	)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry unavailable", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		providers.Shutdown(ctx)
	}()

	strategy, err := groupkit.NewRoundRobin("writer", "critic")
	if err != nil {
		logger.Fatal("strategy setup failed", zap.Error(err))
	}

	opts := []groupkit.Option{
		groupkit.WithLogger(logger),
		groupkit.WithTermination(groupkit.Or(
			groupkit.NewMaxMessages(7),
			groupkit.NewTextMention("APPROVE", "critic"),
		)),
		// Exact token accounting; falls back to estimation when the
		// encoding cannot be loaded.
		groupkit.WithTokenCounter(tokenizer.NewTiktoken("")),
	}
	if cfg.Orchestration.ResponseTimeout > 0 {
		opts = append(opts, groupkit.WithResponseTimeout(cfg.Orchestration.ResponseTimeout))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, groupkit.WithMetricsRegistry(prometheus.NewRegistry()))
	}

	mgr, err := groupkit.NewManager(demoAgents(), strategy, opts...)
	if err != nil {
		logger.Fatal("manager setup failed", zap.Error(err))
	}
	defer mgr.Close()

	result, err := mgr.Run(context.Background(), *task)
	if err != nil {
		logger.Fatal("demo run failed", zap.Error(err))
	}

	for _, msg := range result.Messages {
		fmt.Printf("[%s] %s\n", msg.Source, msg.Render())
	}
	fmt.Printf("\nstopped: %s (%d messages, %d tokens)\n",
		result.StopReason, len(result.Messages), result.Usage.TotalTokens)

	store, err := openStore(cfg)
	if err != nil {
		logger.Warn("checkpointing disabled", zap.Error(err))
		return
	}
	defer store.Close()

	cp := checkpoint.New("demo", *mgr.Snapshot())
	if err := store.Save(context.Background(), cp); err != nil {
		logger.Warn("checkpoint save failed", zap.Error(err))
		return
	}
	logger.Info("checkpoint saved",
		zap.String("checkpoint_id", cp.ID),
		zap.String("backend", cfg.Checkpoint.Backend),
	)
}

func runCheckpoints(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: groupkit checkpoints <list|show|delete> [options]")
		os.Exit(1)
	}
	sub := args[0]

	fs := flag.NewFlagSet("checkpoints "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	runID := fs.String("run", "demo", "Run identifier")
	id := fs.String("id", "", "Checkpoint identifier")
	fs.Parse(args[1:])

	cfg := loadConfig(*configPath)
	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open checkpoint store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch sub {
	case "list":
		cps, err := store.List(ctx, *runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		for _, cp := range cps {
			fmt.Printf("%s  %s  %d messages\n",
				cp.ID, cp.CreatedAt.Format(time.RFC3339), len(cp.Snapshot.MessageThread))
		}
	case "show":
		cp, err := loadByFlag(ctx, store, *id, *runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Show failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("checkpoint %s (run %s, created %s)\n",
			cp.ID, cp.RunID, cp.CreatedAt.Format(time.RFC3339))
		for _, msg := range cp.Snapshot.MessageThread {
			fmt.Printf("[%s] %s\n", msg.Source, msg.Render())
		}
	case "delete":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "Delete requires --id")
			os.Exit(1)
		}
		if err := store.Delete(ctx, *id); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("deleted", *id)
	default:
		fmt.Fprintf(os.Stderr, "Unknown checkpoints subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func loadByFlag(ctx context.Context, store checkpoint.Store, id, runID string) (*checkpoint.Checkpoint, error) {
	if id != "" {
		return store.Load(ctx, id)
	}
	return store.LoadLatest(ctx, runID)
}

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore builds the checkpoint backend selected in the configuration.
// Note the memory backend does not persist across CLI invocations; it is
// still selectable so the demo runs without any setup.
func openStore(cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "", "memory":
		return checkpoint.NewMemoryStore(), nil
	case "file":
		return checkpoint.NewFileStore(cfg.Checkpoint.Dir)
	case "redis":
		return checkpoint.NewRedisStore(checkpoint.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

// demoAgent produces canned turns so the demo needs no model access.
type demoAgent struct {
	name  string
	turns []string
	next  int
}

func (a *demoAgent) Name() string        { return a.name }
func (a *demoAgent) Description() string { return "built-in demo agent" }

func (a *demoAgent) OnMessages(_ context.Context, _ []types.Message) (types.Response, error) {
	turn := a.turns[a.next%len(a.turns)]
	a.next++
	return types.Response{Message: types.NewTextMessage(a.name, turn)}, nil
}

func (a *demoAgent) ProducedMessageTypes() []types.Kind { return []types.Kind{types.KindText} }

func demoAgents() []groupkit.Agent {
	return []groupkit.Agent{
		&demoAgent{name: "writer", turns: []string{
			"Draft: we are launching next week, stay tuned.",
			"Revised draft: GroupKit 1.0 ships next week with graph scheduling and checkpointed runs.",
		}},
		&demoAgent{name: "critic", turns: []string{
			"Too vague, name the product and the date.",
			"APPROVE",
		}},
	}
}

func printVersion() {
	fmt.Printf("groupkit %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(strings.TrimSpace(`
groupkit - multi-agent group orchestration

Usage:
  groupkit <command> [options]

Commands:
  demo         Run the built-in demo conversation
  checkpoints  Inspect persisted run checkpoints
  version      Show version information
  help         Show this help message

Options for 'demo':
  --config <path>  Path to configuration file (YAML)
  --task <text>    Task to seed the group with

Checkpoints subcommands:
  checkpoints list   [--run <id>]
  checkpoints show   [--id <checkpoint>] [--run <id>]
  checkpoints delete --id <checkpoint>

Examples:
  groupkit demo
  groupkit demo --config /etc/groupkit/config.yaml
  groupkit checkpoints list --run demo
  groupkit version`))
}
