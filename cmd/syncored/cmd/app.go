// Package cmd provides the syncored CLI commands: index, search, status,
// sync, clear, health, and serve (the stdio RPC tool transport). One file
// per command.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/amanmcp/syncore/internal/config"
	"github.com/amanmcp/syncore/internal/freshness"
	"github.com/amanmcp/syncore/internal/indexer/chunk"
	"github.com/amanmcp/syncore/internal/indexer/embed"
	"github.com/amanmcp/syncore/internal/observability"
	"github.com/amanmcp/syncore/internal/syncctl"
	"github.com/amanmcp/syncore/internal/vectorstore"
	"github.com/amanmcp/syncore/internal/vectorstore/embedded"
	"github.com/amanmcp/syncore/internal/vectorstore/remote"
)

// appFlags are the persistent flags every subcommand shares.
type appFlags struct {
	path       string
	configDir  string
	embeddedVS bool
	noColor    bool
}

var flags appFlags

// app bundles the process-wide collaborators a command needs: the Manager,
// the freshness Gate, and the connection pool backing the remote vector
// store adapter, if configured.
type app struct {
	cfg     *appconfig.Config
	manager *syncctl.Manager
	gate    *freshness.Gate
	pool    *vectorstore.ConnectionPool
	logger  *slog.Logger
}

// resolvePath returns the absolute codebase root, defaulting to the
// working directory. Absolute paths are required downstream.
func resolvePath() (string, error) {
	p := flags.path
	if p == "" {
		var err error
		p, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Abs(p)
}

// newApp loads configuration for the resolved codebase root and wires the
// process-wide collaborators, each controlled by its own config keys. In
// --embedded mode the vector store is the in-process reference adapter and
// vector_store.address is not required.
func newApp(ctx context.Context) (*app, string, error) {
	root, err := resolvePath()
	if err != nil {
		return nil, "", err
	}

	logger := newLogger()

	configDir := flags.configDir
	if configDir == "" {
		configDir = root
	}
	cfg, err := appconfig.Load(configDir, logger)
	if err != nil {
		return nil, "", err
	}
	if !flags.embeddedVS {
		if err := cfg.Validate(); err != nil {
			return nil, "", fmt.Errorf("config: %w (pass --embedded for a local in-process store)", err)
		}
	}

	metrics := observability.NewMetricsCollector()

	var store vectorstore.Adapter
	var pool *vectorstore.ConnectionPool

	if flags.embeddedVS || cfg.VectorStore.Address == "" {
		store = embedded.New()
	} else {
		pool = vectorstore.NewConnectionPool(cfg.PoolIdleReap(), closeRedis, logger, metrics)
		key := vectorstore.PoolKey{
			Address:  cfg.VectorStore.Address,
			HasToken: cfg.VectorStore.Token != "",
		}
		remoteCfg := remote.Config{Address: cfg.VectorStore.Address, Password: cfg.VectorStore.Token}
		conn, acqErr := pool.Acquire(key, func() (any, error) { return remote.Dial(remoteCfg) })
		if acqErr != nil {
			return nil, "", fmt.Errorf("dial vector store: %w", acqErr)
		}
		store = remote.New(conn.(*redis.Client), remoteCfg, logger)
	}

	tracer, tracerErr := observability.NewTracer(ctx, observability.TracerConfig{Enabled: false})
	if tracerErr != nil {
		logger.Warn("syncored: tracer init failed, continuing without tracing", "error", tracerErr)
	}
	reporter := observability.NewErrorReporter("", "", logger)

	mgr := syncctl.NewManager(syncctl.ManagerConfig{
		StateDir:         cfg.StateDir,
		Store:            store,
		Chunker:          chunk.NewASTSplitter(),
		Embedder:         embed.NewStatic(),
		Logger:           logger,
		Metrics:          metrics,
		Tracer:           tracer,
		Reporter:         reporter,
		ChunkBudget:      cfg.ChunkBudget,
		FullScanInterval: cfg.FullScanInterval(),
		DebounceWindow:   cfg.DebounceWindow(),
		AutoEnableRT:     cfg.RealtimeSync.AutoEnable,
	})

	gate := freshness.New(cfg.FreshnessGate.Enabled, cfg.FreshnessCacheTTL(), logger, metrics)

	return &app{cfg: cfg, manager: mgr, gate: gate, pool: pool, logger: logger}, root, nil
}

func (a *app) Close(ctx context.Context) {
	a.manager.Shutdown(ctx)
	if a.pool != nil {
		a.pool.Stop()
	}
}

func closeRedis(conn any) error {
	rdb, ok := conn.(*redis.Client)
	if !ok {
		return nil
	}
	return rdb.Close()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
