package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/internal/config"
	"github.com/caseforge/caseforge/internal/dbpool"
	"github.com/caseforge/caseforge/internal/metrics"
	"github.com/caseforge/caseforge/internal/service"
	"github.com/caseforge/caseforge/internal/store"
)

// Build-time variables set via ldflags.
var (
	commit    = ""
	buildDate = ""
)

var flagFmt string

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("caseforge version %s (commit: %s, built: %s)", config.Version, commit, buildDate)
	}
	return fmt.Sprintf("caseforge version %s", config.Version)
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "caseforge",
		Short:        "Caseforge CLI — case-management data engine for security alerts",
		Version:      versionString(),
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")

	metrics.Register(prometheus.DefaultRegisterer)

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newNodeCmd())
	rootCmd.AddCommand(newTreeCmd())
	rootCmd.AddCommand(newVocabCmd())
	rootCmd.AddCommand(newAuditCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// engine bundles the configured services behind one connection pool for
// one-shot CLI commands.
type engine struct {
	cfg  *config.Config
	log  *logrus.Logger
	pool *dbpool.Pool

	nodes   *service.NodeService
	trees   *service.TreeService
	vocab   *service.VocabService
	history *service.HistoryService
	audit   *service.AuditService

	stopAudit  context.CancelFunc
	auditsDone chan struct{}
}

// openEngine loads configuration, connects to the database, and wires the
// stores and services. Callers must close() the engine before exiting so the
// audit queue drains.
func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	base := store.Base{Pool: pool, Log: log, Notifications: cfg.NotifyChanges}

	auditSvc := service.NewAuditService(store.NewAuditStore(base), log)
	auditWorker := service.NewAuditWorker(auditSvc, log, 100)

	workerCtx, stopAudit := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		auditWorker.Run(workerCtx)
	}()

	return &engine{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		nodes:      service.NewNodeService(store.NewNodeStore(base), auditWorker, log),
		trees:      service.NewTreeService(store.NewTreeStore(base), auditWorker, log),
		vocab:      service.NewVocabService(store.NewVocabStore(base), auditWorker, log),
		history:    service.NewHistoryService(store.NewHistoryStore(base), log),
		audit:      auditSvc,
		stopAudit:  stopAudit,
		auditsDone: done,
	}, nil
}

// close drains the audit queue and releases the connection pool.
func (e *engine) close() {
	e.stopAudit()
	<-e.auditsDone
	e.pool.Close()
}

// withEngine opens the engine, runs fn, and tears down afterwards.
func withEngine(fn func(ctx context.Context, e *engine) error) {
	ctx := context.Background()

	e, err := openEngine(ctx)
	if err != nil {
		fatal("initialize engine", err)
	}

	err = fn(ctx, e)
	e.close()

	if err != nil {
		fatal("command", err)
	}
}
