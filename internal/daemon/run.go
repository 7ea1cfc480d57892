package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"accession/internal/api"
	"accession/internal/background"
	"accession/internal/batch"
	"accession/internal/config"
	"accession/internal/logging"
	"accession/internal/metrics"
	"accession/internal/notifications"
	"accession/internal/queue"
	"accession/internal/repository"
	"accession/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the accession daemon and blocks until a signal arrives or the
// API listener fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.RequireServices(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loggerOpts := logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: opts.Development,
	}
	if opts.LogLevel != "" {
		loggerOpts.Level = opts.LogLevel
	}
	if cfg.Logging.File {
		loggerOpts.FilePath = cfg.LogFilePath()
	}
	logger, err := logging.New(loggerOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logCollaboratorSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "accessiond.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := Build(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Serve(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon stopped with error", "daemon_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.api_bind and the data directory lock"),
		)
		return err
	}
	logger.Info("accession daemon shutting down")
	return nil
}

// Build opens the stores and wires every component into a daemon. The
// returned daemon owns the stores; Close releases them.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	repo, err := repository.Open(cfg.Repository)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open repository: %w", err)
	}

	recorder := metrics.New()
	notifier := notifications.NewObserver(notifications.NewService(cfg.Notifications), cfg.Notifications, logger)
	tracker := background.New(ctx, cfg.Derivatives.MaxConcurrent, logger)
	clients := batch.NewClients(cfg)

	driver := batch.Build(cfg, store, repo, clients, logger, batch.Options{
		Tracker:   tracker,
		Hooks:     recorder.Hooks(),
		Observers: []batch.Observer{recorder, notifier},
	})
	manager := workflow.NewManager(cfg.Workflow, store, driver, logger,
		workflow.Pinger("queue", func(ctx context.Context) error {
			_, err := store.CheckHealth(ctx)
			return err
		}),
		workflow.Pinger("repository", repo.Ping),
	)

	return New(cfg, Parts{
		Store:    store,
		Manager:  manager,
		Queue:    api.NewQueueService(store, clients.QA, driver),
		Tracker:  tracker,
		Sweeper:  workflow.NewSweeper(store, recorder, cfg.StaleAfter(), logger),
		Notifier: notifier,
		Metrics:  recorder.Handler(),
		Closers:  []io.Closer{repo},
	}, logger)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logCollaboratorSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("collaborator snapshot",
		logging.Event("collaborator_snapshot"),
		logging.Group("services",
			logging.String("qa", cfg.QA.BaseURL),
			logging.String("metadata", cfg.Metadata.BaseURL),
			logging.String("transfer", cfg.Transfer.BaseURL),
			logging.String("storage", cfg.Storage.BaseURL),
			logging.String("handle", cfg.Handle.BaseURL),
			logging.String("search", cfg.Search.BaseURL),
		),
		logging.Bool("derivatives", cfg.Derivatives.Enabled),
		logging.Bool("notifications", cfg.Notifications.NtfyTopic != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
