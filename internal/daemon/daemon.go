package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"accession/internal/api"
	"accession/internal/background"
	"accession/internal/config"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/workflow"
)

const shutdownTimeout = 10 * time.Second

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another accessiond instance is already running")

// Parts are the components a daemon coordinates. Tracker, Sweeper, Notifier,
// Metrics and Closers are optional.
type Parts struct {
	Store    *queue.Store
	Manager  *workflow.Manager
	Queue    *api.QueueService
	Tracker  *background.Tracker
	Sweeper  *workflow.Sweeper
	Notifier api.QueueNotifier
	Metrics  http.Handler
	Closers  []io.Closer
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	parts  Parts

	lockPath string
	lock     *flock.Flock
	api      *apiServer
	cron     *cron.Cron

	running   atomic.Bool
	startedAt atomic.Pointer[time.Time]
	cancel    context.CancelFunc
}

// New constructs a daemon. The API server is only created when
// paths.api_bind is set.
func New(cfg *config.Config, parts Parts, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || parts.Store == nil || parts.Manager == nil || parts.Queue == nil {
		return nil, errors.New("daemon requires config, queue store, queue service, and batch manager")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		parts:    parts,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	router := api.NewRouter(api.Deps{
		Queue:     parts.Queue,
		Scheduler: parts.Manager,
		Notifier:  parts.Notifier,
		Status:    d.Status,
		Metrics:   parts.Metrics,
		Logger:    logger,
	})
	d.api = newAPIServer(cfg.Paths.APIBind, router, d.logger)
	return d, nil
}

// Start acquires the daemon lock and launches the batch manager and the
// sweep schedule.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.parts.Manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start batch manager: %w", err)
	}
	if err := d.startSweeps(runCtx); err != nil {
		d.parts.Manager.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	now := time.Now().UTC()
	d.startedAt.Store(&now)
	d.running.Store(true)
	d.logger.Info("accession daemon started",
		logging.Event("daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Bool("auto_start", d.cfg.Workflow.AutoStart),
	)
	return nil
}

// Serve starts the daemon and blocks serving the API until ctx is done or
// the listener fails. The daemon is stopped before Serve returns.
func (d *Daemon) Serve(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	group, groupCtx := errgroup.WithContext(ctx)
	if d.api != nil {
		group.Go(func() error { return d.api.serve(groupCtx) })
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})
	return group.Wait()
}

// Stop halts scheduling, cancels draining batches and background tasks, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cron != nil {
		<-d.cron.Stop().Done()
		d.cron = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.parts.Manager.Stop()
	if d.parts.Tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.parts.Tracker.Shutdown(ctx); err != nil {
			logging.WarnWithContext(d.logger, "background tasks did not finish", "background_shutdown_timeout",
				logging.Error(err),
				logging.String(logging.FieldImpact, "derivative requests may need to be repeated"),
			)
		}
		cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("accession daemon stopped", logging.Event("daemon_stopped"))
}

// Close stops the daemon and releases the stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	for _, closer := range d.parts.Closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.parts.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addr returns the address the API server listens on once serving.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.parts.Store.Path(),
		LockFilePath: d.lockPath,
		Workflow:     api.FromStatusSummary(d.parts.Manager.Status(ctx)),
	}
	if started := d.startedAt.Load(); started != nil {
		status.StartedAt = started.Format(time.RFC3339)
	}
	if d.parts.Tracker != nil {
		summary := d.parts.Tracker.Summary()
		status.Background = api.Background{
			Active:    len(summary.Active),
			Completed: summary.Completed,
			Failed:    summary.Failed,
			LastError: summary.LastError,
		}
	}
	return status
}
