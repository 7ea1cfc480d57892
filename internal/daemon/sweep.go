package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"accession/internal/config"
	"accession/internal/logging"
)

func (d *Daemon) startSweeps(ctx context.Context) error {
	schedule := strings.TrimSpace(d.cfg.Workflow.SweepSchedule)
	if d.parts.Sweeper == nil || schedule == "" {
		return nil
	}
	c := cron.New(cron.WithParser(config.SweepParser()), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { d.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule queue sweep: %w", err)
	}
	c.Start()
	d.cron = c
	return nil
}

func (d *Daemon) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stale, err := d.parts.Sweeper.Run(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "queue sweep failed", "sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	if len(stale) > 0 {
		d.logger.Info("queue sweep finished",
			logging.Event("sweep_complete"),
			logging.Int("stale", len(stale)),
		)
	}
}
