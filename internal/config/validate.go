package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable. Collaborator URLs are only
// checked for shape here; RequireServices enforces their presence.
func (c *Config) Validate() error {
	if err := c.validateServiceURLs(); err != nil {
		return err
	}
	if err := c.validateQA(); err != nil {
		return err
	}
	if err := c.validateRepository(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

// RequireServices reports the first collaborator that has no base URL. The
// daemon calls it before starting the batch manager.
func (c *Config) RequireServices() error {
	required := []struct {
		key   string
		value string
	}{
		{"qa.base_url", c.QA.BaseURL},
		{"metadata.base_url", c.Metadata.BaseURL},
		{"transfer.base_url", c.Transfer.BaseURL},
		{"storage.base_url", c.Storage.BaseURL},
		{"handle.base_url", c.Handle.BaseURL},
		{"search.base_url", c.Search.BaseURL},
	}
	for _, entry := range required {
		if entry.value == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/accession/config.toml"
			}
			return fmt.Errorf("%s is required. Edit %s (create with 'accession config init')", entry.key, defaultPath)
		}
	}
	return nil
}

func (c *Config) validateServiceURLs() error {
	for key, value := range map[string]string{
		"qa.base_url":              c.QA.BaseURL,
		"metadata.base_url":        c.Metadata.BaseURL,
		"transfer.base_url":        c.Transfer.BaseURL,
		"storage.base_url":         c.Storage.BaseURL,
		"storage.convert_url":      c.Storage.ConvertURL,
		"handle.base_url":          c.Handle.BaseURL,
		"search.base_url":          c.Search.BaseURL,
		"notifications.ntfy_topic": c.Notifications.NtfyTopic,
	} {
		if value == "" {
			continue
		}
		parsed, err := url.Parse(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("%s must be an http or https URL", key)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%s must include a host", key)
		}
	}
	return nil
}

func (c *Config) validateQA() error {
	if c.QA.MaxBatchGB <= 0 {
		return errors.New("qa.max_batch_gb must be positive")
	}
	return nil
}

func (c *Config) validateRepository() error {
	dsn := c.Repository.DatabaseURL
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
	default:
		return fmt.Errorf("repository.database_url must start with sqlite:// or postgres:// (got %q)", dsn)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":    c.Workflow.QueuePollInterval,
		"workflow.max_concurrent_batches": c.Workflow.MaxConcurrentBatches,
		"workflow.upload_poll_interval":   c.Workflow.UploadPollInterval,
		"workflow.approval_poll_interval": c.Workflow.ApprovalPollInterval,
		"workflow.transfer_poll_interval": c.Workflow.TransferPollInterval,
		"workflow.ingest_poll_interval":   c.Workflow.IngestPollInterval,
		"workflow.stale_after_minutes":    c.Workflow.StaleAfterMinutes,
	}); err != nil {
		return err
	}
	if c.Workflow.PollMaxAttempts == 0 && c.Workflow.PollDeadlineMinutes == 0 {
		return errors.New("workflow.poll_max_attempts or workflow.poll_deadline_minutes must be set so polling loops terminate")
	}
	if c.Workflow.SweepSchedule != "" {
		if _, err := SweepParser().Parse(c.Workflow.SweepSchedule); err != nil {
			return fmt.Errorf("workflow.sweep_schedule: %w", err)
		}
	}
	return nil
}

// SweepParser parses workflow.sweep_schedule: five or six fields (seconds
// optional) or a descriptor such as @every 5m.
func SweepParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
