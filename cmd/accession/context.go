package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"accession/internal/apiclient"
	"accession/internal/config"
	"accession/internal/queue"
	"accession/internal/queueaccess"
	"accession/internal/services/qa"
)

const apiTimeout = 15 * time.Second

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil {
		if addr := strings.TrimSpace(*c.apiFlag); addr != "" {
			return addr
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.APIBind
	}
	return ""
}

func (c *commandContext) client() (*apiclient.Client, error) {
	addr := c.apiAddress()
	if addr == "" {
		return nil, errors.New("daemon API address unknown; set paths.api_bind or pass --api")
	}
	return apiclient.New(addr, apiTimeout), nil
}

// withQueue runs fn against the daemon when it answers and against the queue
// database otherwise.
func (c *commandContext) withQueue(ctx context.Context, fn func(queueaccess.Access) error) error {
	var store *queue.Store
	defer func() {
		if store != nil {
			_ = store.Close()
		}
	}()

	client, _ := c.client()
	access, err := queueaccess.Resolve(ctx, client, func() (queueaccess.Access, error) {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		store, err = queue.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open queue database: %w", err)
		}
		if strings.TrimSpace(cfg.QA.BaseURL) == "" {
			return queueaccess.NewStoreAccess(store, nil), nil
		}
		return queueaccess.NewStoreAccess(store, qa.New(cfg.QA)), nil
	})
	if err != nil {
		return err
	}
	return fn(access)
}

// withDaemon runs fn against the daemon and explains how to start it when it
// is not reachable.
func (c *commandContext) withDaemon(fn func(*apiclient.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return wrapDaemonError(fn(client), c.apiAddress())
}

func wrapDaemonError(err error, addr string) error {
	if errors.Is(err, apiclient.ErrUnavailable) {
		return fmt.Errorf("daemon not reachable at %s; start it with `accessiond`", addr)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
