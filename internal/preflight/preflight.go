package preflight

import (
	"context"
	"encoding/base64"
	"fmt"

	"accession/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckQueue(ctx, cfg.QueueDBPath()),
		CheckRepository(ctx, cfg.Repository.DatabaseURL),
	}
	for _, svc := range Services(cfg) {
		results = append(results, CheckService(ctx, svc))
	}
	return results
}

// Services lists the collaborator probes for cfg.
func Services(cfg *config.Config) []Service {
	services := []Service{
		{Name: "QA service", BaseURL: cfg.QA.BaseURL, Headers: apiKey(cfg.QA.APIKey)},
		{Name: "Metadata repository", BaseURL: cfg.Metadata.BaseURL},
		{Name: "Transfer processor", BaseURL: cfg.Transfer.BaseURL, Headers: map[string]string{
			"Authorization": fmt.Sprintf("ApiKey %s:%s", cfg.Transfer.Username, cfg.Transfer.APIKey),
		}},
		{Name: "Object storage", BaseURL: cfg.Storage.BaseURL, Headers: basicAuth(cfg.Storage.Username, cfg.Storage.Token)},
		{Name: "Handle service", BaseURL: cfg.Handle.BaseURL, Headers: apiKey(cfg.Handle.APIKey)},
		{Name: "Search index", BaseURL: cfg.Search.BaseURL},
	}
	if cfg.Derivatives.Enabled {
		services = append(services, Service{Name: "Derivative converter", BaseURL: cfg.Storage.ConvertURL})
	}
	return services
}

func apiKey(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"X-API-Key": key}
}

func basicAuth(user, token string) map[string]string {
	if user == "" && token == "" {
		return nil
	}
	return map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+token)),
	}
}
