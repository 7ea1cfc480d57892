// Package queueaccess gives the CLI one view of the queue whether the daemon
// is running (HTTP API) or not (direct store access).
package queueaccess

import (
	"context"
	"errors"

	"accession/internal/api"
	"accession/internal/apiclient"
	"accession/internal/queue"
)

// Access provides queue operations regardless of API or direct store backing.
type Access interface {
	Enqueue(ctx context.Context, batch string, packages []string) (api.EnqueueResponse, error)
	Batches(ctx context.Context) ([]api.Batch, error)
	Describe(ctx context.Context, batch string) (*api.BatchDetail, error)
	Stats(ctx context.Context) (map[string]int, error)
	Clear(ctx context.Context, batch string) (api.ClearResponse, error)
	// Remote reports whether operations go through the daemon.
	Remote() bool
}

// NewAPIAccess returns an Access backed by the daemon API.
func NewAPIAccess(client *apiclient.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by the queue database. packages
// may be nil, in which case Enqueue requires an explicit package list.
func NewStoreAccess(store *queue.Store, packages api.PackageLister) Access {
	return &storeAccess{service: api.NewQueueService(store, packages, nil)}
}

// Resolve prefers the daemon and falls back to the store when the daemon
// cannot be reached. open is only called on fallback.
func Resolve(ctx context.Context, client *apiclient.Client, open func() (Access, error)) (Access, error) {
	if client != nil {
		_, err := client.Status(ctx)
		if err == nil {
			return NewAPIAccess(client), nil
		}
		if !errors.Is(err, apiclient.ErrUnavailable) {
			return nil, err
		}
	}
	return open()
}

type apiAccess struct {
	client *apiclient.Client
}

func (a *apiAccess) Enqueue(ctx context.Context, batch string, packages []string) (api.EnqueueResponse, error) {
	return a.client.Enqueue(ctx, batch, packages)
}

func (a *apiAccess) Batches(ctx context.Context) ([]api.Batch, error) {
	return a.client.Batches(ctx)
}

func (a *apiAccess) Describe(ctx context.Context, batch string) (*api.BatchDetail, error) {
	return a.client.Batch(ctx, batch)
}

func (a *apiAccess) Stats(ctx context.Context) (map[string]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.QueueStats, nil
}

func (a *apiAccess) Clear(ctx context.Context, batch string) (api.ClearResponse, error) {
	return a.client.ClearQueue(ctx, batch)
}

func (a *apiAccess) Remote() bool { return true }

type storeAccess struct {
	service *api.QueueService
}

func (s *storeAccess) Enqueue(ctx context.Context, batch string, packages []string) (api.EnqueueResponse, error) {
	return s.service.Enqueue(ctx, batch, packages)
}

func (s *storeAccess) Batches(ctx context.Context) ([]api.Batch, error) {
	return s.service.Batches(ctx)
}

func (s *storeAccess) Describe(ctx context.Context, batch string) (*api.BatchDetail, error) {
	return s.service.Describe(ctx, batch)
}

func (s *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return s.service.Stats(ctx)
}

func (s *storeAccess) Clear(ctx context.Context, batch string) (api.ClearResponse, error) {
	return s.service.Clear(ctx, batch)
}

func (s *storeAccess) Remote() bool { return false }
