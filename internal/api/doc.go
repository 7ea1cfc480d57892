// Package api is the daemon's HTTP surface and its wire-format types.
//
// Routes (all JSON):
//
//	POST   /api/batches               enqueue a batch
//	GET    /api/batches               list batch summaries
//	GET    /api/batches/:batch        one batch with its records
//	POST   /api/batches/:batch/start  force-start a batch
//	DELETE /api/queue                 clear the queue, or one batch with ?batch=
//	GET    /api/status                daemon and workflow status
//	GET    /metrics                   Prometheus exposition
//
// DTOs use camelCase JSON tags and RFC3339 timestamps. The CLI decodes the
// same types through internal/apiclient.
package api
