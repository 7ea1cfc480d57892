// Package workflow dispatches queued batches to the batch driver.
//
// The Manager polls the queue for batches that still have pending records and
// have not halted, and drains up to workflow.max_concurrent_batches of them at
// a time, one goroutine per batch. Batches can also be force-started through
// StartBatch regardless of auto_start. The Sweeper reports in-flight records
// that have stopped making progress and publishes queue gauges; the daemon
// runs it on a cron schedule.
package workflow
