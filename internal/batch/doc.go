// Package batch drains a batch of queued packages.
//
// Driver.Drain runs the QA gate once for a batch, then feeds the oldest
// pending record to the per-package pipeline until the batch is exhausted or
// a package ends without success. Drains of different batches run
// concurrently; a second drain of the same batch is refused.
package batch
