// Command accession is the operator CLI for the accession ingest daemon.
//
// Queue and batch commands talk to accessiond over its HTTP API when it is
// running and fall back to the queue database otherwise, so batches can be
// inspected and enqueued while the daemon is down. Force-starting a batch
// and the daemon status view need the daemon.
package main
