// Package qa is the client for the QA service that owns the batch intake
// area. It validates folder and package naming, pointer files and batch size,
// and moves packages through intake and the bulk upload channel.
package qa
