// Package metadata is the client for the descriptive-metadata repository.
//
// The repository issues session tokens on login. Client caches the token for
// the configured TTL and reuses it across record fetches until EndSession
// destroys it. Record decodes the subset of a descriptive record the ingest
// pipeline reads and keeps the raw document for archival in the repository
// record.
package metadata
