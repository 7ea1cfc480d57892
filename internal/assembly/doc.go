// Package assembly gathers everything the finalizer needs once the transfer
// processor has ingested a package: the dissemination package location, its
// file list from the structural manifest, the descriptive record with its
// parts matched to files, the master file's fixity, and an optional
// transcript.
package assembly
