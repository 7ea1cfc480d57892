// Package storage is the client for bulk object storage holding
// dissemination packages.
//
// Objects are addressed by key inside one configured space. Objects above the
// provider's chunk threshold are stored as chunks plus a chunk manifest whose
// key carries the manifest suffix; ObjectManifest reports whether such a
// manifest exists and decodes the source content checksum and size from it.
package storage
