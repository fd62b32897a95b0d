// Package cli implements the njt command line interface: club
// identity management, event and tournament bookkeeping, result
// refreshes and synchronization against a remote sync server.
package cli
