// Package database provides PostgreSQL connection pool management for the
// event store.
//
// The postgres store driver keeps rolled events in a single table; the file
// driver needs no database at all.
package database
