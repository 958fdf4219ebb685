// Package eventstore persists rolled events submitted by club consoles.
//
// Stores:
//   - FileStore: a JSON document shaped like model.EventsFile
//   - PostgresStore: the rolled_events table
//
// Handler serves POST /api/events, GET /api/events and GET /health over
// either store.
package eventstore
