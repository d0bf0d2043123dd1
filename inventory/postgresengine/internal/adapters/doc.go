// Package adapters provide database adapter implementations for the PostgreSQL inventory engine.
//
// This package implements the adapter pattern to support multiple PostgreSQL database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, including transactions, so the engine can run a whole batch
// or cascade on one connection regardless of the connection type.
package adapters
