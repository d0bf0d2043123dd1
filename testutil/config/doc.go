// Package config provides PostgreSQL database configuration for engine tests.
//
// This package contains factory functions for creating database connections
// using the engine's supported PostgreSQL adapters (pgx.Pool, sql.DB, sqlx.DB)
// with the pre-configured test database DSN.
package config
