package config

import (
	"context"
	"database/sql"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/librarystack/inventory-storage-go/config"
)

// PostgresTestConfig returns the service Config pointing at the test database.
func PostgresTestConfig() config.Config {
	return config.Config{
		DBDSN:               PostgresTestDSN(),
		DBMaxConns:          20,
		DBMinConns:          2,
		DBMaxConnLifetime:   defaultMaxConnLifetime,
		DBMaxConnIdleTime:   defaultMaxConnIdleTime,
		DBHealthCheckPeriod: defaultHealthCheckPeriod,
		DBConnectTimeout:    defaultConnectTimeout,
		MaxBatchSize:        10000,
	}
}

// PostgresPGXPoolTestConfig creates a pgxpool.Config for the test database.
func PostgresPGXPoolTestConfig() *pgxpool.Config {
	dbConfig, err := PostgresTestConfig().PGXPoolConfig()
	if err != nil {
		log.Fatal("Failed to create a config, error: ", err)
	}

	return dbConfig
}

// PostgresSQLDBTestConfig creates a configured *sql.DB for the test database.
func PostgresSQLDBTestConfig() *sql.DB {
	db, err := PostgresTestConfig().OpenSQLDB(context.Background())
	if err != nil {
		log.Fatal("Failed to open database connection, error: ", err)
	}

	return db
}

// PostgresSQLXTestConfig creates a configured *sqlx.DB for the test database.
func PostgresSQLXTestConfig() *sqlx.DB {
	db, err := PostgresTestConfig().OpenSQLX(context.Background())
	if err != nil {
		log.Fatal("Failed to open database connection, error: ", err)
	}

	return db
}
