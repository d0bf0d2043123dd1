package config

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/redis/go-redis/v9"
)

// ErrOpeningDatabaseFailed is returned when a database pool could not be opened or reached.
var ErrOpeningDatabaseFailed = errors.New("opening database failed")

// PGXPoolConfig creates the pgxpool.Config of the Config.
func (c Config) PGXPoolConfig() (*pgxpool.Config, error) {
	dbConfig, err := pgxpool.ParseConfig(c.DBDSN)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	dbConfig.MaxConns = c.DBMaxConns
	dbConfig.MinConns = c.DBMinConns
	dbConfig.MaxConnLifetime = c.DBMaxConnLifetime
	dbConfig.MaxConnIdleTime = c.DBMaxConnIdleTime
	dbConfig.HealthCheckPeriod = c.DBHealthCheckPeriod
	dbConfig.ConnConfig.ConnectTimeout = c.DBConnectTimeout

	return dbConfig, nil
}

// OpenPGXPool opens and pings a pgx pool.
func (c Config) OpenPGXPool(ctx context.Context) (*pgxpool.Pool, error) {
	dbConfig, err := c.PGXPoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	return pool, nil
}

// OpenSQLDB opens and pings a *sql.DB on the lib/pq driver.
func (c Config) OpenSQLDB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.DBDSN)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	c.tune(db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	return db, nil
}

// OpenSQLX opens and pings a *sqlx.DB on the lib/pq driver.
func (c Config) OpenSQLX(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", c.DBDSN)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	c.tune(db.DB)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	return db, nil
}

func (c Config) tune(db *sql.DB) {
	db.SetMaxOpenConns(int(c.DBMaxConns))
	db.SetMaxIdleConns(int(c.DBMinConns))
	db.SetConnMaxLifetime(c.DBMaxConnLifetime)
	db.SetConnMaxIdleTime(c.DBMaxConnIdleTime)
}

// RedisOptions returns the options of the Redis client carrying the event streams.
func (c Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
