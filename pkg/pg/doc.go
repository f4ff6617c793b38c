// Package pg opens a pgx connection pool with retries, runs goose
// migrations from an fs.FS, and classifies common PostgreSQL errors.
package pg
