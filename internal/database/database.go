package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens and verifies the Postgres connection
func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("🔌 Connecting to Postgres...")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connection established")
	return db, nil
}

// Migrate creates the schema. Statements are idempotent so it runs on
// every boot. All *_at columns are epoch milliseconds.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Back-office accounts (drivers log in with their code, not here)
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('admin')),
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS drivers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			fcm_token TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		// Login codes are unique regardless of case
		`CREATE UNIQUE INDEX IF NOT EXISTS drivers_code_lower_idx ON drivers (LOWER(code))`,

		// Deleting a driver unassigns their jobs, never deletes them
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL CHECK(status IN ('PENDING', 'TO_PICKUP', 'LOADING', 'TO_DROPOFF', 'UNLOADING', 'DONE')),
			pickup_address TEXT NOT NULL DEFAULT '',
			pickup_latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			pickup_longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			dropoff_address TEXT NOT NULL DEFAULT '',
			dropoff_latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			dropoff_longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			extra_stops JSONB NOT NULL DEFAULT '[]',
			stop_index INT,
			driver_id TEXT REFERENCES drivers(id) ON DELETE SET NULL,
			helpers_count INT NOT NULL DEFAULT 0,
			scheduled_date TEXT,
			scheduled_time TEXT,
			start_job_at BIGINT,
			start_loading_at BIGINT,
			end_loading_at BIGINT,
			start_trip_at BIGINT,
			end_trip_at BIGINT,
			start_unloading_at BIGINT,
			end_unloading_at BIGINT,
			distance_meters BIGINT NOT NULL DEFAULT 0,
			last_latitude DOUBLE PRECISION,
			last_longitude DOUBLE PRECISION,
			last_fix_at BIGINT,
			charged_amount DOUBLE PRECISION,
			notes TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			CHECK (distance_meters >= 0),
			CHECK (helpers_count >= 0)
		)`,

		`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status)`,
		`CREATE INDEX IF NOT EXISTS jobs_driver_idx ON jobs (driver_id)`,

		// Latest-only snapshot, one row per driver (upsert, never append)
		`CREATE TABLE IF NOT EXISTS driver_locations (
			driver_id TEXT PRIMARY KEY REFERENCES drivers(id) ON DELETE CASCADE,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			accuracy DOUBLE PRECISION,
			heading DOUBLE PRECISION,
			speed DOUBLE PRECISION,
			job_id TEXT REFERENCES jobs(id) ON DELETE SET NULL,
			updated_at BIGINT NOT NULL
		)`,

		// Flat key/value store for billing rates
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value DOUBLE PRECISION,
			updated_at BIGINT NOT NULL
		)`,
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("✅ Database migrations completed")
	return nil
}
