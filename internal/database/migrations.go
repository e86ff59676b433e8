package database

import (
	"context"
	"fmt"
	"time"
)

// Migration is one schema step. Statements run in order inside a single
// transaction and are written to be valid on both postgres and sqlite.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Migrations returns the schema history in version order
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_clients",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS clients (
					id                    TEXT PRIMARY KEY,
					account_number        TEXT NOT NULL,
					first_name            TEXT NOT NULL,
					middle_name           TEXT NOT NULL DEFAULT '',
					last_name             TEXT NOT NULL,
					contact_number        TEXT NOT NULL DEFAULT '',
					email                 TEXT NOT NULL DEFAULT '',
					address               TEXT NOT NULL DEFAULT '',
					meter_number          TEXT NOT NULL DEFAULT '',
					initial_meter_reading BIGINT NOT NULL DEFAULT 0 CHECK (initial_meter_reading >= 0),
					status                TEXT NOT NULL DEFAULT 'published',
					created_at            TIMESTAMP NOT NULL,
					updated_at            TIMESTAMP NOT NULL,
					created_by            TEXT NOT NULL DEFAULT '',
					updated_by            TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_account_number ON clients (account_number)`,
				`CREATE INDEX IF NOT EXISTS idx_clients_created_at ON clients (created_at, id)`,
			},
		},
		{
			Version: 2,
			Name:    "create_bills",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS bills (
					id                 TEXT PRIMARY KEY,
					client_id          TEXT NOT NULL REFERENCES clients (id),
					previous_reading   BIGINT NOT NULL CHECK (previous_reading >= 0),
					current_reading    BIGINT NOT NULL,
					consumption        BIGINT NOT NULL,
					bill_amount        NUMERIC(12,2) NOT NULL,
					currency           TEXT NOT NULL,
					payment_status     TEXT NOT NULL,
					payment_amount     NUMERIC(12,2) NOT NULL DEFAULT 0,
					remaining_balance  NUMERIC(12,2) NOT NULL DEFAULT 0,
					payment_excess     NUMERIC(12,2) NOT NULL DEFAULT 0,
					payment_date       TIMESTAMP NULL,
					due_date           TIMESTAMP NOT NULL,
					disconnection_date TIMESTAMP NULL,
					version            BIGINT NOT NULL DEFAULT 1,
					status             TEXT NOT NULL DEFAULT 'published',
					created_at         TIMESTAMP NOT NULL,
					updated_at         TIMESTAMP NOT NULL,
					created_by         TEXT NOT NULL DEFAULT '',
					updated_by         TEXT NOT NULL DEFAULT '',
					CHECK (current_reading >= previous_reading),
					CHECK (remaining_balance >= 0 AND payment_excess >= 0)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_bills_client_created_at ON bills (client_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_bills_payment_status ON bills (payment_status)`,
				// at most one unpaid or underpaid bill per client
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_one_open_per_client ON bills (client_id) WHERE payment_status IN ('unpaid', 'underpaid')`,
			},
		},
		{
			Version: 3,
			Name:    "create_partial_payments",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS partial_payments (
					id              TEXT PRIMARY KEY,
					bill_id         TEXT NOT NULL REFERENCES bills (id),
					client_id       TEXT NOT NULL REFERENCES clients (id),
					amount_paid     NUMERIC(12,2) NOT NULL CHECK (amount_paid > 0),
					payment_date    TIMESTAMP NOT NULL,
					idempotency_key TEXT NOT NULL,
					status          TEXT NOT NULL DEFAULT 'published',
					created_at      TIMESTAMP NOT NULL,
					updated_at      TIMESTAMP NOT NULL,
					created_by      TEXT NOT NULL DEFAULT '',
					updated_by      TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_partial_payments_idempotency_key ON partial_payments (idempotency_key)`,
				`CREATE INDEX IF NOT EXISTS idx_partial_payments_bill ON partial_payments (bill_id, payment_date)`,
			},
		},
		{
			Version: 4,
			Name:    "create_connection_statuses",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS connection_statuses (
					id                TEXT PRIMARY KEY,
					client_id         TEXT NOT NULL REFERENCES clients (id),
					connection_status TEXT NOT NULL,
					reason            TEXT NOT NULL DEFAULT '',
					bill_id           TEXT NULL REFERENCES bills (id),
					effective_at      TIMESTAMP NOT NULL,
					status            TEXT NOT NULL DEFAULT 'published',
					created_at        TIMESTAMP NOT NULL,
					updated_at        TIMESTAMP NOT NULL,
					created_by        TEXT NOT NULL DEFAULT '',
					updated_by        TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS idx_connection_statuses_client ON connection_statuses (client_id, effective_at, id)`,
			},
		},
	}
}

const createSchemaMigrations = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL
)`

// PendingMigrations returns the migrations not yet recorded in schema_migrations
func (db *DB) PendingMigrations(ctx context.Context) ([]Migration, error) {
	if _, err := db.ExecContext(ctx, createSchemaMigrations); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var applied []int
	if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	var pending []Migration
	for _, m := range Migrations() {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Migrate applies every pending migration, each in its own transaction
func (db *DB) Migrate(ctx context.Context) error {
	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range pending {
		err := db.WithTx(ctx, func(ctx context.Context) error {
			q := db.GetQuerier(ctx)
			for _, stmt := range m.Statements {
				if _, err := q.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s) failed on: %s - %w", m.Version, m.Name, stmt, err)
				}
			}
			_, err := q.ExecContext(ctx,
				q.Rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
				m.Version, m.Name, time.Now().UTC(),
			)
			return err
		})
		if err != nil {
			return err
		}

		db.logger.Infow("applied migration",
			"version", m.Version,
			"name", m.Name,
		)
	}
	return nil
}
