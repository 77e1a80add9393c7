package repository

import "database/sql"

// RunMigrations 스키마 생성 (서비스 시작 시 실행)
func RunMigrations(db *sql.DB) error {
	stmts := []string{

		`CREATE TABLE IF NOT EXISTS payments (
			payment_id TEXT PRIMARY KEY,
			amount_minor BIGINT NOT NULL,
			currency TEXT NOT NULL,
			state TEXT NOT NULL,
			attempt INT NOT NULL,
			description TEXT,
			customer_email TEXT,
			checkout_url TEXT,
			checkout_expires_at TIMESTAMPTZ,
			provider_reference TEXT,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			version BIGINT NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_payments_state ON payments (state);`,

		`CREATE TABLE IF NOT EXISTS payment_events (
			event_id UUID PRIMARY KEY,
			payment_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload JSONB NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			version BIGINT NOT NULL,
			UNIQUE (payment_id, version)
		);`,

		`CREATE INDEX IF NOT EXISTS idx_payment_events_payment ON payment_events (payment_id, version);`,

		`CREATE TABLE IF NOT EXISTS outbox_events (
			id BIGSERIAL PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			sent_at TIMESTAMPTZ
		);`,

		`CREATE INDEX IF NOT EXISTS idx_outbox_events_status ON outbox_events (status, id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
