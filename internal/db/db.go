// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var DB *sql.DB

// Init opens the global connection and bootstraps the schema. It exits on failure.
func Init(ctx context.Context, dsn string) {
	conn, err := Connect(ctx, dsn)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		logrus.Fatalf("failed to create schema: %v", err)
	}
	DB = conn
	logrus.Info("✅ Connected to database")
}

// Connect opens a pool and pings it, retrying while the database comes up.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	err = backoff.RetryNotify(
		func() error { return conn.PingContext(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logrus.WithError(err).Warnf("database not reachable, retrying in %s", next)
		},
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return conn, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT 'WhatsApp',
		status TEXT NOT NULL DEFAULT 'Draft',
		sender_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		content2 TEXT NOT NULL DEFAULT '',
		delay_seconds INTEGER NOT NULL DEFAULT 120,
		stats_sent INTEGER NOT NULL DEFAULT 0,
		stats_failed INTEGER NOT NULL DEFAULT 0,
		stats_total INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_queue (
		id SERIAL PRIMARY KEY,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		recipient_name TEXT NOT NULL DEFAULT '',
		recipient_phone TEXT NOT NULL,
		recipient_email TEXT NOT NULL DEFAULT '',
		recipient_data JSONB NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'Pending',
		claimed_at TIMESTAMPTZ,
		sent_at TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (campaign_id, recipient_phone)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaign_queue_status ON campaign_queue (campaign_id, status)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		custom_fields JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS whatsapp_integrations (
		sender_id TEXT PRIMARY KEY,
		base_url TEXT NOT NULL,
		api_key TEXT NOT NULL,
		instance TEXT NOT NULL
	)`,
}

// Migrate creates the tables the service needs if they do not exist yet.
func Migrate(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
