package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    full_name     TEXT NOT NULL DEFAULT '',
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'warehouse', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS stock_items (
    id                TEXT PRIMARY KEY,
    owner_id          INTEGER NOT NULL REFERENCES users(id),
    material_name     TEXT NOT NULL,
    serial_lot_number TEXT NOT NULL,
    ubb_code          TEXT,
    expiry_date       TEXT,
    quantity          INTEGER NOT NULL CHECK (quantity > 0),
    date_added        TEXT NOT NULL,
    from_field        TEXT NOT NULL DEFAULT '',
    to_field          TEXT NOT NULL DEFAULT '',
    material_code     TEXT NOT NULL DEFAULT '',
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL,
    UNIQUE (material_name, serial_lot_number, owner_id)
);

CREATE INDEX IF NOT EXISTS idx_stock_items_owner ON stock_items(owner_id);

CREATE TABLE IF NOT EXISTS notifications (
    id            TEXT PRIMARY KEY,
    sender_id     INTEGER REFERENCES users(id),
    receiver_id   INTEGER NOT NULL REFERENCES users(id),
    type          TEXT NOT NULL CHECK (type IN ('TRANSFER_REQUEST', 'TRANSFER_RESULT')),
    title         TEXT NOT NULL,
    content       TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'READ', 'PROCESSED')),
    action_status TEXT NOT NULL DEFAULT 'NONE' CHECK (action_status IN ('NONE', 'WAITING', 'APPROVED', 'REJECTED')),
    created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_receiver ON notifications(receiver_id, created_at);

CREATE TABLE IF NOT EXISTS transfer_lines (
    notification_id   TEXT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
    position          INTEGER NOT NULL,
    material_name     TEXT NOT NULL,
    serial_lot_number TEXT NOT NULL,
    ubb_code          TEXT,
    expiry_date       TEXT,
    quantity          INTEGER NOT NULL CHECK (quantity > 0),
    date_added        TEXT NOT NULL,
    from_field        TEXT NOT NULL DEFAULT '',
    to_field          TEXT NOT NULL DEFAULT '',
    material_code     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (notification_id, position)
);

CREATE TABLE IF NOT EXISTS history_records (
    id              TEXT PRIMARY KEY,
    owner_id        INTEGER NOT NULL REFERENCES users(id),
    record_date     DATETIME NOT NULL,
    type            TEXT NOT NULL,
    description     TEXT NOT NULL,
    details_json    TEXT NOT NULL DEFAULT '{}',
    notification_id TEXT REFERENCES notifications(id) ON DELETE SET NULL,
    created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_owner_date ON history_records(owner_id, record_date);

CREATE TABLE IF NOT EXISTS case_records (
    id            TEXT PRIMARY KEY,
    owner_id      INTEGER NOT NULL REFERENCES users(id),
    case_date     TEXT NOT NULL,
    hospital_name TEXT NOT NULL,
    doctor_name   TEXT NOT NULL,
    patient_name  TEXT NOT NULL,
    notes         TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS case_materials (
    id                TEXT PRIMARY KEY,
    case_id           TEXT NOT NULL REFERENCES case_records(id) ON DELETE CASCADE,
    material_name     TEXT NOT NULL,
    serial_lot_number TEXT NOT NULL,
    ubb_code          TEXT,
    quantity          INTEGER NOT NULL CHECK (quantity > 0)
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id          INTEGER PRIMARY KEY,
    username    TEXT NOT NULL,
    action      TEXT NOT NULL,
    entity_name TEXT NOT NULL DEFAULT '',
    entity_id   TEXT NOT NULL DEFAULT '',
    details     TEXT NOT NULL DEFAULT '',
    timestamp   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_history_notification
	     ON history_records(notification_id) WHERE notification_id IS NOT NULL`,
}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies migrations.
func EnsureSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
