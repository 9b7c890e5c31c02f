package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Setting keys.
const (
	settingJWTSecret = "jwt_secret"
)

// GetSetting returns a setting value, or "" and false when unset.
func GetSetting(ctx context.Context, q sqlx.QueryerContext, key string) (string, bool, error) {
	var value string
	found, err := getOne(ctx, q, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if err != nil {
		return "", false, fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, found, nil
}

// PutSetting stores a setting, replacing any previous value.
func PutSetting(ctx context.Context, q sqlx.ExtContext, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storing setting %s: %w", key, err)
	}
	return nil
}

// GetJWTSecret returns the signing secret. A configured secret always wins;
// otherwise a random one is generated once and persisted.
// INSERT OR IGNORE followed by a re-read keeps concurrent startups consistent.
func GetJWTSecret(ctx context.Context, q sqlx.ExtContext, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		settingJWTSecret, hex.EncodeToString(buf),
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt secret: %w", err)
	}

	secret, _, err := GetSetting(ctx, q, settingJWTSecret)
	if err != nil {
		return "", err
	}
	return secret, nil
}
