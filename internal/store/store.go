// Package store holds the persistence operations of the stock ledger, the
// transfer workflow, notifications, history and the supporting user/auth tables.
//
// Functions that run a single statement accept sqlx.ExtContext so they work
// with both *sqlx.DB and *sqlx.Tx. Functions that must be atomic take *sqlx.DB
// and open their own transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/db"
)

// now is the server clock; tests may replace it.
var now = func() time.Time { return time.Now().UTC() }

// inTx runs fn inside a transaction, committing only if fn succeeds.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// getOne runs a single-row query into dest, returning false when no row matched.
func getOne(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) (bool, error) {
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// likePattern builds a LIKE pattern for substring search against fold()ed
// columns, escaping LIKE wildcards with a backslash.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(db.Fold(s)) + "%"
}

func marshalDetails(details map[string]any) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("encoding details: %w", err)
	}
	return string(b), nil
}
