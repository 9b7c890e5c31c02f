package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/model"
)

// DefaultAuditLimit caps ListAudit when no limit is given.
const DefaultAuditLimit = 200

// LogAudit records a security-relevant event.
func LogAudit(ctx context.Context, q sqlx.ExtContext, username, action, entityName, entityID, details string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_logs (username, action, entity_name, entity_id, details, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		username, action, entityName, entityID, details, now(),
	)
	if err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// ListAudit returns the newest audit events.
func ListAudit(ctx context.Context, q sqlx.QueryerContext, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	var logs []model.AuditLog
	err := sqlx.SelectContext(ctx, q, &logs,
		`SELECT id, username, action, entity_name, entity_id, details, timestamp
		 FROM audit_logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	return logs, nil
}
