package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RevokeToken adds a token's JTI to the revocation list. Logging out twice
// with the same token is not an error.
func RevokeToken(ctx context.Context, q sqlx.ExtContext, jti string, expiresAt time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	// Expired revocations can never match a valid token again.
	_, _ = PurgeExpiredTokens(ctx, q)
	return nil
}

// PurgeExpiredTokens deletes revocations whose tokens have expired.
func PurgeExpiredTokens(ctx context.Context, q sqlx.ExtContext) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now())
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	return res.RowsAffected()
}

// IsTokenRevoked checks if a token's JTI has been revoked.
func IsTokenRevoked(ctx context.Context, q sqlx.QueryerContext, jti string) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, q, &count,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti); err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}
