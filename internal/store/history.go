package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
)

const historyColumns = `id, owner_id, record_date, type, description, details_json, notification_id, created_at`

// AddHistory appends an entry to owner's activity feed.
func AddHistory(ctx context.Context, q sqlx.ExtContext, ownerID int64, typ, description string, details map[string]any) (*model.HistoryRecord, error) {
	if _, err := requireActiveUser(ctx, q, ownerID, "history owner"); err != nil {
		return nil, err
	}
	return addHistory(ctx, q, ownerID, typ, description, details, nil)
}

// addHistory inserts without checking that the owner is still active. The
// transfer workflow records entries for participants deleted while a
// transfer was in flight.
func addHistory(ctx context.Context, q sqlx.ExtContext, ownerID int64, typ, description string, details map[string]any, notificationID *string) (*model.HistoryRecord, error) {
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return nil, err
	}

	ts := now()
	rec := &model.HistoryRecord{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		RecordDate:     ts,
		Type:           typ,
		Description:    description,
		Details:        details,
		NotificationID: notificationID,
		CreatedAt:      ts,
		DetailsJSON:    detailsJSON,
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO history_records (`+historyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.RecordDate, rec.Type, rec.Description, rec.DetailsJSON, rec.NotificationID, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("adding history record: %w", err)
	}
	return rec, nil
}

// ListHistory returns the scope's history, newest first.
func ListHistory(ctx context.Context, q sqlx.QueryerContext, scope model.Scope) ([]model.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM history_records`
	var args []any
	if !scope.All {
		query += ` WHERE owner_id = ?`
		args = append(args, scope.OwnerID)
	}
	query += ` ORDER BY record_date DESC, rowid DESC`

	var records []model.HistoryRecord
	if err := sqlx.SelectContext(ctx, q, &records, query, args...); err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	for i := range records {
		if err := decodeDetails(&records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func decodeDetails(rec *model.HistoryRecord) error {
	if rec.DetailsJSON == "" || rec.DetailsJSON == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(rec.DetailsJSON), &rec.Details); err != nil {
		return fmt.Errorf("decoding history details %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteHistory deletes a single entry. A non-nil owner must match the entry's owner.
func DeleteHistory(ctx context.Context, q sqlx.ExtContext, id string, owner *int64) error {
	var ownerID int64
	found, err := getOne(ctx, q, &ownerID, `SELECT owner_id FROM history_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("getting history record: %w", err)
	}
	if !found {
		return fmt.Errorf("history record %s: %w", id, apperr.ErrNotFound)
	}
	if owner != nil && *owner != ownerID {
		return fmt.Errorf("history record %s: %w", id, apperr.ErrForbidden)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM history_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting history record: %w", err)
	}
	return nil
}

// DeleteAllHistory clears owner's feed together with all of owner's case
// records. It returns the number of history entries removed.
func DeleteAllHistory(ctx context.Context, db *sqlx.DB, ownerID int64) (int64, error) {
	var deleted int64
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM case_records WHERE owner_id = ?`, ownerID); err != nil {
			return fmt.Errorf("deleting case records: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM history_records WHERE owner_id = ?`, ownerID)
		if err != nil {
			return fmt.Errorf("deleting history: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteMostRecentMatching deletes the newest entry of owner with the given
// type whose description contains substr. It reports whether one was deleted.
func DeleteMostRecentMatching(ctx context.Context, q sqlx.ExtContext, ownerID int64, typ, substr string) (bool, error) {
	var candidates []struct {
		ID          string `db:"id"`
		Description string `db:"description"`
	}
	err := sqlx.SelectContext(ctx, q, &candidates,
		`SELECT id, description FROM history_records
		 WHERE owner_id = ? AND type = ?
		 ORDER BY record_date DESC, rowid DESC`,
		ownerID, typ,
	)
	if err != nil {
		return false, fmt.Errorf("scanning history: %w", err)
	}

	for _, c := range candidates {
		if !strings.Contains(c.Description, substr) {
			continue
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM history_records WHERE id = ?`, c.ID); err != nil {
			return false, fmt.Errorf("deleting history record: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// DeleteHistoryForNotification deletes the newest entry of owner with the
// given type that was written for notificationID.
func DeleteHistoryForNotification(ctx context.Context, q sqlx.ExtContext, ownerID int64, typ, notificationID string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM history_records WHERE id = (
		     SELECT id FROM history_records
		     WHERE owner_id = ? AND type = ? AND notification_id = ?
		     ORDER BY record_date DESC, rowid DESC LIMIT 1
		 )`,
		ownerID, typ, notificationID,
	)
	if err != nil {
		return false, fmt.Errorf("retracting history for notification %s: %w", notificationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
