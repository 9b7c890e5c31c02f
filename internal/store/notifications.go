package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
)

const notificationSelect = `SELECT n.id, n.sender_id, n.receiver_id, n.type, n.title, n.content,
	n.status, n.action_status, n.created_at,
	COALESCE(NULLIF(s.full_name, ''), s.username, 'System') AS sender_name
	FROM notifications n
	LEFT JOIN users s ON s.id = n.sender_id`

// CreateNotification stores n, filling in its ID, timestamps and default statuses.
func CreateNotification(ctx context.Context, q sqlx.ExtContext, n *model.Notification) error {
	if _, err := requireActiveUser(ctx, q, n.ReceiverID, "notification receiver"); err != nil {
		return err
	}
	return createNotification(ctx, q, n)
}

// createNotification inserts n for a receiver that may have been soft-deleted.
func createNotification(ctx context.Context, q sqlx.ExecerContext, n *model.Notification) error {
	n.ID = uuid.NewString()
	n.CreatedAt = now()
	if n.Status == "" {
		n.Status = model.NotificationPending
	}
	if n.ActionStatus == "" {
		n.ActionStatus = model.ActionNone
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO notifications (id, sender_id, receiver_id, type, title, content, status, action_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.SenderID, n.ReceiverID, n.Type, n.Title, n.Content, n.Status, n.ActionStatus, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// GetNotification returns a notification by ID, or nil if it does not exist.
func GetNotification(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Notification, error) {
	var n model.Notification
	found, err := getOne(ctx, q, &n, notificationSelect+` WHERE n.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting notification: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &n, nil
}

// ListNotifications returns the receiver's notifications, newest first.
func ListNotifications(ctx context.Context, q sqlx.QueryerContext, receiverID int64) ([]model.Notification, error) {
	return listNotifications(ctx, q, notificationSelect+` WHERE n.receiver_id = ?`, receiverID)
}

// ListUnreadNotifications returns the receiver's PENDING notifications, newest first.
func ListUnreadNotifications(ctx context.Context, q sqlx.QueryerContext, receiverID int64) ([]model.Notification, error) {
	return listNotifications(ctx, q, notificationSelect+` WHERE n.receiver_id = ? AND n.status = ?`,
		receiverID, model.NotificationPending)
}

func listNotifications(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]model.Notification, error) {
	var list []model.Notification
	if err := sqlx.SelectContext(ctx, q, &list, query+` ORDER BY n.created_at DESC, n.rowid DESC`, args...); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return list, nil
}

// UnreadCount returns the number of the receiver's PENDING notifications.
func UnreadCount(ctx context.Context, q sqlx.QueryerContext, receiverID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count,
		`SELECT COUNT(*) FROM notifications WHERE receiver_id = ? AND status = ?`,
		receiverID, model.NotificationPending)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead moves a PENDING notification to READ. It never
// touches action_status, and a PROCESSED notification stays PROCESSED.
func MarkNotificationRead(ctx context.Context, q sqlx.ExtContext, id string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE notifications SET status = ? WHERE id = ? AND status = ?`,
		model.NotificationRead, id, model.NotificationPending)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	found, err := getOne(ctx, q, &exists, `SELECT 1 FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("getting notification: %w", err)
	}
	if !found {
		return fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}
