package model

import "time"

// History record types.
const (
	HistoryStockAdd          = "stock-add"
	HistoryStockRemove       = "stock-remove"
	HistoryStockDelete       = "stock-delete"
	HistoryStockUpdate       = "stock-update"
	HistoryTransferPending   = "transfer-pending"
	HistoryTransferReceived  = "transfer-received"
	HistoryTransferCompleted = "transfer-completed"
	HistoryStockReturned     = "stock-returned"
	HistoryCase              = "case"
)

// HistoryRecord is one entry of a user's activity feed.
type HistoryRecord struct {
	ID             string         `json:"id" db:"id"`
	OwnerID        int64          `json:"owner_id" db:"owner_id"`
	RecordDate     time.Time      `json:"record_date" db:"record_date"`
	Type           string         `json:"type" db:"type"`
	Description    string         `json:"description" db:"description"`
	Details        map[string]any `json:"details,omitempty" db:"-"`
	NotificationID *string        `json:"notification_id,omitempty" db:"notification_id"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`

	DetailsJSON string `json:"-" db:"details_json"`
}

// AuditLog is a security-relevant event, kept apart from the user-facing history.
type AuditLog struct {
	ID         int64     `json:"id" db:"id"`
	Username   string    `json:"username" db:"username"`
	Action     string    `json:"action" db:"action"`
	EntityName string    `json:"entity_name" db:"entity_name"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Details    string    `json:"details,omitempty" db:"details"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}
