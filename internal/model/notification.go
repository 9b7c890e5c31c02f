package model

import "time"

// Notification types.
const (
	NotificationTransferRequest = "TRANSFER_REQUEST"
	NotificationTransferResult  = "TRANSFER_RESULT"
)

// Notification delivery statuses.
const (
	NotificationPending   = "PENDING"
	NotificationRead      = "READ"
	NotificationProcessed = "PROCESSED"
)

// Notification action statuses. A TRANSFER_REQUEST starts WAITING and moves
// exactly once to APPROVED or REJECTED; informational notifications carry NONE.
const (
	ActionNone     = "NONE"
	ActionWaiting  = "WAITING"
	ActionApproved = "APPROVED"
	ActionRejected = "REJECTED"
)

// Notification is an action request or informational message addressed to a
// receiver. A nil SenderID means the system sent it.
type Notification struct {
	ID           string    `json:"id" db:"id"`
	SenderID     *int64    `json:"sender_id,omitempty" db:"sender_id"`
	ReceiverID   int64     `json:"receiver_id" db:"receiver_id"`
	Type         string    `json:"type" db:"type"`
	Title        string    `json:"title" db:"title"`
	Content      string    `json:"content" db:"content"`
	Status       string    `json:"status" db:"status"`
	ActionStatus string    `json:"action_status" db:"action_status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	// Joined field (not always populated).
	SenderName string `json:"sender_name,omitempty" db:"sender_name"`
}

// TransferLine is one quantity in flight between a sender and a receiver,
// held against its TRANSFER_REQUEST notification until resolved.
type TransferLine struct {
	NotificationID  string  `json:"-" db:"notification_id"`
	Position        int     `json:"-" db:"position"`
	MaterialName    string  `json:"material_name" db:"material_name"`
	SerialLotNumber string  `json:"serial_lot_number" db:"serial_lot_number"`
	UBBCode         *string `json:"ubb_code,omitempty" db:"ubb_code"`
	ExpiryDate      *Date   `json:"expiry_date,omitempty" db:"expiry_date"`
	Quantity        int     `json:"quantity" db:"quantity"`
	DateAdded       Date    `json:"date_added" db:"date_added"`
	FromField       string  `json:"from_field,omitempty" db:"from_field"`
	ToField         string  `json:"to_field,omitempty" db:"to_field"`
	MaterialCode    string  `json:"material_code,omitempty" db:"material_code"`
}

// StockInput converts the line back into ledger input for merge-adding.
func (l TransferLine) StockInput() StockInput {
	dateAdded := l.DateAdded
	return StockInput{
		MaterialName:    l.MaterialName,
		SerialLotNumber: l.SerialLotNumber,
		UBBCode:         l.UBBCode,
		ExpiryDate:      l.ExpiryDate,
		Quantity:        l.Quantity,
		DateAdded:       &dateAdded,
		FromField:       l.FromField,
		ToField:         l.ToField,
		MaterialCode:    l.MaterialCode,
	}
}

// TransferRequestLine asks to move Quantity out of the sender's row StockItemID.
type TransferRequestLine struct {
	StockItemID string `json:"stock_item_id"`
	Quantity    int    `json:"quantity"`
}
