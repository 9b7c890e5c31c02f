package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
)

const transferLineColumns = `notification_id, position, material_name, serial_lot_number, ubb_code,
	expiry_date, quantity, date_added, from_field, to_field, material_code`

// TransferResult is the content of the TRANSFER_RESULT notification sent
// back to the sender.
type TransferResult struct {
	NotificationID string `json:"notification_id"`
	Action         string `json:"action"`
	ItemCount      int    `json:"item_count"`
	TotalQuantity  int    `json:"total_quantity"`
}

// InitiateTransfer moves the requested quantities out of the sender's ledger
// and into a TRANSFER_REQUEST notification awaiting the receiver's decision.
// The quantities are held by the notification until it is processed.
func InitiateTransfer(ctx context.Context, db *sqlx.DB, senderID, receiverID int64, lines []model.TransferRequestLine) (*model.Notification, error) {
	verr := &apperr.ValidationError{}
	if senderID == receiverID {
		verr.Add("receiver_id", "cannot transfer to yourself")
	}
	if len(lines) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, line := range lines {
		prefix := fmt.Sprintf("items[%d].", i)
		if strings.TrimSpace(line.StockItemID) == "" {
			verr.Add(prefix+"stock_item_id", "stock item is required")
		}
		if line.Quantity < 1 {
			verr.Add(prefix+"quantity", "quantity must be at least 1")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var notification *model.Notification
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := requireActiveUser(ctx, tx, senderID, "sender"); err != nil {
			return err
		}
		receiver, err := requireActiveUser(ctx, tx, receiverID, "receiver")
		if err != nil {
			return err
		}

		rows := make([]*model.StockItem, len(lines))
		byID := make(map[string]*model.StockItem)
		requested := make(map[string]int)
		for i, line := range lines {
			item, ok := byID[line.StockItemID]
			if !ok {
				item, err = loadOwnedStock(ctx, tx, line.StockItemID, &senderID)
				if err != nil {
					return err
				}
				byID[line.StockItemID] = item
			}

			requested[item.ID] += line.Quantity
			if item.Quantity < requested[item.ID] {
				return &apperr.InsufficientQuantityError{
					MaterialName:    item.MaterialName,
					SerialLotNumber: item.SerialLotNumber,
					Available:       item.Quantity,
					Requested:       requested[item.ID],
				}
			}
			rows[i] = item
		}

		transferLines := make([]model.TransferLine, len(lines))
		total := 0
		for i, line := range lines {
			item := rows[i]
			if err := deductStock(ctx, tx, item, line.Quantity); err != nil {
				return err
			}
			transferLines[i] = model.TransferLine{
				Position:        i,
				MaterialName:    item.MaterialName,
				SerialLotNumber: item.SerialLotNumber,
				UBBCode:         item.UBBCode,
				ExpiryDate:      item.ExpiryDate,
				Quantity:        line.Quantity,
				DateAdded:       item.DateAdded,
				FromField:       item.FromField,
				ToField:         item.ToField,
				MaterialCode:    item.MaterialCode,
			}
			total += line.Quantity
		}

		content, err := json.Marshal(transferLines)
		if err != nil {
			return fmt.Errorf("encoding transfer lines: %w", err)
		}

		notification = &model.Notification{
			SenderID:     &senderID,
			ReceiverID:   receiverID,
			Type:         model.NotificationTransferRequest,
			Title:        fmt.Sprintf("Incoming transfer: %d items, %d units", len(lines), total),
			Content:      string(content),
			ActionStatus: model.ActionWaiting,
		}
		if err := CreateNotification(ctx, tx, notification); err != nil {
			return err
		}

		for i := range transferLines {
			transferLines[i].NotificationID = notification.ID
			if err := insertTransferLine(ctx, tx, transferLines[i]); err != nil {
				return err
			}
		}

		_, err = addHistory(ctx, tx, senderID, model.HistoryTransferPending,
			fmt.Sprintf("Transfer pending to %s: %d items, %d units", displayName(receiver), len(lines), total),
			map[string]any{
				"receiverId":    receiverID,
				"receiver":      receiver.Username,
				"itemCount":     len(lines),
				"totalQuantity": total,
				"items":         transferLines,
			},
			&notification.ID,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("transfer initiated", "notification", notification.ID, "sender", senderID, "receiver", receiverID)
	return notification, nil
}

func insertTransferLine(ctx context.Context, q sqlx.ExecerContext, l model.TransferLine) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO transfer_lines (`+transferLineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.NotificationID, l.Position, l.MaterialName, l.SerialLotNumber, l.UBBCode,
		l.ExpiryDate, l.Quantity, l.DateAdded, l.FromField, l.ToField, l.MaterialCode,
	)
	if err != nil {
		return fmt.Errorf("storing transfer line: %w", err)
	}
	return nil
}

// ListTransferLines returns the in-flight lines of a transfer request in
// their original order.
func ListTransferLines(ctx context.Context, q sqlx.QueryerContext, notificationID string) ([]model.TransferLine, error) {
	var lines []model.TransferLine
	err := sqlx.SelectContext(ctx, q, &lines,
		`SELECT `+transferLineColumns+` FROM transfer_lines WHERE notification_id = ? ORDER BY position`,
		notificationID)
	if err != nil {
		return nil, fmt.Errorf("listing transfer lines: %w", err)
	}
	return lines, nil
}

// ProcessTransfer approves or rejects a waiting transfer request. Approval
// merges the held quantities into the receiver's ledger; rejection returns
// them to the sender. A request is processed at most once.
func ProcessTransfer(ctx context.Context, db *sqlx.DB, notificationID, action string) (*model.Notification, error) {
	if action != model.ActionApproved && action != model.ActionRejected {
		return nil, apperr.NewValidation("action", "action must be APPROVED or REJECTED")
	}

	var processed *model.Notification
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		n, err := GetNotification(ctx, tx, notificationID)
		if err != nil {
			return err
		}
		if n == nil {
			return fmt.Errorf("notification %s: %w", notificationID, apperr.ErrNotFound)
		}
		if n.Type != model.NotificationTransferRequest {
			return fmt.Errorf("notification %s: %w", notificationID, apperr.ErrInvalidType)
		}
		if n.ActionStatus != model.ActionWaiting {
			return fmt.Errorf("notification %s: %w", notificationID, apperr.ErrAlreadyProcessed)
		}
		if n.SenderID == nil {
			return fmt.Errorf("transfer %s has no sender", notificationID)
		}
		senderID := *n.SenderID

		lines, err := ListTransferLines(ctx, tx, notificationID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("transfer %s has no lines", notificationID)
		}

		sender, err := GetUser(ctx, tx, senderID)
		if err != nil {
			return err
		}
		receiver, err := GetUser(ctx, tx, n.ReceiverID)
		if err != nil {
			return err
		}

		total := 0
		for _, l := range lines {
			total += l.Quantity
		}
		summary := fmt.Sprintf("%d items, %d units", len(lines), total)

		if action == model.ActionApproved {
			if err := mergeLines(ctx, tx, lines, n.ReceiverID); err != nil {
				return err
			}
			if _, err := addHistory(ctx, tx, n.ReceiverID, model.HistoryTransferReceived,
				fmt.Sprintf("Transfer received from %s: %s", displayName(sender), summary),
				map[string]any{"senderId": senderID, "itemCount": len(lines), "totalQuantity": total, "items": lines},
				&notificationID,
			); err != nil {
				return err
			}
			retractPending(ctx, tx, senderID, notificationID)
			if _, err := addHistory(ctx, tx, senderID, model.HistoryTransferCompleted,
				fmt.Sprintf("Transfer to %s approved: %s", displayName(receiver), summary),
				map[string]any{"receiverId": n.ReceiverID, "itemCount": len(lines), "totalQuantity": total, "items": lines},
				&notificationID,
			); err != nil {
				return err
			}
			if err := notifyResult(ctx, tx, n, action, "Transfer approved", len(lines), total); err != nil {
				return err
			}
		} else {
			if err := mergeLines(ctx, tx, lines, senderID); err != nil {
				return err
			}
			if err := notifyResult(ctx, tx, n, action, "Transfer rejected", len(lines), total); err != nil {
				return err
			}
			retractPending(ctx, tx, senderID, notificationID)
			if _, err := addHistory(ctx, tx, senderID, model.HistoryStockReturned,
				fmt.Sprintf("Transfer to %s rejected, stock returned: %s", displayName(receiver), summary),
				map[string]any{"receiverId": n.ReceiverID, "itemCount": len(lines), "totalQuantity": total, "items": lines},
				&notificationID,
			); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE notifications SET action_status = ?, status = ? WHERE id = ? AND action_status = ?`,
			action, model.NotificationProcessed, notificationID, model.ActionWaiting)
		if err != nil {
			return fmt.Errorf("completing transfer: %w", err)
		}
		if changed, err := res.RowsAffected(); err != nil {
			return err
		} else if changed == 0 {
			return fmt.Errorf("notification %s: %w", notificationID, apperr.ErrAlreadyProcessed)
		}

		processed, err = GetNotification(ctx, tx, notificationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("transfer processed", "notification", notificationID, "action", action)
	return processed, nil
}

func mergeLines(ctx context.Context, tx *sqlx.Tx, lines []model.TransferLine, ownerID int64) error {
	for _, l := range lines {
		if _, _, err := addStockItem(ctx, tx, l.StockInput(), ownerID, true); err != nil {
			return err
		}
	}
	return nil
}

// retractPending removes the sender's transfer-pending entry. A missing
// entry is not an error: the sender may have cleared their history.
func retractPending(ctx context.Context, tx *sqlx.Tx, senderID int64, notificationID string) {
	deleted, err := DeleteHistoryForNotification(ctx, tx, senderID, model.HistoryTransferPending, notificationID)
	if err != nil {
		slog.Warn("retracting pending transfer history", "notification", notificationID, "error", err)
		return
	}
	if !deleted {
		slog.Warn("pending transfer history not found", "notification", notificationID, "sender", senderID)
	}
}

func notifyResult(ctx context.Context, tx *sqlx.Tx, request *model.Notification, action, title string, items, total int) error {
	content, err := json.Marshal(TransferResult{
		NotificationID: request.ID,
		Action:         action,
		ItemCount:      items,
		TotalQuantity:  total,
	})
	if err != nil {
		return fmt.Errorf("encoding transfer result: %w", err)
	}

	receiverID := request.ReceiverID
	return createNotification(ctx, tx, &model.Notification{
		SenderID:     &receiverID,
		ReceiverID:   *request.SenderID,
		Type:         model.NotificationTransferResult,
		Title:        title,
		Content:      string(content),
		ActionStatus: model.ActionNone,
	})
}

func displayName(u *model.User) string {
	if u == nil {
		return "unknown user"
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
