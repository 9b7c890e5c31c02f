package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/db"
	"github.com/erazemk/medstock/internal/model"
)

const stockColumns = `id, owner_id, material_name, serial_lot_number, ubb_code, expiry_date, quantity,
	date_added, from_field, to_field, material_code, created_at, updated_at`

// Search limits.
const (
	minSearchLength  = 2
	maxSearchResults = 10
)

// ListStock returns the rows visible in scope ordered by material and lot.
func ListStock(ctx context.Context, q sqlx.QueryerContext, scope model.Scope) ([]model.StockItem, error) {
	query := `SELECT ` + stockColumns + ` FROM stock_items`
	var args []any
	if !scope.All {
		query += ` WHERE owner_id = ?`
		args = append(args, scope.OwnerID)
	}
	query += ` ORDER BY material_name, serial_lot_number`

	var items []model.StockItem
	if err := sqlx.SelectContext(ctx, q, &items, query, args...); err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	return items, nil
}

// SearchStock matches material name or serial/lot number by case-insensitive
// substring. Queries shorter than two characters return nothing.
func SearchStock(ctx context.Context, q sqlx.QueryerContext, scope model.Scope, term string) ([]model.StockItem, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < minSearchLength {
		return []model.StockItem{}, nil
	}

	pattern := likePattern(term)
	query := `SELECT ` + stockColumns + ` FROM stock_items
		WHERE (fold(material_name) LIKE ? ESCAPE '\' OR fold(serial_lot_number) LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern}
	if !scope.All {
		query += ` AND owner_id = ?`
		args = append(args, scope.OwnerID)
	}
	query += ` ORDER BY serial_lot_number LIMIT ?`
	args = append(args, maxSearchResults)

	var items []model.StockItem
	if err := sqlx.SelectContext(ctx, q, &items, query, args...); err != nil {
		return nil, fmt.Errorf("searching stock: %w", err)
	}
	return items, nil
}

// GetStockItem returns a row by ID, or nil if it does not exist.
func GetStockItem(ctx context.Context, q sqlx.QueryerContext, id string) (*model.StockItem, error) {
	var item model.StockItem
	found, err := getOne(ctx, q, &item, `SELECT `+stockColumns+` FROM stock_items WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting stock item: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &item, nil
}

func findStockByKey(ctx context.Context, q sqlx.QueryerContext, material, lot string, ownerID int64) (*model.StockItem, error) {
	var item model.StockItem
	found, err := getOne(ctx, q, &item,
		`SELECT `+stockColumns+` FROM stock_items
		 WHERE material_name = ? AND serial_lot_number = ? AND owner_id = ?`,
		material, lot, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding stock item: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &item, nil
}

// CheckDuplicate reports whether owner already has a row with the natural key.
func CheckDuplicate(ctx context.Context, q sqlx.QueryerContext, material, lot string, ownerID int64) (bool, error) {
	item, err := findStockByKey(ctx, q, strings.TrimSpace(material), strings.TrimSpace(lot), ownerID)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

func validateStockInput(in model.StockInput, prefix string, verr *apperr.ValidationError) {
	for field, msg := range in.Validate() {
		verr.Add(prefix+field, msg)
	}
}

// AddStockItem adds a row for owner. When a row with the same natural key
// exists it fails with apperr.ErrDuplicateItem, unless allowMerge is set, in
// which case the quantity is added to the existing row.
func AddStockItem(ctx context.Context, db *sqlx.DB, in model.StockInput, ownerID int64, allowMerge bool) (*model.StockItem, error) {
	in.Normalize()
	verr := &apperr.ValidationError{}
	validateStockInput(in, "", verr)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var item *model.StockItem
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := requireActiveUser(ctx, tx, ownerID, "stock owner"); err != nil {
			return err
		}

		var merged bool
		var err error
		item, merged, err = addStockItem(ctx, tx, in, ownerID, allowMerge)
		if err != nil {
			return err
		}

		desc := fmt.Sprintf("Stock added: %s, %d units", in.Key(), in.Quantity)
		if merged {
			desc = fmt.Sprintf("Stock added to existing row: %s, %d units", in.Key(), in.Quantity)
		}
		_, err = AddHistory(ctx, tx, ownerID, model.HistoryStockAdd, desc, map[string]any{
			"stockItemId":     item.ID,
			"materialName":    in.MaterialName,
			"serialLotNumber": in.SerialLotNumber,
			"quantity":        in.Quantity,
			"merged":          merged,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock added", "owner", ownerID, "item", item.ID, "quantity", in.Quantity)
	return item, nil
}

// addStockItem inserts or merges a single row without writing history.
// Input must already be normalized and validated.
func addStockItem(ctx context.Context, q sqlx.ExtContext, in model.StockInput, ownerID int64, allowMerge bool) (*model.StockItem, bool, error) {
	existing, err := findStockByKey(ctx, q, in.MaterialName, in.SerialLotNumber, ownerID)
	if err != nil {
		return nil, false, err
	}

	ts := now()
	if existing != nil {
		if !allowMerge {
			return nil, false, fmt.Errorf("%s: %w", in.Key(), apperr.ErrDuplicateItem)
		}
		_, err := q.ExecContext(ctx,
			`UPDATE stock_items SET quantity = quantity + ?, updated_at = ? WHERE id = ?`,
			in.Quantity, ts, existing.ID,
		)
		if err != nil {
			return nil, false, fmt.Errorf("merging stock item: %w", err)
		}
		existing.Quantity += in.Quantity
		existing.UpdatedAt = ts
		return existing, true, nil
	}

	item := &model.StockItem{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		MaterialName:    in.MaterialName,
		SerialLotNumber: in.SerialLotNumber,
		UBBCode:         in.UBBCode,
		ExpiryDate:      in.ExpiryDate,
		Quantity:        in.Quantity,
		DateAdded:       model.NewDate(ts),
		FromField:       in.FromField,
		ToField:         in.ToField,
		MaterialCode:    in.MaterialCode,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if in.DateAdded != nil {
		item.DateAdded = *in.DateAdded
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO stock_items (`+stockColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, item.MaterialName, item.SerialLotNumber, item.UBBCode, item.ExpiryDate,
		item.Quantity, item.DateAdded, item.FromField, item.ToField, item.MaterialCode, item.CreatedAt, item.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return nil, false, fmt.Errorf("%s: %w", in.Key(), apperr.ErrDuplicateItem)
	}
	if err != nil {
		return nil, false, fmt.Errorf("inserting stock item: %w", err)
	}
	return item, false, nil
}

func sumQuantities(items []model.StockInput) int {
	total := 0
	for _, in := range items {
		total += in.Quantity
	}
	return total
}

func validateBatch(items []model.StockInput) error {
	verr := &apperr.ValidationError{}
	if len(items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i := range items {
		items[i].Normalize()
		validateStockInput(items[i], fmt.Sprintf("items[%d].", i), verr)
	}
	return verr.OrNil()
}

// AddStockItemsBulk adds every item without merging. Any collision fails the
// whole batch. One aggregate history entry is written.
func AddStockItemsBulk(ctx context.Context, db *sqlx.DB, items []model.StockInput, ownerID int64) ([]model.StockItem, error) {
	if err := validateBatch(items); err != nil {
		return nil, err
	}

	saved := make([]model.StockItem, 0, len(items))
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := requireActiveUser(ctx, tx, ownerID, "stock owner"); err != nil {
			return err
		}

		for _, in := range items {
			item, _, err := addStockItem(ctx, tx, in, ownerID, false)
			if err != nil {
				return err
			}
			saved = append(saved, *item)
		}

		total := sumQuantities(items)
		_, err := AddHistory(ctx, tx, ownerID, model.HistoryStockAdd,
			fmt.Sprintf("Bulk stock added: %d items, %d units", len(items), total),
			map[string]any{"count": len(items), "totalQuantity": total},
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("bulk stock added", "owner", ownerID, "count", len(saved))
	return saved, nil
}

// BulkImportWithDuplicateCheck saves the items whose natural key is not yet
// taken and reports the rest as skipped, including repeats within the batch.
func BulkImportWithDuplicateCheck(ctx context.Context, db *sqlx.DB, items []model.StockInput, ownerID int64) (*model.BulkImportResult, error) {
	if err := validateBatch(items); err != nil {
		return nil, err
	}

	result := &model.BulkImportResult{
		SkippedItems: []string{},
		SavedItems:   []model.StockItem{},
	}
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := requireActiveUser(ctx, tx, ownerID, "stock owner"); err != nil {
			return err
		}

		seen := make(map[string]bool, len(items))
		for _, in := range items {
			key := in.MaterialName + "\x00" + in.SerialLotNumber
			if seen[key] {
				result.SkippedItems = append(result.SkippedItems, in.Key())
				continue
			}
			seen[key] = true

			existing, err := findStockByKey(ctx, tx, in.MaterialName, in.SerialLotNumber, ownerID)
			if err != nil {
				return err
			}
			if existing != nil {
				result.SkippedItems = append(result.SkippedItems, in.Key())
				continue
			}

			item, _, err := addStockItem(ctx, tx, in, ownerID, false)
			if err != nil {
				return err
			}
			result.SavedItems = append(result.SavedItems, *item)
			result.SavedQuantity += in.Quantity
		}
		result.SavedCount = len(result.SavedItems)
		result.SkippedCount = len(result.SkippedItems)

		if result.SavedCount == 0 {
			return nil
		}
		_, err := AddHistory(ctx, tx, ownerID, model.HistoryStockAdd,
			fmt.Sprintf("Stock imported: %d items, %d units", result.SavedCount, result.SavedQuantity),
			map[string]any{
				"count":         result.SavedCount,
				"totalQuantity": result.SavedQuantity,
				"skippedCount":  result.SkippedCount,
			},
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock imported", "owner", ownerID, "saved", result.SavedCount, "skipped", result.SkippedCount)
	return result, nil
}

// loadOwnedStock fetches a row and checks it against owner when owner is non-nil.
func loadOwnedStock(ctx context.Context, q sqlx.QueryerContext, id string, owner *int64) (*model.StockItem, error) {
	item, err := GetStockItem(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("stock item %s: %w", id, apperr.ErrNotFound)
	}
	if owner != nil && *owner != item.OwnerID {
		return nil, fmt.Errorf("stock item %s: %w", id, apperr.ErrForbidden)
	}
	return item, nil
}

// UpdateStockItem replaces the fields of a row. A non-nil owner must match
// the row's owner.
func UpdateStockItem(ctx context.Context, database *sqlx.DB, id string, owner *int64, in model.StockInput) (*model.StockItem, error) {
	in.Normalize()
	verr := &apperr.ValidationError{}
	validateStockInput(in, "", verr)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var updated *model.StockItem
	err := inTx(ctx, database, func(tx *sqlx.Tx) error {
		item, err := loadOwnedStock(ctx, tx, id, owner)
		if err != nil {
			return err
		}

		dateAdded := item.DateAdded
		if in.DateAdded != nil {
			dateAdded = *in.DateAdded
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE stock_items SET material_name = ?, serial_lot_number = ?, ubb_code = ?, expiry_date = ?,
			     quantity = ?, date_added = ?, from_field = ?, to_field = ?, material_code = ?, updated_at = ?
			 WHERE id = ?`,
			in.MaterialName, in.SerialLotNumber, in.UBBCode, in.ExpiryDate, in.Quantity, dateAdded,
			in.FromField, in.ToField, in.MaterialCode, now(), id,
		)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", in.Key(), apperr.ErrDuplicateItem)
		}
		if err != nil {
			return fmt.Errorf("updating stock item: %w", err)
		}

		updated, err = GetStockItem(ctx, tx, id)
		if err != nil {
			return err
		}

		_, err = AddHistory(ctx, tx, item.OwnerID, model.HistoryStockUpdate,
			fmt.Sprintf("Stock updated: %s", in.Key()),
			map[string]any{
				"stockItemId":     id,
				"previousName":    item.MaterialName,
				"previousLot":     item.SerialLotNumber,
				"previousQty":     item.Quantity,
				"materialName":    in.MaterialName,
				"serialLotNumber": in.SerialLotNumber,
				"quantity":        in.Quantity,
			},
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock updated", "item", id, "owner", updated.OwnerID, "quantity", updated.Quantity)
	return updated, nil
}

// DeleteStockItem deletes a row. A non-nil owner must match the row's owner.
func DeleteStockItem(ctx context.Context, db *sqlx.DB, id string, owner *int64) error {
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		item, err := loadOwnedStock(ctx, tx, id, owner)
		if err != nil {
			return err
		}

		key := model.StockInput{MaterialName: item.MaterialName, SerialLotNumber: item.SerialLotNumber}.Key()
		_, err = AddHistory(ctx, tx, item.OwnerID, model.HistoryStockDelete,
			fmt.Sprintf("Stock deleted: %s, %d units", key, item.Quantity),
			map[string]any{
				"stockItemId":     item.ID,
				"materialName":    item.MaterialName,
				"serialLotNumber": item.SerialLotNumber,
				"quantity":        item.Quantity,
			},
		)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM stock_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting stock item: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("stock deleted", "item", id)
	return nil
}

// DeleteAllStock deletes every row of owner and returns how many were removed.
func DeleteAllStock(ctx context.Context, db *sqlx.DB, ownerID int64) (int64, error) {
	var deleted int64
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		var stats struct {
			Rows  int64 `db:"row_count"`
			Units int64 `db:"unit_count"`
		}
		if err := sqlx.GetContext(ctx, tx, &stats,
			`SELECT COUNT(*) AS row_count, COALESCE(SUM(quantity), 0) AS unit_count FROM stock_items WHERE owner_id = ?`,
			ownerID); err != nil {
			return fmt.Errorf("counting stock: %w", err)
		}
		if stats.Rows == 0 {
			return nil
		}

		if _, err := AddHistory(ctx, tx, ownerID, model.HistoryStockDelete,
			fmt.Sprintf("All stock deleted: %d items, %d units", stats.Rows, stats.Units),
			map[string]any{"count": stats.Rows, "totalQuantity": stats.Units},
		); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM stock_items WHERE owner_id = ?`, ownerID)
		if err != nil {
			return fmt.Errorf("deleting stock: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	slog.Info("all stock deleted", "owner", ownerID, "count", deleted)
	return deleted, nil
}

// RemoveStockItems deducts each line from owner's rows. Every line is checked
// before any row changes, so the batch either applies fully or not at all.
func RemoveStockItems(ctx context.Context, db *sqlx.DB, lines []model.RemoveLine, ownerID int64) error {
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		return removeStockItems(ctx, tx, lines, ownerID)
	})
	if err != nil {
		return err
	}

	slog.Info("stock removed", "owner", ownerID, "lines", len(lines))
	return nil
}

func validateRemoveLines(lines []model.RemoveLine) error {
	verr := &apperr.ValidationError{}
	if len(lines) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i := range lines {
		lines[i].MaterialName = strings.TrimSpace(lines[i].MaterialName)
		lines[i].SerialLotNumber = strings.TrimSpace(lines[i].SerialLotNumber)
		prefix := fmt.Sprintf("items[%d].", i)
		if lines[i].MaterialName == "" {
			verr.Add(prefix+"material_name", "material name is required")
		}
		if lines[i].SerialLotNumber == "" {
			verr.Add(prefix+"serial_lot_number", "serial/lot number is required")
		}
		if lines[i].Quantity < 1 {
			verr.Add(prefix+"quantity", "quantity must be at least 1")
		}
	}
	return verr.OrNil()
}

func removeStockItems(ctx context.Context, tx *sqlx.Tx, lines []model.RemoveLine, ownerID int64) error {
	if err := validateRemoveLines(lines); err != nil {
		return err
	}
	if _, err := requireActiveUser(ctx, tx, ownerID, "stock owner"); err != nil {
		return err
	}

	rows := make([]*model.StockItem, len(lines))
	byKey := make(map[string]*model.StockItem)
	requested := make(map[string]int)
	for i, line := range lines {
		key := line.MaterialName + "\x00" + line.SerialLotNumber
		item, ok := byKey[key]
		if !ok {
			var err error
			item, err = findStockByKey(ctx, tx, line.MaterialName, line.SerialLotNumber, ownerID)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("stock item %s (%s): %w", line.MaterialName, line.SerialLotNumber, apperr.ErrNotFound)
			}
			byKey[key] = item
		}

		requested[key] += line.Quantity
		if item.Quantity < requested[key] {
			return &apperr.InsufficientQuantityError{
				MaterialName:    line.MaterialName,
				SerialLotNumber: line.SerialLotNumber,
				Available:       item.Quantity,
				Requested:       requested[key],
			}
		}
		rows[i] = item
	}

	for i, line := range lines {
		item := rows[i]
		if err := deductStock(ctx, tx, item, line.Quantity); err != nil {
			return err
		}

		_, err := AddHistory(ctx, tx, ownerID, model.HistoryStockRemove,
			fmt.Sprintf("Stock removed: %s (%s), %d units", line.MaterialName, line.SerialLotNumber, line.Quantity),
			map[string]any{
				"stockItemId":     item.ID,
				"materialName":    line.MaterialName,
				"serialLotNumber": line.SerialLotNumber,
				"quantity":        line.Quantity,
				"remaining":       item.Quantity,
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// deductStock subtracts qty from item, deleting the row when it reaches
// zero. The statements are guarded on the quantity read earlier, so a row
// changed underneath fails instead of going negative. item.Quantity is
// updated in place.
func deductStock(ctx context.Context, q sqlx.ExecerContext, item *model.StockItem, qty int) error {
	var (
		query string
		args  []any
	)
	if item.Quantity == qty {
		query = `DELETE FROM stock_items WHERE id = ? AND quantity = ?`
		args = []any{item.ID, qty}
	} else {
		query = `UPDATE stock_items SET quantity = quantity - ?, updated_at = ? WHERE id = ? AND quantity > ?`
		args = []any{qty, now(), item.ID, qty}
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deducting stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &apperr.InsufficientQuantityError{
			MaterialName:    item.MaterialName,
			SerialLotNumber: item.SerialLotNumber,
			Available:       item.Quantity,
			Requested:       qty,
		}
	}

	item.Quantity -= qty
	return nil
}
