package store

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/medstock/internal/db"
	"github.com/erazemk/medstock/internal/model"
)

func mustUser(t *testing.T, database *sqlx.DB, username, role string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, username, "", "hash", role)
	require.NoError(t, err)
	return u
}

func mustStock(t *testing.T, database *sqlx.DB, owner int64, material, lot string, qty int) *model.StockItem {
	t.Helper()
	item, err := AddStockItem(context.Background(), database, model.StockInput{
		MaterialName:    material,
		SerialLotNumber: lot,
		Quantity:        qty,
	}, owner, false)
	require.NoError(t, err)
	return item
}

func stockQuantity(t *testing.T, database *sqlx.DB, owner int64, material, lot string) int {
	t.Helper()
	item, err := findStockByKey(context.Background(), database, material, lot, owner)
	require.NoError(t, err)
	if item == nil {
		return 0
	}
	return item.Quantity
}

func totalQuantity(t *testing.T, database *sqlx.DB, material, lot string) int {
	t.Helper()
	var total int
	require.NoError(t, database.Get(&total,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_items WHERE material_name = ? AND serial_lot_number = ?`,
		material, lot))
	return total
}

func historyTypes(t *testing.T, database *sqlx.DB, owner int64) []string {
	t.Helper()
	records, err := ListHistory(context.Background(), database, model.OwnerScope(owner))
	require.NoError(t, err)
	types := make([]string, 0, len(records))
	for _, r := range records {
		types = append(types, r.Type)
	}
	return types
}

// newFileDB opens a file-backed database so that several connections write
// concurrently, unlike the single-connection in-memory test database.
func newFileDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "medstock.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.EnsureSchema(database))
	return database
}

// captureLogs redirects the default logger into a buffer for the rest of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}
