package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/db"
	"github.com/erazemk/medstock/internal/model"
)

func TestAddHistoryRequiresOwner(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := AddHistory(context.Background(), database, 42, model.HistoryStockAdd, "x", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListHistoryNewestFirstWithDetails(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, database, "alice", model.RoleUser)

	_, err := AddHistory(ctx, database, alice.ID, model.HistoryStockAdd, "first", map[string]any{"quantity": 3})
	require.NoError(t, err)
	_, err = AddHistory(ctx, database, alice.ID, model.HistoryStockRemove, "second", nil)
	require.NoError(t, err)

	records, err := ListHistory(ctx, database, model.OwnerScope(alice.ID))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Description)
	assert.Equal(t, "first", records[1].Description)
	assert.EqualValues(t, 3, records[1].Details["quantity"])
	assert.Nil(t, records[0].Details)
}

func TestDeleteMostRecentMatching(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, database, "alice", model.RoleUser)

	for _, desc := range []string{"Mask L1 old", "Gloves G1", "Mask L1 new"} {
		_, err := AddHistory(ctx, database, alice.ID, model.HistoryTransferPending, desc, nil)
		require.NoError(t, err)
	}

	deleted, err := DeleteMostRecentMatching(ctx, database, alice.ID, model.HistoryTransferPending, "Mask L1")
	require.NoError(t, err)
	assert.True(t, deleted)

	records, err := ListHistory(ctx, database, model.OwnerScope(alice.ID))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Gloves G1", records[0].Description)
	assert.Equal(t, "Mask L1 old", records[1].Description)

	deleted, err = DeleteMostRecentMatching(ctx, database, alice.ID, model.HistoryStockAdd, "Mask")
	require.NoError(t, err)
	assert.False(t, deleted, "type must match too")
}

func TestDeleteHistoryOwnership(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, database, "alice", model.RoleUser)
	bob := mustUser(t, database, "bob", model.RoleUser)

	rec, err := AddHistory(ctx, database, alice.ID, model.HistoryStockAdd, "x", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, DeleteHistory(ctx, database, rec.ID, &bob.ID), apperr.ErrForbidden)
	require.NoError(t, DeleteHistory(ctx, database, rec.ID, &alice.ID))
	assert.ErrorIs(t, DeleteHistory(ctx, database, rec.ID, nil), apperr.ErrNotFound)
}

func TestDeleteAllHistoryRemovesCases(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, database, "alice", model.RoleUser)
	bob := mustUser(t, database, "bob", model.RoleUser)
	mustStock(t, database, alice.ID, "Stent", "S1", 3)
	mustStock(t, database, bob.ID, "Stent", "S1", 3)

	_, err := CreateCase(ctx, database, alice.ID, testCase("Stent", "S1", 1))
	require.NoError(t, err)
	_, err = CreateCase(ctx, database, bob.ID, testCase("Stent", "S1", 1))
	require.NoError(t, err)

	n, err := DeleteAllHistory(ctx, database, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n) // stock-add, stock-remove, case

	cases, err := ListCases(ctx, database, model.AllOwners())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, bob.ID, cases[0].OwnerID)

	assert.NotEmpty(t, historyTypes(t, database, bob.ID))
}

func TestAuditLog(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, LogAudit(ctx, database, "alice", "stock.add", "stock_item", "id-1", "Mask (L1)"))
	require.NoError(t, LogAudit(ctx, database, "bob", "user.delete", "user", "2", ""))

	logs, err := ListAudit(ctx, database, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "bob", logs[0].Username)

	logs, err = ListAudit(ctx, database, 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
