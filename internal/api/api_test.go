package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/medstock/internal/auth"
	"github.com/erazemk/medstock/internal/db"
	"github.com/erazemk/medstock/internal/model"
	"github.com/erazemk/medstock/internal/store"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	t      *testing.T
	db     *sqlx.DB
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	server := httptest.NewServer(NewRouter(database, testJWTSecret, []string{"http://app.example"}))
	t.Cleanup(server.Close)
	return &testEnv{t: t, db: database, server: server}
}

// user creates a user with password "password" and returns a token for it.
func (e *testEnv) user(username, role string) (*model.User, string) {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(e.t, err)
	u, err := store.CreateUser(context.Background(), e.db, username, "", string(hash), role)
	require.NoError(e.t, err)
	token, err := auth.GenerateToken(testJWTSecret, u.ID, u.Username, u.Role)
	require.NoError(e.t, err)
	return u, token
}

// call performs a request and decodes the JSON response into out when non-nil.
func (e *testEnv) call(method, path, token string, body, out any) int {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, e.call("GET", "/api/health", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestLoginAndLogout(t *testing.T) {
	e := newTestEnv(t)
	e.user("admin", model.RoleAdmin)

	status := e.call("POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	var login loginResponse
	status = e.call("POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "password"}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, "admin", login.User.Username)

	assert.Equal(t, http.StatusOK, e.call("GET", "/api/stocks", login.Token, nil, nil))
	assert.Equal(t, http.StatusOK, e.call("POST", "/api/auth/logout", login.Token, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, e.call("GET", "/api/stocks", login.Token, nil, nil))
}

func TestChangePassword(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user("alice", model.RoleUser)

	status := e.call("PUT", "/api/auth/password", token, changePasswordRequest{CurrentPassword: "password", NewPassword: "short"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = e.call("PUT", "/api/auth/password", token, changePasswordRequest{CurrentPassword: "nope", NewPassword: "long-enough"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = e.call("PUT", "/api/auth/password", token, changePasswordRequest{CurrentPassword: "password", NewPassword: "long-enough"}, nil)
	assert.Equal(t, http.StatusOK, status)

	status = e.call("POST", "/api/auth/login", "", map[string]string{"username": "alice", "password": "long-enough"}, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestUnauthenticatedAccess(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.call("GET", "/api/stocks", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, e.call("GET", "/api/stocks", "garbage", nil, nil))
}

func TestDeletedUserTokenRejected(t *testing.T) {
	e := newTestEnv(t)
	u, token := e.user("gone", model.RoleUser)
	require.NoError(t, store.DeleteUser(context.Background(), e.db, u.ID))

	assert.Equal(t, http.StatusUnauthorized, e.call("GET", "/api/stocks", token, nil, nil))
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	e := newTestEnv(t)
	admin, adminToken := e.user("admin", model.RoleAdmin)
	_, managerToken := e.user("manager", model.RoleManager)

	assert.Equal(t, http.StatusForbidden, e.call("GET", "/api/users", managerToken, nil, nil))
	assert.Equal(t, http.StatusForbidden, e.call("GET", "/api/audit", managerToken, nil, nil))

	var dir []model.UserSummary
	assert.Equal(t, http.StatusOK, e.call("GET", "/api/users/directory", managerToken, nil, &dir))
	assert.Len(t, dir, 2)

	var created model.User
	status := e.call("POST", "/api/users", adminToken, createUserRequest{
		Username: "wh", FullName: "Ware House", Password: "password1", Role: model.RoleWarehouse,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, model.RoleWarehouse, created.Role)

	status = e.call("POST", "/api/users", adminToken, createUserRequest{
		Username: "wh", Password: "password1", Role: model.RoleUser,
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = e.call("POST", "/api/users", adminToken, createUserRequest{
		Username: "x", Password: "password1", Role: "superuser",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	assert.Equal(t, http.StatusBadRequest, e.call("DELETE", "/api/users/"+formatID(admin.ID), adminToken, nil, nil))
	assert.Equal(t, http.StatusOK, e.call("DELETE", "/api/users/"+formatID(created.ID), adminToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, e.call("GET", "/api/users/"+formatID(created.ID), adminToken, nil, nil))

	var logs []model.AuditLog
	require.Equal(t, http.StatusOK, e.call("GET", "/api/audit", adminToken, nil, &logs))
	require.NotEmpty(t, logs)
	assert.Equal(t, "user.delete", logs[0].Action)
	assert.Equal(t, "admin", logs[0].Username)
}

func TestStockScopeIsolation(t *testing.T) {
	e := newTestEnv(t)
	alice, aliceToken := e.user("alice", model.RoleUser)
	bob, bobToken := e.user("bob", model.RoleUser)
	_, managerToken := e.user("manager", model.RoleManager)

	var item model.StockItem
	status := e.call("POST", "/api/stocks", aliceToken, model.StockInput{MaterialName: "Mask", SerialLotNumber: "L1", Quantity: 10}, &item)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, alice.ID, item.OwnerID)

	status = e.call("POST", "/api/stocks", aliceToken, model.StockInput{MaterialName: "Mask", SerialLotNumber: "L1", Quantity: 1}, nil)
	assert.Equal(t, http.StatusConflict, status)

	var merged model.StockItem
	status = e.call("POST", "/api/stocks?merge=true", aliceToken, model.StockInput{MaterialName: "Mask", SerialLotNumber: "L1", Quantity: 1}, &merged)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 11, merged.Quantity)

	var bobs []model.StockItem
	require.Equal(t, http.StatusOK, e.call("GET", "/api/stocks", bobToken, nil, &bobs))
	assert.Empty(t, bobs)

	assert.Equal(t, http.StatusForbidden, e.call("GET", "/api/stocks?userId="+formatID(alice.ID), bobToken, nil, nil))
	assert.Equal(t, http.StatusForbidden, e.call("DELETE", "/api/stocks/"+item.ID+"?userId="+formatID(alice.ID), bobToken, nil, nil))
	assert.Equal(t, http.StatusForbidden, e.call("DELETE", "/api/stocks/"+item.ID, bobToken, nil, nil))
	assert.Equal(t, http.StatusBadRequest, e.call("GET", "/api/stocks?userId=abc", bobToken, nil, nil))

	var all []model.StockItem
	require.Equal(t, http.StatusOK, e.call("GET", "/api/stocks", managerToken, nil, &all))
	assert.Len(t, all, 1)

	// Privileged actors add to another owner's ledger with userId.
	status = e.call("POST", "/api/stocks?userId="+formatID(bob.ID), managerToken, model.StockInput{MaterialName: "Gloves", SerialLotNumber: "G1", Quantity: 2}, nil)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, http.StatusOK, e.call("GET", "/api/stocks", bobToken, nil, &bobs))
	assert.Len(t, bobs, 1)
}

func TestRemoveInsufficientQuantity(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user("alice", model.RoleUser)

	require.Equal(t, http.StatusCreated, e.call("POST", "/api/stocks", token, model.StockInput{MaterialName: "Mask", SerialLotNumber: "L1", Quantity: 2}, nil))

	var body errorResponse
	status := e.call("POST", "/api/stocks/remove", token, removeRequest{Items: []model.RemoveLine{
		{MaterialName: "Mask", SerialLotNumber: "L1", Quantity: 3},
	}}, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, body.Available)
	assert.Equal(t, 2, *body.Available)

	status = e.call("POST", "/api/stocks/remove", token, removeRequest{Items: []model.RemoveLine{
		{MaterialName: "Nope", SerialLotNumber: "L1", Quantity: 1},
	}}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = e.call("POST", "/api/stocks/remove", token, removeRequest{}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body.Fields, "items")
}

func TestImportSearchAndGrouped(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user("alice", model.RoleUser)

	var result model.BulkImportResult
	status := e.call("POST", "/api/stocks/import", token, stockBatchRequest{Items: []model.StockInput{
		{MaterialName: "Stent Coronary", SerialLotNumber: "S1", Quantity: 2},
		{MaterialName: "Stent Coronary", SerialLotNumber: "S1", Quantity: 2},
		{MaterialName: "Balloon 3mm", SerialLotNumber: "B1", Quantity: 1},
	}}, &result)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, result.SavedCount)
	assert.Equal(t, 1, result.SkippedCount)

	var found []model.StockItem
	require.Equal(t, http.StatusOK, e.call("GET", "/api/stocks/search?q=sten", token, nil, &found))
	assert.Len(t, found, 1)

	var groups []model.PrefixGroup
	require.Equal(t, http.StatusOK, e.call("GET", "/api/stocks/grouped?category=balloon", token, nil, &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "Balloon", groups[0].Prefix)

	var dup map[string]bool
	require.Equal(t, http.StatusOK, e.call("GET", "/api/stocks/check-duplicate?material_name=Balloon%203mm&serial_lot_number=B1", token, nil, &dup))
	assert.True(t, dup["duplicate"])
}

func TestTransferFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	_, aliceToken := e.user("alice", model.RoleUser)
	bob, bobToken := e.user("bob", model.RoleUser)
	_, carolToken := e.user("carol", model.RoleUser)

	var mask model.StockItem
	require.Equal(t, http.StatusCreated, e.call("POST", "/api/stocks", aliceToken, model.StockInput{MaterialName: "Mask", SerialLotNumber: "L1", Quantity: 10}, &mask))

	var n model.Notification
	status := e.call("POST", "/api/stocks/transfer", aliceToken, transferRequest{
		ReceiverID: bob.ID,
		Items:      []model.TransferRequestLine{{StockItemID: mask.ID, Quantity: 4}},
	}, &n)
	require.Equal(t, http.StatusCreated, status)

	var unread unreadResponse
	require.Equal(t, http.StatusOK, e.call("GET", "/api/notifications/unread", bobToken, nil, &unread))
	assert.Equal(t, 1, unread.Count)

	var lines []model.TransferLine
	require.Equal(t, http.StatusOK, e.call("GET", "/api/notifications/"+n.ID+"/lines", aliceToken, nil, &lines))
	assert.Len(t, lines, 1)
	assert.Equal(t, http.StatusForbidden, e.call("GET", "/api/notifications/"+n.ID+"/lines", carolToken, nil, nil))

	// Only the receiver decides.
	assert.Equal(t, http.StatusForbidden, e.call("POST", "/api/notifications/"+n.ID+"/action", aliceToken, actionRequest{Action: model.ActionApproved}, nil))
	assert.Equal(t, http.StatusBadRequest, e.call("POST", "/api/notifications/"+n.ID+"/action", bobToken, actionRequest{Action: "LATER"}, nil))

	var processed model.Notification
	require.Equal(t, http.StatusOK, e.call("POST", "/api/notifications/"+n.ID+"/action", bobToken, actionRequest{Action: model.ActionApproved}, &processed))
	assert.Equal(t, model.ActionApproved, processed.ActionStatus)
	assert.Equal(t, http.StatusConflict, e.call("POST", "/api/notifications/"+n.ID+"/action", bobToken, actionRequest{Action: model.ActionRejected}, nil))

	var bobs []model.StockItem
	require.Equal(t, http.StatusOK, e.call("GET", "/api/stocks", bobToken, nil, &bobs))
	require.Len(t, bobs, 1)
	assert.Equal(t, 4, bobs[0].Quantity)

	// Result notifications cannot be processed as transfers.
	var aliceInbox []model.Notification
	require.Equal(t, http.StatusOK, e.call("GET", "/api/notifications", aliceToken, nil, &aliceInbox))
	require.Len(t, aliceInbox, 1)
	assert.Equal(t, http.StatusBadRequest, e.call("POST", "/api/notifications/"+aliceInbox[0].ID+"/action", aliceToken, actionRequest{Action: model.ActionApproved}, nil))

	var read model.Notification
	require.Equal(t, http.StatusOK, e.call("PUT", "/api/notifications/"+aliceInbox[0].ID+"/read", aliceToken, nil, &read))
	assert.Equal(t, model.NotificationRead, read.Status)
	assert.Equal(t, http.StatusNotFound, e.call("PUT", "/api/notifications/missing/read", aliceToken, nil, nil))
}

func TestHistoryAndCases(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user("alice", model.RoleUser)
	_, bobToken := e.user("bob", model.RoleUser)

	require.Equal(t, http.StatusCreated, e.call("POST", "/api/stocks", token, model.StockInput{MaterialName: "Stent", SerialLotNumber: "S1", Quantity: 3}, nil))

	var c model.CaseRecord
	status := e.call("POST", "/api/cases", token, map[string]any{
		"case_date":     "2026-05-01",
		"hospital_name": "General",
		"doctor_name":   "Dr. A",
		"patient_name":  "P. B",
		"materials":     []map[string]any{{"material_name": "Stent", "serial_lot_number": "S1", "quantity": 1}},
	}, &c)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, http.StatusForbidden, e.call("GET", "/api/cases/"+c.ID, bobToken, nil, nil))

	var got model.CaseRecord
	require.Equal(t, http.StatusOK, e.call("GET", "/api/cases/"+c.ID, token, nil, &got))
	assert.Equal(t, "2026-05-01", got.CaseDate.String())

	var history []model.HistoryRecord
	require.Equal(t, http.StatusOK, e.call("GET", "/api/history", token, nil, &history))
	require.Len(t, history, 3)
	assert.Equal(t, model.HistoryCase, history[0].Type)

	assert.Equal(t, http.StatusForbidden, e.call("DELETE", "/api/history/"+history[0].ID, bobToken, nil, nil))
	assert.Equal(t, http.StatusOK, e.call("DELETE", "/api/history/"+history[0].ID, token, nil, nil))

	var deleted map[string]int64
	require.Equal(t, http.StatusOK, e.call("DELETE", "/api/history/all", token, nil, &deleted))
	assert.EqualValues(t, 2, deleted["deleted"])

	var cases []model.CaseRecord
	require.Equal(t, http.StatusOK, e.call("GET", "/api/cases", token, nil, &cases))
	assert.Empty(t, cases)
}

func TestSenderCannotDecideOwnTransfer(t *testing.T) {
	e := newTestEnv(t)
	_, managerToken := e.user("manager", model.RoleManager)
	bob, bobToken := e.user("bob", model.RoleUser)
	_, adminToken := e.user("admin", model.RoleAdmin)

	var mask model.StockItem
	require.Equal(t, http.StatusCreated, e.call("POST", "/api/stocks", managerToken, model.StockInput{MaterialName: "Mask", SerialLotNumber: "L1", Quantity: 5}, &mask))

	var n model.Notification
	require.Equal(t, http.StatusCreated, e.call("POST", "/api/stocks/transfer", managerToken, transferRequest{
		ReceiverID: bob.ID,
		Items:      []model.TransferRequestLine{{StockItemID: mask.ID, Quantity: 2}},
	}, &n))

	assert.Equal(t, http.StatusForbidden, e.call("POST", "/api/notifications/"+n.ID+"/action", managerToken, actionRequest{Action: model.ActionApproved}, nil))

	// Another privileged actor may still decide for the receiver.
	require.Equal(t, http.StatusOK, e.call("POST", "/api/notifications/"+n.ID+"/action", adminToken, actionRequest{Action: model.ActionRejected}, nil))

	var bobs []model.StockItem
	require.Equal(t, http.StatusOK, e.call("GET", "/api/stocks", bobToken, nil, &bobs))
	assert.Empty(t, bobs)
}
