package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
	"github.com/erazemk/medstock/internal/store"
)

// StockHandler handles the stock ledger endpoints.
type StockHandler struct {
	DB *sqlx.DB
}

type stockBatchRequest struct {
	Items []model.StockInput `json:"items"`
}

type removeRequest struct {
	Items []model.RemoveLine `json:"items"`
}

type transferRequest struct {
	ReceiverID int64                       `json:"receiver_id"`
	Items      []model.TransferRequestLine `json:"items"`
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// List handles GET /api/stocks.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := readScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := store.ListStock(r.Context(), h.DB, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(items))
}

// Search handles GET /api/stocks/search?q=.
func (h *StockHandler) Search(w http.ResponseWriter, r *http.Request) {
	scope, err := readScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := store.SearchStock(r.Context(), h.DB, scope, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(items))
}

// Grouped handles GET /api/stocks/grouped?search=&category=&owners=.
func (h *StockHandler) Grouped(w http.ResponseWriter, r *http.Request) {
	scope, err := readScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	query := r.URL.Query()
	owners, err := idList(query.Get("owners"), "owners")
	if err != nil {
		writeError(w, r, err)
		return
	}

	groups, err := store.GroupedStock(r.Context(), h.DB, scope, store.GroupFilter{
		Search:   query.Get("search"),
		Category: query.Get("category"),
		Owners:   owners,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(groups))
}

// CheckDuplicate handles GET /api/stocks/check-duplicate.
func (h *StockHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	owner, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	query := r.URL.Query()
	material, lot := query.Get("material_name"), query.Get("serial_lot_number")
	if material == "" || lot == "" {
		writeError(w, r, apperr.NewValidation("material_name", "material name and serial/lot number are required"))
		return
	}

	dup, err := store.CheckDuplicate(r.Context(), h.DB, material, lot, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"duplicate": dup})
}

// Create handles POST /api/stocks?merge=true.
func (h *StockHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in model.StockInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	merge, _ := strconv.ParseBool(r.URL.Query().Get("merge"))
	item, err := store.AddStockItem(r.Context(), h.DB, in, owner, merge)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "stock.add", "stock_item", item.ID, fmt.Sprintf("%s (%s) +%d", item.MaterialName, item.SerialLotNumber, in.Quantity))
	jsonResponse(w, http.StatusCreated, item)
}

// Bulk handles POST /api/stocks/bulk.
func (h *StockHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	owner, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req stockBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	items, err := store.AddStockItemsBulk(r.Context(), h.DB, req.Items, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "stock.bulk_add", "stock_item", "", fmt.Sprintf("%d items for owner %d", len(items), owner))
	jsonResponse(w, http.StatusCreated, items)
}

// Import handles POST /api/stocks/import, skipping rows that already exist.
func (h *StockHandler) Import(w http.ResponseWriter, r *http.Request) {
	owner, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req stockBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := store.BulkImportWithDuplicateCheck(r.Context(), h.DB, req.Items, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "stock.import", "stock_item", "",
		fmt.Sprintf("saved %d, skipped %d for owner %d", result.SavedCount, result.SkippedCount, owner))
	jsonResponse(w, http.StatusOK, result)
}

// Update handles PUT /api/stocks/{id}.
func (h *StockHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, err := rowOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in model.StockInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	item, err := store.UpdateStockItem(r.Context(), h.DB, id, owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "stock.update", "stock_item", id, fmt.Sprintf("%s (%s) qty=%d", item.MaterialName, item.SerialLotNumber, item.Quantity))
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/stocks/{id}.
func (h *StockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, err := rowOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := store.DeleteStockItem(r.Context(), h.DB, id, owner); err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "stock.delete", "stock_item", id, "")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "stock item deleted"})
}

// DeleteAll handles DELETE /api/stocks/all.
func (h *StockHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	owner, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := store.DeleteAllStock(r.Context(), h.DB, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "stock.delete_all", "user", formatID(owner), fmt.Sprintf("%d rows", n))
	jsonResponse(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Remove handles POST /api/stocks/remove.
func (h *StockHandler) Remove(w http.ResponseWriter, r *http.Request) {
	owner, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req removeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.RemoveStockItems(r.Context(), h.DB, req.Items, owner); err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "stock.remove", "user", formatID(owner), fmt.Sprintf("%d lines", len(req.Items)))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "stock removed"})
}

// Transfer handles POST /api/stocks/transfer. The sender is the resolved
// owner; the stock stays in flight until the receiver acts on the request.
func (h *StockHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	sender, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ReceiverID <= 0 {
		writeError(w, r, apperr.NewValidation("receiver_id", "receiver is required"))
		return
	}

	n, err := store.InitiateTransfer(r.Context(), h.DB, sender, req.ReceiverID, req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "transfer.initiate", "notification", n.ID,
		fmt.Sprintf("%d lines from %d to %d", len(req.Items), sender, req.ReceiverID))
	jsonResponse(w, http.StatusCreated, n)
}
