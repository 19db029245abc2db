package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/agastya71/mysl-pos-project-sub005/internal/auth"
	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
)

// resourcePath splits the remainder after prefix into an id and an optional
// action, so "/api/v1/purchase-orders/po-1/receive" yields ("po-1", "receive").
func resourcePath(prefix string, r *http.Request) (id, action string) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action
}

// --- catalog ---

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		products, err := a.service.ListProducts(r.Context(), activeOnly)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateProduct(r.Context(), grant, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	id, action := resourcePath("/api/v1/products/", r)
	if id == "" || action != "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateProduct(r.Context(), grant, id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleVendors(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	switch r.Method {
	case http.MethodGet:
		vendors, err := a.service.ListVendors(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, vendors)
	case http.MethodPost:
		var req domain.VendorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateVendor(r.Context(), grant, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, categories)
	case http.MethodPost:
		var req domain.CategoryCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateCategory(r.Context(), grant, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategoryActions(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	id, action := resourcePath("/api/v1/categories/", r)
	if id == "" || action != "move" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ParentID string `json:"parent_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	moved, err := a.service.MoveCategory(r.Context(), grant, id, req.ParentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moved)
}

// --- sales ---

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.TransactionCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := a.service.CreateTransaction(r.Context(), grant, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	id, action := resourcePath("/api/v1/transactions/", r)
	if id == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		tx, err := a.service.GetTransaction(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	case action == "void" && r.Method == http.MethodPost:
		var req domain.TransactionVoidRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.TransactionID = id
		voided, err := a.service.VoidTransaction(r.Context(), grant, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, voided)
	case action == "" || action == "void":
		writeMethodNotAllowed(w)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

// --- purchasing ---

func (a *API) handlePurchaseOrders(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	switch r.Method {
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
		orders, err := a.service.ListPurchaseOrders(r.Context(), status, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)
	case http.MethodPost:
		var req domain.POCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreatePurchaseOrder(r.Context(), grant, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseOrderActions(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	id, action := resourcePath("/api/v1/purchase-orders/", r)
	if id == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		po, err := a.service.GetPurchaseOrder(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, po)
		return
	}

	if action == "items" {
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req struct {
			Items []domain.POItemRequest `json:"items"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		po, err := a.service.UpdatePurchaseOrderItems(r.Context(), grant, id, req.Items)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, po)
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var po *domain.PurchaseOrder
	var err error
	switch action {
	case "submit":
		po, err = a.service.SubmitPurchaseOrder(r.Context(), grant, id)
	case "approve":
		po, err = a.service.ApprovePurchaseOrder(r.Context(), grant, id)
	case "receive":
		var req domain.POReceiveRequest
		if decodeErr := decodeJSON(r, &req); decodeErr != nil {
			writeError(w, http.StatusBadRequest, decodeErr)
			return
		}
		po, err = a.service.ReceiveItems(r.Context(), grant, id, req)
	case "cancel":
		var req domain.POCancelRequest
		if decodeErr := decodeJSON(r, &req); decodeErr != nil {
			writeError(w, http.StatusBadRequest, decodeErr)
			return
		}
		po, err = a.service.CancelPurchaseOrder(r.Context(), grant, id, req)
	case "close":
		po, err = a.service.ClosePurchaseOrder(r.Context(), grant, id)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

// --- ledgers ---

func (a *API) handleAdjustments(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	switch r.Method {
	case http.MethodGet:
		productID := r.URL.Query().Get("product_id")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
		entries, err := a.service.ListAdjustments(r.Context(), productID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPost:
		var req domain.AdjustmentCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entry, err := a.service.CreateAdjustment(r.Context(), grant, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStoredValueAccounts(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.StoredValueAccountCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := a.service.CreateStoredValueAccount(r.Context(), grant, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleStoredValueActions(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	id, action := resourcePath("/api/v1/stored-value/", r)
	if id == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		account, err := a.service.GetStoredValueAccount(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	case action == "entries" && r.Method == http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
		entries, err := a.service.ListStoredValueEntries(r.Context(), id, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case action == "adjust" && r.Method == http.MethodPost:
		var req domain.StoredValueAdjustRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.AccountID = id
		entry, err := a.service.AdjustStoredValue(r.Context(), grant, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	case action == "" || action == "entries" || action == "adjust":
		writeMethodNotAllowed(w)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

// --- reporting ---

func (a *API) handleReorderSuggestions(w http.ResponseWriter, r *http.Request, _ auth.Grant) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	report, err := a.service.ReorderSuggestions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	var from, to time.Time
	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("from must be RFC3339"))
			return
		}
		from = parsed
	}
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("to must be RFC3339"))
			return
		}
		to = parsed
	}
	limit := parsePositiveLimit(query.Get("limit"), 100, 1000)

	logs, err := a.service.ListAuditLogs(r.Context(), grant, from, to, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// --- users ---

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request, grant auth.Grant) {
	if err := grant.Require(auth.PermUserManage); err != nil {
		writeServiceError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.auth.ListUsers())
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.auth.CreateUser(req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}
