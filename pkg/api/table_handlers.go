package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/crud"
	"github.com/1qh/nexvex/pkg/httputil"
)

// wherePrefix marks list query parameters that filter on data fields:
// ?where.status=open
const wherePrefix = "where."

// TableHandlers serves the generated operations of org-scoped tables
type TableHandlers struct {
	tables TableSource
}

// NewTableHandlers creates a new TableHandlers
func NewTableHandlers(tables TableSource) *TableHandlers {
	return &TableHandlers{tables: tables}
}

// RegisterRoutes registers table routes
func (h *TableHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/t/{table}", h.List).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{org_id}/t/{table}", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org_id}/t/{table}/bulk", h.BulkCreate).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org_id}/t/{table}/bulk", h.BulkUpdate).Methods(http.MethodPatch)
	router.HandleFunc("/orgs/{org_id}/t/{table}/bulk-remove", h.BulkRemove).Methods(http.MethodPost)

	router.HandleFunc("/t/{table}/{id}", h.Read).Methods(http.MethodGet)
	router.HandleFunc("/t/{table}/{id}", h.Update).Methods(http.MethodPatch)
	router.HandleFunc("/t/{table}/{id}", h.Remove).Methods(http.MethodDelete)
	router.HandleFunc("/t/{table}/{id}/restore", h.Restore).Methods(http.MethodPost)
	router.HandleFunc("/t/{table}/{id}/editors", h.Editors).Methods(http.MethodGet)
	router.HandleFunc("/t/{table}/{id}/editors", h.AddEditor).Methods(http.MethodPost)
	router.HandleFunc("/t/{table}/{id}/editors", h.SetEditors).Methods(http.MethodPut)
	router.HandleFunc("/t/{table}/{id}/editors/{user_id}", h.RemoveEditor).Methods(http.MethodDelete)
}

// handlers returns the table named in the path, writing NOT_FOUND when the
// table is unknown
func (h *TableHandlers) handlers(w http.ResponseWriter, r *http.Request) (*crud.Handlers, bool) {
	table := httputil.PathString(r, "table")
	t, ok := h.tables.Handlers(table)
	if !ok {
		httputil.WriteAppError(w, r, apperr.NotFound("table"))
		return nil, false
	}
	return t, true
}

// unsupported answers operations a table was not configured for
func unsupported(w http.ResponseWriter, r *http.Request, t *crud.Handlers, op string) {
	httputil.WriteAppError(w, r, apperr.Newf(apperr.CodeNotFound, "table %s does not support %s", t.Table, op))
}

// List lists the documents of an organization
func (h *TableHandlers) List(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	includeDeleted, err := httputil.ParseQueryBool(r, "include_deleted", false)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	req := crud.ListRequest{
		OrgID:          httputil.PathString(r, "org_id"),
		IncludeDeleted: includeDeleted,
		Limit:          limit,
	}
	for key, values := range r.URL.Query() {
		if field := strings.TrimPrefix(key, wherePrefix); field != key && field != "" && len(values) > 0 {
			if req.Where == nil {
				req.Where = make(map[string]string)
			}
			req.Where[field] = values[0]
		}
	}

	docs, err := t.List(r.Context(), req)
	httputil.Respond(w, r, http.StatusOK, docs, err)
}

// Create creates a document from the request body's fields
func (h *TableHandlers) Create(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	var data map[string]any
	if !httputil.ParseJSONOrError(w, r, &data) {
		return
	}
	doc, err := t.Create(r.Context(), crud.CreateRequest{OrgID: httputil.PathString(r, "org_id"), Data: data})
	httputil.Respond(w, r, http.StatusCreated, doc, err)
}

// BulkCreate creates several documents in one transaction
func (h *TableHandlers) BulkCreate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	var req crud.BulkCreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.OrgID = httputil.PathString(r, "org_id")
	docs, err := t.BulkCreate(r.Context(), req)
	httputil.Respond(w, r, http.StatusCreated, docs, err)
}

// BulkUpdate applies one patch to several documents
func (h *TableHandlers) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	var req crud.BulkUpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.OrgID = httputil.PathString(r, "org_id")
	docs, err := t.BulkUpdate(r.Context(), req)
	httputil.Respond(w, r, http.StatusOK, docs, err)
}

// BulkRemove removes several documents
func (h *TableHandlers) BulkRemove(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	var req crud.BulkRemoveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.OrgID = httputil.PathString(r, "org_id")
	n, err := t.BulkRemove(r.Context(), req)
	httputil.Respond(w, r, http.StatusOK, map[string]int{"removed": n}, err)
}

// Read returns one document
func (h *TableHandlers) Read(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	includeDeleted, err := httputil.ParseQueryBool(r, "include_deleted", false)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	doc, err := t.Read(r.Context(), crud.ReadRequest{ID: httputil.PathString(r, "id"), IncludeDeleted: includeDeleted})
	httputil.Respond(w, r, http.StatusOK, doc, err)
}

// Update patches one document
func (h *TableHandlers) Update(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	var req crud.UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.ID = httputil.PathString(r, "id")
	doc, err := t.Update(r.Context(), req)
	httputil.Respond(w, r, http.StatusOK, doc, err)
}

// Remove deletes one document, or marks it deleted on soft-delete tables
func (h *TableHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	doc, err := t.Remove(r.Context(), httputil.PathString(r, "id"))
	httputil.Respond(w, r, http.StatusOK, doc, err)
}

// Restore undoes a soft delete
func (h *TableHandlers) Restore(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	if t.Restore == nil {
		unsupported(w, r, t, "restore")
		return
	}
	doc, err := t.Restore(r.Context(), httputil.PathString(r, "id"))
	httputil.Respond(w, r, http.StatusOK, doc, err)
}

// Editors lists the editors of a document
func (h *TableHandlers) Editors(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	if t.Editors == nil {
		unsupported(w, r, t, "editors")
		return
	}
	editors, err := t.Editors(r.Context(), httputil.PathString(r, "id"))
	httputil.Respond(w, r, http.StatusOK, map[string][]string{"editors": editors}, err)
}

type editorRequest struct {
	UserID string `json:"user_id"`
}

// AddEditor grants one member edit access
func (h *TableHandlers) AddEditor(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	if t.AddEditor == nil {
		unsupported(w, r, t, "editors")
		return
	}
	var req editorRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	doc, err := t.AddEditor(r.Context(), crud.EditorRequest{ID: httputil.PathString(r, "id"), UserID: req.UserID})
	httputil.Respond(w, r, http.StatusOK, doc, err)
}

type setEditorsRequest struct {
	UserIDs []string `json:"user_ids"`
}

// SetEditors replaces the editor list
func (h *TableHandlers) SetEditors(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	if t.SetEditors == nil {
		unsupported(w, r, t, "editors")
		return
	}
	var req setEditorsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	doc, err := t.SetEditors(r.Context(), crud.SetEditorsRequest{ID: httputil.PathString(r, "id"), UserIDs: req.UserIDs})
	httputil.Respond(w, r, http.StatusOK, doc, err)
}

// RemoveEditor revokes one editor
func (h *TableHandlers) RemoveEditor(w http.ResponseWriter, r *http.Request) {
	t, ok := h.handlers(w, r)
	if !ok {
		return
	}
	if t.RemoveEditor == nil {
		unsupported(w, r, t, "editors")
		return
	}
	doc, err := t.RemoveEditor(r.Context(), crud.EditorRequest{
		ID:     httputil.PathString(r, "id"),
		UserID: httputil.PathString(r, "user_id"),
	})
	httputil.Respond(w, r, http.StatusOK, doc, err)
}
