package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/httputil"
	"github.com/1qh/nexvex/pkg/orgs"
	"github.com/1qh/nexvex/pkg/rbac"
)

const maxAuditExport = 1000

// AuditHandlers exports the audit trail of an organization to its admins
type AuditHandlers struct {
	orgService orgs.Service
	searcher   audit.Searcher
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(orgService orgs.Service, searcher audit.Searcher) *AuditHandlers {
	return &AuditHandlers{orgService: orgService, searcher: searcher}
}

// RegisterRoutes registers the audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/audit", h.ExportEvents).Methods(http.MethodGet)
}

// ExportEvents writes the newest events of an organization as JSON, NDJSON
// or CSV (?format=). ?type= narrows to event types, comma separated.
func (h *AuditHandlers) ExportEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, err := h.orgService.Membership(ctx, httputil.PathString(r, "org_id"))
	if err == nil {
		err = rbac.Require(info.Role, rbac.RoleAdmin)
	}
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	format := audit.ExportFormat(strings.ToLower(httputil.ParseQueryString(r, "format", string(audit.ExportFormatJSON))))
	switch format {
	case audit.ExportFormatJSON, audit.ExportFormatNDJSON, audit.ExportFormatCSV:
	default:
		httputil.WriteBadRequest(w, r, "format", "must be json, ndjson or csv")
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err == nil && (limit < 1 || limit > maxAuditExport) {
		err = apperr.Validation(map[string]string{"limit": "must be between 1 and 1000"})
	}
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	filter := audit.SearchFilter{OrgID: info.OrgID, Limit: limit}
	if types := httputil.ParseQueryString(r, "type", ""); types != "" {
		for _, t := range strings.Split(types, ",") {
			filter.EventTypes = append(filter.EventTypes, audit.EventType(strings.TrimSpace(t)))
		}
	}

	events, err := h.searcher.Search(ctx, filter)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	body, err := audit.Export(events, format)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format == audit.ExportFormatCSV {
		w.Header().Set("Content-Disposition", `attachment; filename="audit-`+info.OrgID+`.csv"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
