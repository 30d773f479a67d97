package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/1qh/nexvex/pkg/contextkeys"
)

// OrgContextMiddleware copies the org_id route variable into the request
// context so logs and audit events carry it. It performs no lookup;
// membership is checked by the engine inside the request transaction.
func OrgContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if orgID := mux.Vars(r)["org_id"]; orgID != "" {
			r = r.WithContext(contextkeys.WithOrgID(r.Context(), orgID))
		}
		next.ServeHTTP(w, r)
	})
}
