package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/1qh/nexvex/pkg/contextkeys"
)

func TestOrgContextMiddleware(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(OrgContextMiddleware)
	handler := func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetOrgID(r.Context())
	}
	router.HandleFunc("/orgs/{org_id}", handler)
	router.HandleFunc("/t/{table}/{id}", handler)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orgs/o1", nil))
	assert.Equal(t, "o1", seen)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/t/notes/n1", nil))
	assert.Empty(t, seen)
}
