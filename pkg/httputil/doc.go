// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every engine error travels through WriteAppError, which maps the
// apperr code to its HTTP status and writes an ErrorResponse:
//
//	org, err := svc.Get(r.Context(), httputil.PathString(r, "org_id"))
//	httputil.Respond(w, r, http.StatusOK, org, err)
//
// RATE_LIMITED responses also carry Retry-After and X-RateLimit-* headers.
// Errors that are not *apperr.Error are logged and reported as INTERNAL
// without their message.
//
// # Request Parsing
//
//	var req orgs.CreateRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 0)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: caller authentication
//   - pkg/apperr: error codes and their HTTP statuses
package httputil
