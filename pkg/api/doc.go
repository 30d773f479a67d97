// Package api exposes the organization engine over HTTP.
//
// # Overview
//
// Server routes organization management (create, membership, invites, join
// requests) to an orgs.Service and the generated table operations to the
// crud handlers. Every engine error is written by httputil.WriteAppError, so
// status codes follow the apperr taxonomy.
//
// # Routes
//
// Organizations:
//
//	POST   /orgs                         GET /orgs
//	GET    /orgs/slug-available?slug=    GET /orgs/by-slug/{slug}
//	GET    /public/orgs/{slug}
//	GET    /orgs/{org_id}                PATCH /orgs/{org_id}    DELETE /orgs/{org_id}
//
// Membership, invites and join requests:
//
//	GET    /orgs/{org_id}/membership     GET /orgs/{org_id}/members
//	POST   /orgs/{org_id}/leave          POST /orgs/{org_id}/transfer
//	PATCH  /members/{member_id}          DELETE /members/{member_id}
//	POST   /orgs/{org_id}/invites        GET /orgs/{org_id}/invites
//	POST   /invites/accept               DELETE /invites/{invite_id}
//	POST   /orgs/{org_id}/join-requests  GET /orgs/{org_id}/join-requests
//	GET    /orgs/{org_id}/join-requests/mine
//	POST   /join-requests/{request_id}/approve|reject
//	DELETE /join-requests/{request_id}
//
// Tables:
//
//	GET|POST /orgs/{org_id}/t/{table}    POST|PATCH /orgs/{org_id}/t/{table}/bulk
//	POST     /orgs/{org_id}/t/{table}/bulk-remove
//	GET|PATCH|DELETE /t/{table}/{id}     POST /t/{table}/{id}/restore
//	GET|POST|PUT /t/{table}/{id}/editors DELETE /t/{table}/{id}/editors/{user_id}
//
// Audit, registered with WithAuditSearcher:
//
//	GET    /orgs/{org_id}/audit?format=json|ndjson|csv&type=&limit=
//
// # Usage Example
//
//	server := api.NewServer(manager, factory,
//		api.WithAuthenticator(middleware.NewHeaderAuthenticator("X-User-ID")),
//		api.WithRequestLimiter(limiter, middleware.DefaultRateLimitConfig()),
//		api.WithLogger(logger),
//		api.WithMetrics(metrics),
//	)
//	http.ListenAndServe(":8080", server.Handler())
//
//	ops := api.NewOpsRouter(checker, registry)
//	http.ListenAndServe(":9090", ops)
//
// # Related Packages
//
//   - pkg/orgs: organization management
//   - pkg/crud: generated table operations
//   - pkg/middleware: caller identification and request limits
package api
