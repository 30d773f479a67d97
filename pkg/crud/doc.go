// Package crud generates authorized handlers for org-scoped tables.
//
// A Factory builds one Handlers value per table from a small set of
// Options:
//
//	f := crud.NewFactory(store, crud.WithLimiter(limiter), crud.WithHooks(pipeline))
//	tasks, err := f.Build("tasks", crud.Options{
//		ACLFrom:    &crud.ACLFrom{Field: "projectId", Table: "projects"},
//		SoftDelete: true,
//		RateLimit:  &ratelimit.Limit{Max: 30, Window: time.Minute},
//	})
//
// Every handler reads the caller from the request context, resolves the
// caller's role inside the request transaction and evaluates the rbac
// rules before any write. Writes count against the table's rate limit and
// run the hook pipeline: before hooks inside the transaction, after hooks
// once it has committed.
//
// The factory also collects the cascade edges of every table it built;
// pass CascadeTargets to cascade.NewEngine.
package crud
