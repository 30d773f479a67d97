// Package janitor resumes organization removals left incomplete.
//
// Removing an organization marks it, clears its memberships and invites,
// then cascades through its documents. When the process stops mid-cascade
// or rows fail to delete, the organization stays marked. Sweep finds marked
// organizations older than the stale threshold and resumes each through the
// cascade engine.
//
// # Usage Example
//
//	j := janitor.New(store, engine, 5*time.Minute, janitor.WithLogger(logger))
//	c := cron.New()
//	c.AddFunc("@every 1m", func() {
//		if _, err := j.Sweep(ctx); err != nil {
//			log.Printf("sweep failed: %v", err)
//		}
//	})
//	c.Start()
//
// # Related Packages
//
//   - pkg/cascade: removal engine
//   - cmd/nexvex-janitor: scheduled sweeps
package janitor
