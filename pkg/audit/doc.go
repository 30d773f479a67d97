// Package audit records who changed what in an organization.
//
// # Overview
//
// Every state-changing org operation and every document mutation that passes
// through the AuditLog hook produces an AuditEvent. Events carry the acting
// user, the organization, the touched resource and, for updates, before/after
// values.
//
// # Sinks
//
//   - DBLogger: PostgreSQL audit_events table with Search
//   - FileLogger: JSON lines with size-based rotation
//   - LogLogger: the process log, always enabled
//   - MemoryLogger: in-process with Search, used by tests
//   - MultiLogger: sync or async fan-out to several sinks
//
// # Usage Example
//
//	event := audit.NewEvent(ctx, audit.EventTypeInviteCreate, org.ID).
//		Resource(audit.ResourceTypeInvite, invite.ID).
//		With("email", invite.Email)
//	_ = audit.FromContext(ctx).Log(ctx, event)
//
// # Export
//
// Export encodes events as JSON, NDJSON or CSV. The API serves it to org
// admins over a Searcher.
package audit
