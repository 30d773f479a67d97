// Package hooks implements the ordered middleware pipeline that wraps every
// document mutation.
//
// Each stage embeds Base and overrides what it needs:
//
//	type stamp struct{ hooks.Base }
//
//	func (stamp) BeforeCreate(ctx context.Context, op *hooks.Operation, data map[string]any) (map[string]any, error) {
//		data["source"] = "api"
//		return data, nil
//	}
//
// Before hooks run in order, each receiving the payload returned by the
// previous stage; the first error aborts the request before anything is
// written. After hooks run in order once the transaction has committed;
// a panicking after hook is recovered, logged and counted.
//
// Built-ins: AuditLog, Sanitize and SlowOperation. FromNames assembles a
// pipeline from the names used in configuration.
package hooks
