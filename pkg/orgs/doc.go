// Package orgs manages organizations, their members, invites and join
// requests.
//
// # Overview
//
// An organization is owned by exactly one user, identified by OwnerUserID.
// Everyone else reaches it through a Membership row whose IsAdmin flag
// makes them an admin or a plain member. Roles are derived on every call by
// rbac.Resolver inside the request transaction and are never cached.
//
// # Membership Lifecycle
//
// Users join through one of two paths:
//
//   - Invite: an admin issues a random 64-character hex token for an email
//     address. Whoever presents the token before it expires becomes a
//     member, with IsAdmin copied from the invite.
//   - Join request: a non-member asks to join; an admin approves (choosing
//     IsAdmin) or rejects. The requester may cancel while it is pending.
//
// The owner may promote and demote members and hand ownership to an admin.
// After a transfer the previous owner keeps their membership row and is an
// admin.
//
// # Removal
//
// Remove marks the organization as removing, deletes its memberships,
// invites and join requests in one transaction and then lets the cascade
// engine delete dependent documents. A removing organization reads as
// NOT_FOUND everywhere except to its owner's Remove, which resumes an
// interrupted pass.
//
// # Usage Example
//
//	manager := orgs.NewManager(store, engine,
//		orgs.WithAuditLogger(auditLogger),
//		orgs.WithMetrics(metrics),
//	)
//
//	org, err := manager.Create(ctx, orgs.CreateRequest{Name: "Acme Corp"})
//	invite, err := manager.Invite(ctx, org.ID, orgs.InviteRequest{Email: "dev@acme.io"})
//
// # Related Packages
//
//   - pkg/rbac: role derivation and the permission matrix
//   - pkg/cascade: dependent document removal
//   - pkg/crud: org-scoped table handlers
package orgs
