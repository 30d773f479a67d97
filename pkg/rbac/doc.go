// Package rbac derives organization roles and evaluates permissions on
// org-scoped resources.
//
// # Roles
//
// A caller's role is never stored. It is computed per request from two facts:
//
//	owner   userID == organization.OwnerUserID
//	admin   membership row with IsAdmin
//	member  membership row without IsAdmin
//	none    no membership row
//
// Ownership does not depend on a membership row. After an ownership transfer
// the previous owner's role falls back to whatever their membership row says.
//
// # Permissions
//
// CanAccess answers one question for one operation:
//
//	list, read, create            role >= member
//	update                        role >= admin, or creator, or listed editor (ACL)
//	delete, bulk, editors,
//	restore                       role >= admin
//
// Check wraps CanAccess and returns the error to surface:
//
//	if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpUpdate, UserID: uid, Resource: doc, ACL: true}); err != nil {
//		return err // NOT_ORG_MEMBER, INSUFFICIENT_ORG_ROLE or FORBIDDEN
//	}
//
// # Resolution
//
// Resolver.Resolve loads the organization and membership inside the current
// storage transaction. Organizations whose removal has started resolve as
// NOT_FOUND.
package rbac
