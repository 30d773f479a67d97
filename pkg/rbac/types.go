package rbac

import (
	"github.com/1qh/nexvex/pkg/models"
)

// Role is a caller's derived role within an organization. Roles are totally
// ordered: RoleNone < RoleMember < RoleAdmin < RoleOwner.
type Role int

const (
	RoleNone Role = iota
	RoleMember
	RoleAdmin
	RoleOwner
)

// String returns the wire name of the role
func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// MarshalText encodes the role by name
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// AtLeast reports whether r meets the threshold min
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// Operation is an operation on an org-scoped resource
type Operation string

const (
	OpList          Operation = "list"
	OpRead          Operation = "read"
	OpCreate        Operation = "create"
	OpUpdate        Operation = "update"
	OpDelete        Operation = "delete"
	OpBulk          Operation = "bulk"
	OpManageEditors Operation = "editors"
	OpRestore       Operation = "restore"
)

// Access describes one permission question
type Access struct {
	Role      Role
	Operation Operation
	UserID    string
	// Resource is the document the operation targets, or the parent document
	// when permissions are inherited. Nil for collection operations.
	Resource *models.Document
	// ACL enables the editor-list exception for updates
	ACL bool
}
