package orgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/rbac"
)

func TestMembers(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")

	members, err := f.manager.Members(as("member"), org.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
	roles := map[string]rbac.Role{}
	for _, m := range members {
		roles[m.UserID] = m.Role
	}
	assert.Equal(t, map[string]rbac.Role{
		"owner":  rbac.RoleOwner,
		"admin":  rbac.RoleAdmin,
		"member": rbac.RoleMember,
	}, roles)

	_, err = f.manager.Members(as("stranger"), org.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))

	info, err := f.manager.Membership(as("stranger"), org.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleNone, info.Role)
	assert.Nil(t, info.Membership)
}

func TestSetAdmin(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")

	_, err := f.manager.SetAdmin(as("admin"), "m-member", true)
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))

	membership, err := f.manager.SetAdmin(as("owner"), "m-member", true)
	require.NoError(t, err)
	assert.True(t, membership.IsAdmin)

	info, err := f.manager.Membership(as("member"), org.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, info.Role)

	// no change, no event
	_, err = f.manager.SetAdmin(as("owner"), "m-member", true)
	require.NoError(t, err)
	assert.Len(t, f.audit.OfType(audit.EventTypeMemberSetAdmin), 1)

	ownerInfo, err := f.manager.Membership(as("owner"), org.ID)
	require.NoError(t, err)
	_, err = f.manager.SetAdmin(as("owner"), ownerInfo.Membership.ID, false)
	assert.True(t, apperr.Is(err, apperr.CodeCannotModifyOwner))

	_, err = f.manager.SetAdmin(as("owner"), "missing", true)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")
	f.addMember(t, org.ID, "admin2", true)
	ownerInfo, err := f.manager.Membership(as("owner"), org.ID)
	require.NoError(t, err)

	tests := []struct {
		name     string
		caller   string
		memberID string
		code     apperr.Code
	}{
		{name: "member cannot remove", caller: "member", memberID: "m-admin", code: apperr.CodeInsufficientOrgRole},
		{name: "admin cannot remove owner", caller: "admin", memberID: ownerInfo.Membership.ID, code: apperr.CodeCannotModifyOwner},
		{name: "admin cannot remove admin", caller: "admin", memberID: "m-admin2", code: apperr.CodeCannotModifyAdmin},
		{name: "stranger", caller: "stranger", memberID: "m-member", code: apperr.CodeNotOrgMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.manager.RemoveMember(as(tt.caller), tt.memberID)
			assert.True(t, apperr.Is(err, tt.code), "got %v", err)
		})
	}

	require.NoError(t, f.manager.RemoveMember(as("admin"), "m-member"))
	require.NoError(t, f.manager.RemoveMember(as("owner"), "m-admin2"))

	_, err = f.manager.Get(as("member"), org.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))
	assert.Len(t, f.audit.OfType(audit.EventTypeMemberRemove), 2)
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")

	err := f.manager.Leave(as("owner"), org.ID)
	assert.True(t, apperr.Is(err, apperr.CodeMustTransferOwnership))

	err = f.manager.Leave(as("stranger"), org.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))

	require.NoError(t, f.manager.Leave(as("member"), org.ID))
	info, err := f.manager.Membership(as("member"), org.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleNone, info.Role)
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")

	_, err := f.manager.TransferOwnership(as("admin"), org.ID, "admin")
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))

	_, err = f.manager.TransferOwnership(as("owner"), org.ID, "member")
	assert.True(t, apperr.Is(err, apperr.CodeTargetMustBeAdmin))

	_, err = f.manager.TransferOwnership(as("owner"), org.ID, "stranger")
	assert.True(t, apperr.Is(err, apperr.CodeTargetMustBeAdmin))

	result, err := f.manager.TransferOwnership(as("owner"), org.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", result.OwnerUserID)
	assert.Equal(t, rbac.RoleAdmin, result.Role)

	info, err := f.manager.Membership(as("admin"), org.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleOwner, info.Role)

	// the previous owner is an ordinary admin now and may leave
	info, err = f.manager.Membership(as("owner"), org.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, info.Role)
	require.NoError(t, f.manager.Leave(as("owner"), org.ID))

	assert.Len(t, f.audit.OfType(audit.EventTypeOrgTransferOwnership), 1)
}
