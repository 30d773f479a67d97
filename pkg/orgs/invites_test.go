package orgs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/rbac"
)

func TestInviteAndAccept(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")

	_, err := f.manager.Invite(as("member"), org.ID, InviteRequest{Email: "dev@acme.io"})
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))

	invite, err := f.manager.Invite(as("admin"), org.ID, InviteRequest{Email: " Dev@Acme.io ", IsAdmin: true})
	require.NoError(t, err)
	assert.Len(t, invite.Token, 64)
	assert.Equal(t, f.now.Add(DefaultInviteTTL), invite.ExpiresAt)

	pending, err := f.manager.PendingInvites(as("admin"), org.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "dev@acme.io", pending[0].Email)
	assert.Empty(t, pending[0].Token)
	assert.False(t, pending[0].Expired)

	membership, err := f.manager.AcceptInvite(as("dev"), invite.Token)
	require.NoError(t, err)
	assert.True(t, membership.IsAdmin)

	info, err := f.manager.Membership(as("dev"), org.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, info.Role)

	// the token is single use
	_, err = f.manager.AcceptInvite(as("dev2"), invite.Token)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInvite))
	assert.Len(t, f.audit.OfType(audit.EventTypeInviteAccept), 1)
}

func TestAcceptInviteErrors(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")

	_, err := f.manager.AcceptInvite(as("dev"), "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInvite))
	_, err = f.manager.AcceptInvite(as("dev"), "unknown")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInvite))

	invite, err := f.manager.Invite(as("owner"), org.ID, InviteRequest{Email: "member@acme.io"})
	require.NoError(t, err)
	_, err = f.manager.AcceptInvite(as("member"), invite.Token)
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyOrgMember))
	_, err = f.manager.AcceptInvite(as("owner"), invite.Token)
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyOrgMember))

	f.advance(DefaultInviteTTL + time.Second)
	_, err = f.manager.AcceptInvite(as("dev"), invite.Token)
	assert.True(t, apperr.Is(err, apperr.CodeInviteExpired))

	// expired invites stay listed until revoked
	pending, err := f.manager.PendingInvites(as("admin"), org.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Expired)
}

func TestInviteValidation(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")

	for _, email := range []string{"", "not-an-email", "Dev <dev@acme.io>"} {
		_, err := f.manager.Invite(as("admin"), org.ID, InviteRequest{Email: email})
		assert.True(t, apperr.Is(err, apperr.CodeValidationFailed), email)
	}

	_, err := f.manager.Invite(as("admin"), "missing", InviteRequest{Email: "dev@acme.io"})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestRevokeInvite(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "Acme")

	invite, err := f.manager.Invite(as("admin"), org.ID, InviteRequest{Email: "dev@acme.io"})
	require.NoError(t, err)

	err = f.manager.RevokeInvite(as("member"), invite.InviteID)
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))

	require.NoError(t, f.manager.RevokeInvite(as("admin"), invite.InviteID))
	err = f.manager.RevokeInvite(as("admin"), invite.InviteID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = f.manager.AcceptInvite(as("dev"), invite.Token)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInvite))
	assert.Len(t, f.audit.OfType(audit.EventTypeInviteRevoke), 1)
}
