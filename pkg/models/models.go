// Package models holds the records owned by the organization engine.
package models

import (
	"time"
)

// Organization represents a tenant. The owner is identified by OwnerUserID
// and does not need a Membership row.
type Organization struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	OwnerUserID string     `json:"owner_user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RemovingAt  *time.Time `json:"removing_at,omitempty"`
}

// Removing reports whether cascade removal of the organization has started
func (o *Organization) Removing() bool {
	return o.RemovingAt != nil
}

// PublicOrganization is the subset of an organization visible without membership
type PublicOrganization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Public returns the publicly visible fields of the organization
func (o *Organization) Public() *PublicOrganization {
	return &PublicOrganization{ID: o.ID, Name: o.Name, Slug: o.Slug}
}

// Membership links a user to an organization
type Membership struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	UserID    string    `json:"user_id"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invite is an outstanding invitation to join an organization
type Invite struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	InvitedBy string    `json:"invited_by"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the invite can no longer be accepted at now
func (i *Invite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// JoinRequestStatus is the state of a join request
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// JoinRequest is a non-member's request to join an organization
type JoinRequest struct {
	ID        string            `json:"id"`
	OrgID     string            `json:"org_id"`
	UserID    string            `json:"user_id"`
	Message   string            `json:"message,omitempty"`
	Status    JoinRequestStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
