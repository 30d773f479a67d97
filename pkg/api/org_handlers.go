package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/httputil"
	"github.com/1qh/nexvex/pkg/orgs"
)

var notFoundRoute = apperr.Newf(apperr.CodeNotFound, "route not found")

// OrgHandlers serves organizations, membership, invites and join requests
type OrgHandlers struct {
	orgService orgs.Service
}

// NewOrgHandlers creates a new OrgHandlers
func NewOrgHandlers(orgService orgs.Service) *OrgHandlers {
	return &OrgHandlers{orgService: orgService}
}

// RegisterRoutes registers organization routes. Fixed paths under /orgs are
// registered before /orgs/{org_id} so they are not taken for ids.
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.CreateOrganization).Methods(http.MethodPost)
	router.HandleFunc("/orgs", h.MyOrganizations).Methods(http.MethodGet)
	router.HandleFunc("/orgs/slug-available", h.IsSlugAvailable).Methods(http.MethodGet)
	router.HandleFunc("/orgs/by-slug/{slug}", h.GetOrganizationBySlug).Methods(http.MethodGet)
	router.HandleFunc("/public/orgs/{slug}", h.GetPublicOrganization).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{org_id}", h.GetOrganization).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{org_id}", h.UpdateOrganization).Methods(http.MethodPatch)
	router.HandleFunc("/orgs/{org_id}", h.RemoveOrganization).Methods(http.MethodDelete)

	// Membership
	router.HandleFunc("/orgs/{org_id}/membership", h.GetMembership).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{org_id}/members", h.ListMembers).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{org_id}/leave", h.Leave).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org_id}/transfer", h.TransferOwnership).Methods(http.MethodPost)
	router.HandleFunc("/members/{member_id}", h.SetAdmin).Methods(http.MethodPatch)
	router.HandleFunc("/members/{member_id}", h.RemoveMember).Methods(http.MethodDelete)

	// Invites
	router.HandleFunc("/orgs/{org_id}/invites", h.CreateInvite).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org_id}/invites", h.ListInvites).Methods(http.MethodGet)
	router.HandleFunc("/invites/accept", h.AcceptInvite).Methods(http.MethodPost)
	router.HandleFunc("/invites/{invite_id}", h.RevokeInvite).Methods(http.MethodDelete)

	// Join requests
	router.HandleFunc("/orgs/{org_id}/join-requests", h.RequestJoin).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org_id}/join-requests", h.ListJoinRequests).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{org_id}/join-requests/mine", h.MyJoinRequest).Methods(http.MethodGet)
	router.HandleFunc("/join-requests/{request_id}/approve", h.ApproveJoinRequest).Methods(http.MethodPost)
	router.HandleFunc("/join-requests/{request_id}/reject", h.RejectJoinRequest).Methods(http.MethodPost)
	router.HandleFunc("/join-requests/{request_id}", h.CancelJoinRequest).Methods(http.MethodDelete)
}

// CreateOrganization creates an organization owned by the caller
func (h *OrgHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req orgs.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, err := h.orgService.Create(r.Context(), req)
	httputil.Respond(w, r, http.StatusCreated, org, err)
}

// MyOrganizations lists the organizations the caller belongs to
func (h *OrgHandlers) MyOrganizations(w http.ResponseWriter, r *http.Request) {
	list, err := h.orgService.MyOrgs(r.Context())
	httputil.Respond(w, r, http.StatusOK, list, err)
}

// IsSlugAvailable reports whether ?slug= is free
func (h *OrgHandlers) IsSlugAvailable(w http.ResponseWriter, r *http.Request) {
	available, err := h.orgService.IsSlugAvailable(r.Context(), httputil.ParseQueryString(r, "slug", ""))
	httputil.Respond(w, r, http.StatusOK, map[string]bool{"available": available}, err)
}

// GetOrganizationBySlug returns an organization the caller belongs to
func (h *OrgHandlers) GetOrganizationBySlug(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgService.GetBySlug(r.Context(), httputil.PathString(r, "slug"))
	httputil.Respond(w, r, http.StatusOK, org, err)
}

// GetPublicOrganization returns the public view of an organization
func (h *OrgHandlers) GetPublicOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgService.GetPublic(r.Context(), httputil.PathString(r, "slug"))
	httputil.Respond(w, r, http.StatusOK, org, err)
}

// GetOrganization returns an organization the caller belongs to
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgService.Get(r.Context(), httputil.PathString(r, "org_id"))
	httputil.Respond(w, r, http.StatusOK, org, err)
}

// UpdateOrganization renames an organization or changes its slug
func (h *OrgHandlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var req orgs.UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, err := h.orgService.Update(r.Context(), httputil.PathString(r, "org_id"), req)
	httputil.Respond(w, r, http.StatusOK, org, err)
}

// RemoveOrganization removes an organization and everything it owns
func (h *OrgHandlers) RemoveOrganization(w http.ResponseWriter, r *http.Request) {
	result, err := h.orgService.Remove(r.Context(), httputil.PathString(r, "org_id"))
	httputil.Respond(w, r, http.StatusOK, result, err)
}

// GetMembership returns the caller's role in an organization
func (h *OrgHandlers) GetMembership(w http.ResponseWriter, r *http.Request) {
	info, err := h.orgService.Membership(r.Context(), httputil.PathString(r, "org_id"))
	httputil.Respond(w, r, http.StatusOK, info, err)
}

// ListMembers lists the members of an organization
func (h *OrgHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.orgService.Members(r.Context(), httputil.PathString(r, "org_id"))
	httputil.Respond(w, r, http.StatusOK, members, err)
}

// Leave removes the caller's own membership
func (h *OrgHandlers) Leave(w http.ResponseWriter, r *http.Request) {
	err := h.orgService.Leave(r.Context(), httputil.PathString(r, "org_id"))
	httputil.Respond(w, r, http.StatusNoContent, nil, err)
}

type transferRequest struct {
	NewOwnerUserID string `json:"new_owner_user_id"`
}

// TransferOwnership hands the organization to one of its admins
func (h *OrgHandlers) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, err := h.orgService.TransferOwnership(r.Context(), httputil.PathString(r, "org_id"), req.NewOwnerUserID)
	httputil.Respond(w, r, http.StatusOK, org, err)
}

type setAdminRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

// SetAdmin grants or revokes the admin flag of a membership
func (h *OrgHandlers) SetAdmin(w http.ResponseWriter, r *http.Request) {
	var req setAdminRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.IsAdmin == nil {
		httputil.WriteBadRequest(w, r, "is_admin", "is required")
		return
	}
	membership, err := h.orgService.SetAdmin(r.Context(), httputil.PathString(r, "member_id"), *req.IsAdmin)
	httputil.Respond(w, r, http.StatusOK, membership, err)
}

// RemoveMember removes another member from the organization
func (h *OrgHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.orgService.RemoveMember(r.Context(), httputil.PathString(r, "member_id"))
	httputil.Respond(w, r, http.StatusNoContent, nil, err)
}

// CreateInvite invites an email address to the organization
func (h *OrgHandlers) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req orgs.InviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	invite, err := h.orgService.Invite(r.Context(), httputil.PathString(r, "org_id"), req)
	httputil.Respond(w, r, http.StatusCreated, invite, err)
}

// ListInvites lists outstanding invites, tokens withheld
func (h *OrgHandlers) ListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.orgService.PendingInvites(r.Context(), httputil.PathString(r, "org_id"))
	httputil.Respond(w, r, http.StatusOK, invites, err)
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

// AcceptInvite joins the organization an invite token was issued for
func (h *OrgHandlers) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	membership, err := h.orgService.AcceptInvite(r.Context(), req.Token)
	httputil.Respond(w, r, http.StatusOK, membership, err)
}

// RevokeInvite deletes an outstanding invite
func (h *OrgHandlers) RevokeInvite(w http.ResponseWriter, r *http.Request) {
	err := h.orgService.RevokeInvite(r.Context(), httputil.PathString(r, "invite_id"))
	httputil.Respond(w, r, http.StatusNoContent, nil, err)
}

type joinRequest struct {
	Message string `json:"message"`
}

// RequestJoin asks to join an organization
func (h *OrgHandlers) RequestJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := httputil.ParseJSON(r, &req, false); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	jr, err := h.orgService.RequestJoin(r.Context(), httputil.PathString(r, "org_id"), req.Message)
	httputil.Respond(w, r, http.StatusCreated, jr, err)
}

// ListJoinRequests lists pending join requests for admins
func (h *OrgHandlers) ListJoinRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.orgService.PendingJoinRequests(r.Context(), httputil.PathString(r, "org_id"))
	httputil.Respond(w, r, http.StatusOK, list, err)
}

// MyJoinRequest returns the caller's pending request, or null
func (h *OrgHandlers) MyJoinRequest(w http.ResponseWriter, r *http.Request) {
	jr, err := h.orgService.MyJoinRequest(r.Context(), httputil.PathString(r, "org_id"))
	httputil.Respond(w, r, http.StatusOK, jr, err)
}

type approveRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// ApproveJoinRequest admits the requester
func (h *OrgHandlers) ApproveJoinRequest(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := httputil.ParseJSON(r, &req, false); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	jr, err := h.orgService.ApproveJoinRequest(r.Context(), httputil.PathString(r, "request_id"), req.IsAdmin)
	httputil.Respond(w, r, http.StatusOK, jr, err)
}

// RejectJoinRequest declines the requester
func (h *OrgHandlers) RejectJoinRequest(w http.ResponseWriter, r *http.Request) {
	jr, err := h.orgService.RejectJoinRequest(r.Context(), httputil.PathString(r, "request_id"))
	httputil.Respond(w, r, http.StatusOK, jr, err)
}

// CancelJoinRequest withdraws the caller's own pending request
func (h *OrgHandlers) CancelJoinRequest(w http.ResponseWriter, r *http.Request) {
	err := h.orgService.CancelJoinRequest(r.Context(), httputil.PathString(r, "request_id"))
	httputil.Respond(w, r, http.StatusNoContent, nil, err)
}
