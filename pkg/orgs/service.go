package orgs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/cascade"
	"github.com/1qh/nexvex/pkg/contextkeys"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/rbac"
	"github.com/1qh/nexvex/pkg/storage"
)

const (
	// DefaultInviteTTL is how long an invite can be accepted
	DefaultInviteTTL = 7 * 24 * time.Hour

	minSlugLength = 2
	maxSlugLength = 48
	maxNameLength = 100
)

const metricsResource = "organization"

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// Manager implements Service over a transactional store
type Manager struct {
	store     storage.Store
	resolver  *rbac.Resolver
	cascade   *cascade.Engine
	audit     audit.Logger
	cache     *publicCache
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string
	newToken  func() (string, error)
	inviteTTL time.Duration
	cacheCfg  CacheConfig
}

var _ Service = (*Manager)(nil)

// Option configures a Manager
type Option func(*Manager)

// WithAuditLogger records state changes on sink instead of the logger
// carried by the request context
func WithAuditLogger(sink audit.Logger) Option {
	return func(m *Manager) {
		m.audit = sink
	}
}

// WithLogger sets the manager logger
func WithLogger(logger *observability.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records operation and cache metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock overrides the clock
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides record id generation
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// WithInviteTTL sets how long invites stay valid
func WithInviteTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.inviteTTL = ttl
		}
	}
}

// WithCacheConfig sizes the public organization cache
func WithCacheConfig(config CacheConfig) Option {
	return func(m *Manager) {
		m.cacheCfg = config
	}
}

// NewManager creates an organization manager. Organization removal runs on
// engine.
func NewManager(store storage.Store, engine *cascade.Engine, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		resolver:  rbac.NewResolver(),
		cascade:   engine,
		logger:    observability.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
		newToken:  generateToken,
		inviteTTL: DefaultInviteTTL,
		cacheCfg:  DefaultCacheConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = newPublicCache(m.cacheCfg, m.metrics)
	return m
}

// track records the outcome of one operation; defer it with the start time
func (m *Manager) track(op string, start time.Time, err *error) {
	m.metrics.RecordOperation(metricsResource, op, m.now().Sub(start), *err)
}

// stamp returns the current time at storage precision
func (m *Manager) stamp() time.Time {
	return m.now().UTC().Truncate(time.Millisecond)
}

// record writes an audit event after the change committed. Sink failures
// are logged and never fail the request.
func (m *Manager) record(ctx context.Context, event *audit.AuditEvent) {
	sink := m.audit
	if sink == nil {
		sink = audit.FromContext(ctx)
	}
	if err := sink.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to record audit event")
	}
}

func caller(ctx context.Context) (string, error) {
	userID := contextkeys.GetUserID(ctx)
	if userID == "" {
		return "", apperr.New(apperr.CodeNotAuthenticated)
	}
	return userID, nil
}

// liveOrg maps a lookup result to a live organization; missing and
// removing organizations are NOT_FOUND
func liveOrg(org *models.Organization, err error) (*models.Organization, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("organization")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if org.Removing() {
		return nil, apperr.NotFound("organization")
	}
	return org, nil
}

// slugTaken reports whether another organization holds slug
func slugTaken(ctx context.Context, tx storage.Tx, slug, exceptID string) (bool, error) {
	org, err := tx.GetOrganizationBySlug(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up slug: %w", err)
	}
	return org.ID != exceptID, nil
}

// Create creates an organization owned by the caller
func (m *Manager) Create(ctx context.Context, req CreateRequest) (result *OrgWithRole, err error) {
	defer m.track("create", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	slug := req.Slug
	if slug == "" {
		if slug = DeriveSlug(name); slug == "" {
			return nil, apperr.Validation(map[string]string{"slug": "cannot be derived from name, set one explicitly"})
		}
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	now := m.stamp()
	org := &models.Organization{
		ID:          m.newID(),
		Name:        name,
		Slug:        slug,
		OwnerUserID: userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		taken, err := slugTaken(ctx, tx, slug, "")
		if err != nil {
			return err
		}
		if taken {
			return apperr.New(apperr.CodeOrgSlugTaken)
		}
		if err := tx.InsertOrganization(ctx, org); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperr.New(apperr.CodeOrgSlugTaken)
			}
			return fmt.Errorf("failed to create organization: %w", err)
		}
		// role resolution ignores this row while userID owns the org
		if err := tx.InsertMembership(ctx, &models.Membership{
			ID:        m.newID(),
			OrgID:     org.ID,
			UserID:    userID,
			IsAdmin:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to add owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeOrgCreate, org.ID).
		Resource(audit.ResourceTypeOrganization, org.ID).
		With("slug", org.Slug))
	m.logger.WithFields(map[string]interface{}{
		"org_id": org.ID,
		"slug":   org.Slug,
	}).Info("organization created")
	return &OrgWithRole{Organization: org, Role: rbac.RoleOwner}, nil
}

// Update renames an organization or changes its slug. Setting the current
// slug is a no-op.
func (m *Manager) Update(ctx context.Context, orgID string, req UpdateRequest) (result *OrgWithRole, err error) {
	defer m.track("update", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	var (
		org      *models.Organization
		role     rbac.Role
		oldSlug  string
		changes  *audit.ChangeDetails
		modified bool
	)
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if role, org, err = m.resolver.Resolve(ctx, tx, orgID, userID); err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleAdmin); err != nil {
			return err
		}
		if req.ExpectedUpdatedAt != nil && !req.ExpectedUpdatedAt.Equal(org.UpdatedAt) {
			return apperr.Newf(apperr.CodeConflict, "organization was modified at %s", org.UpdatedAt.Format(time.RFC3339Nano))
		}

		oldSlug = org.Slug
		changes = &audit.ChangeDetails{Before: map[string]interface{}{}, After: map[string]interface{}{}}
		modified = false
		if req.Name != nil {
			name, err := validateName(*req.Name)
			if err != nil {
				return err
			}
			if name != org.Name {
				changes.Before["name"], changes.After["name"] = org.Name, name
				org.Name = name
				modified = true
			}
		}
		if req.Slug != nil && *req.Slug != org.Slug {
			if err := ValidateSlug(*req.Slug); err != nil {
				return err
			}
			taken, err := slugTaken(ctx, tx, *req.Slug, org.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.New(apperr.CodeOrgSlugTaken)
			}
			changes.Before["slug"], changes.After["slug"] = org.Slug, *req.Slug
			org.Slug = *req.Slug
			modified = true
		}
		if !modified {
			return nil
		}

		org.UpdatedAt = models.NextStamp(org.UpdatedAt, m.now())
		if err := tx.UpdateOrganization(ctx, org); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperr.New(apperr.CodeOrgSlugTaken)
			}
			return fmt.Errorf("failed to update organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if modified {
		m.cache.invalidate(oldSlug, org.Slug)
		event := audit.NewEvent(ctx, audit.EventTypeOrgUpdate, org.ID).Resource(audit.ResourceTypeOrganization, org.ID)
		event.Changes = changes
		m.record(ctx, event)
	}
	return &OrgWithRole{Organization: org, Role: role}, nil
}

// Get returns an organization the caller belongs to
func (m *Manager) Get(ctx context.Context, orgID string) (result *OrgWithRole, err error) {
	defer m.track("get", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		role, org, err := m.resolver.Resolve(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleMember); err != nil {
			return err
		}
		result = &OrgWithRole{Organization: org, Role: role}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetBySlug returns an organization the caller belongs to by slug
func (m *Manager) GetBySlug(ctx context.Context, slug string) (result *OrgWithRole, err error) {
	defer m.track("get_by_slug", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		org, err := liveOrg(tx.GetOrganizationBySlug(ctx, slug))
		if err != nil {
			return err
		}
		role, err := m.resolver.RoleIn(ctx, tx, org, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleMember); err != nil {
			return err
		}
		result = &OrgWithRole{Organization: org, Role: role}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetPublic returns the public view of an organization. It needs no
// identity and is served from cache when possible.
func (m *Manager) GetPublic(ctx context.Context, slug string) (result *models.PublicOrganization, err error) {
	defer m.track("get_public", m.now(), &err)

	if cached, ok := m.cache.get(slug); ok {
		return cached, nil
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		org, err := liveOrg(tx.GetOrganizationBySlug(ctx, slug))
		if err != nil {
			return err
		}
		result = org.Public()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.cache.add(result)
	return result, nil
}

// MyOrgs lists the organizations the caller owns or belongs to
func (m *Manager) MyOrgs(ctx context.Context) (result []*OrgWithRole, err error) {
	defer m.track("my_orgs", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		orgs, err := tx.ListOrganizationsForUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list organizations: %w", err)
		}
		result = make([]*OrgWithRole, 0, len(orgs))
		for _, org := range orgs {
			if org.Removing() {
				continue
			}
			role, err := m.resolver.RoleIn(ctx, tx, org, userID)
			if err != nil {
				return err
			}
			if role == rbac.RoleNone {
				continue
			}
			result = append(result, &OrgWithRole{Organization: org, Role: role})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IsSlugAvailable reports whether slug is valid and unused
func (m *Manager) IsSlugAvailable(ctx context.Context, slug string) (available bool, err error) {
	defer m.track("is_slug_available", m.now(), &err)

	if err := ValidateSlug(slug); err != nil {
		return false, err
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		taken, err := slugTaken(ctx, tx, slug, "")
		available = !taken
		return err
	})
	return available, err
}

// Remove deletes an organization and everything that depends on it. The
// organization is marked removing and its memberships, invites and join
// requests are deleted in one transaction; dependent documents are then
// deleted by the cascade engine. Calling Remove on an organization whose
// removal was interrupted resumes it.
func (m *Manager) Remove(ctx context.Context, orgID string) (result *cascade.Result, err error) {
	defer m.track("remove", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	var (
		slug    string
		cleared cascade.Cleared
	)
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		org, err := tx.GetOrganization(ctx, orgID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("organization")
		}
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		// ownership survives the removal mark, so the owner can resume
		if org.OwnerUserID != userID {
			if org.Removing() {
				return apperr.NotFound("organization")
			}
			role, err := m.resolver.RoleIn(ctx, tx, org, userID)
			if err != nil {
				return err
			}
			if err := rbac.Require(role, rbac.RoleOwner); err != nil {
				return err
			}
		}
		slug = org.Slug
		cleared, err = m.cascade.MarkRemoving(ctx, tx, org)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.cache.invalidate(slug)

	result, err = m.cascade.Resume(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove organization: %w", err)
	}
	result.Cleared = cleared

	event := audit.NewEvent(ctx, audit.EventTypeOrgRemove, orgID).
		Resource(audit.ResourceTypeOrganization, orgID).
		With("complete", result.Complete).
		With("deleted", result.Deleted)
	if n := result.FailedRows(); n > 0 {
		event.With("failed_rows", n)
	}
	m.record(ctx, event)
	return result, nil
}

// ValidateSlug checks the slug format: 2 to 48 lowercase letters, digits
// and dashes, starting and ending with a letter or digit
func ValidateSlug(slug string) error {
	switch {
	case len(slug) < minSlugLength:
		return apperr.Validation(map[string]string{"slug": fmt.Sprintf("must be at least %d characters", minSlugLength)})
	case len(slug) > maxSlugLength:
		return apperr.Validation(map[string]string{"slug": fmt.Sprintf("must be at most %d characters", maxSlugLength)})
	case !slugPattern.MatchString(slug):
		return apperr.Validation(map[string]string{"slug": "may contain only lowercase letters, digits and inner dashes"})
	}
	return nil
}

// DeriveSlug builds a slug from an organization name. It returns an empty
// string when the name has too few usable characters.
func DeriveSlug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if len(slug) < minSlugLength {
		return ""
	}
	return slug
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", apperr.Validation(map[string]string{"name": "is required"})
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", apperr.Validation(map[string]string{"name": fmt.Sprintf("must be at most %d characters", maxNameLength)})
	}
	return name, nil
}

// generateToken generates a random invite token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
