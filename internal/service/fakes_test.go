package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/invitation-core/internal/config"
	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
	"github.com/Shivanand-hulikatti/invitation-core/internal/ratelimit"
	"github.com/Shivanand-hulikatti/invitation-core/internal/repository"
)

func intPtr(n int) *int { return &n }

// defaultBaseTier is the base tier the service runs with when
// BASE_PACKAGE_TIER is unset.
func defaultBaseTier(t *testing.T) string {
	t.Helper()
	cfg, err := config.Defaults()
	require.NoError(t, err)
	return cfg.BaseTier
}

func testCatalog() model.Catalog {
	return model.Catalog{
		Packages: []model.PackageDefinition{
			{TierName: "basic", MaxInvitations: intPtr(1), AllowedTemplateTier: "basic", SortOrder: 0, IsActive: true},
			{TierName: "gold", MaxInvitations: intPtr(5), AllowedTemplateTier: "gold", SortOrder: 10, IsActive: true},
			{TierName: "platinum", MaxInvitations: nil, AllowedTemplateTier: "platinum", SortOrder: 20, IsActive: true},
		},
		Templates: []model.Template{
			{ID: "classic", Tier: "basic", IsActive: true},
			{ID: "minimal", Tier: "basic", IsActive: true},
			{ID: "retired", Tier: "basic", IsActive: false},
			{ID: "golden", Tier: "gold", IsActive: true},
			{ID: "royal", Tier: "platinum", IsActive: true},
		},
	}
}

// memEntitlements is an EntitlementStore whose mutex stands in for the
// row lock Postgres takes on a conditional UPDATE.
type memEntitlements struct {
	mu       sync.Mutex
	users    map[string]*model.UserEntitlement
	packages map[string]model.PackageDefinition

	incrementErr error
	resetErr     error
}

func newMemEntitlements(cat model.Catalog) *memEntitlements {
	m := &memEntitlements{
		users:    map[string]*model.UserEntitlement{},
		packages: map[string]model.PackageDefinition{},
	}
	for _, p := range cat.Packages {
		m.packages[p.TierName] = p
	}
	return m
}

func (m *memEntitlements) seed(e model.UserEntitlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[e.UserID] = &e
}

func (m *memEntitlements) get(userID string) model.UserEntitlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[userID]
}

func (m *memEntitlements) Ensure(_ context.Context, userID, baseTier string) (*model.UserEntitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.users[userID]
	if !ok {
		e = &model.UserEntitlement{UserID: userID, PackageTier: baseTier}
		m.users[userID] = e
	}
	cp := *e
	return &cp, nil
}

func (m *memEntitlements) GetWithPackage(_ context.Context, userID, baseTier string) (*model.UserEntitlement, *model.PackageDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.users[userID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	cp := *e
	p, ok := m.packages[e.EffectiveTier(baseTier)]
	if !ok {
		return &cp, nil, repository.ErrUnknownPackage
	}
	return &cp, &p, nil
}

func (m *memEntitlements) IncrementUsage(ctx context.Context, userID, expectedTier, baseTier string, claimPremium bool) (int, *int, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return 0, nil, m.incrementErr
	}
	e, ok := m.users[userID]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	if e.EffectiveTier(baseTier) != expectedTier || (claimPremium && e.ResetPending) {
		return 0, nil, repository.ErrTierChanged
	}
	p := m.packages[expectedTier]
	if p.MaxInvitations != nil && e.UsedInvitations >= *p.MaxInvitations {
		return 0, nil, repository.ErrQuotaExhausted
	}
	e.UsedInvitations++
	e.ResetPending = e.ResetPending || claimPremium
	return e.UsedInvitations, p.MaxInvitations, nil
}

func (m *memEntitlements) ResetTier(_ context.Context, userID, baseTier string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return "", "", m.resetErr
	}
	e, ok := m.users[userID]
	if !ok {
		return "", "", repository.ErrNotFound
	}
	old := e.PackageTier
	e.PackageTier = baseTier
	e.PremiumActive = false
	e.ResetPending = false
	return old, e.PackageTier, nil
}

func (m *memEntitlements) Upgrade(_ context.Context, userID, tier string, premium bool, upgradedAt time.Time, expiresAt *time.Time) (*model.UserEntitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.packages[tier]; !ok || !p.IsActive {
		return nil, repository.ErrUnknownPackage
	}
	e, ok := m.users[userID]
	if !ok {
		e = &model.UserEntitlement{UserID: userID}
		m.users[userID] = e
	}
	e.PackageTier = tier
	e.PremiumActive = premium
	e.ResetPending = false
	e.PackageUpgradedAt = &upgradedAt
	e.PackageExpiresAt = expiresAt
	cp := *e
	return &cp, nil
}

type staticCatalog struct {
	cat model.Catalog
	err error
}

func (s staticCatalog) Load(context.Context) (model.Catalog, error) {
	return s.cat, s.err
}

type memInvitations struct {
	mu   sync.Mutex
	rows map[string]*model.Invitation

	onCreate  func(ctx context.Context)
	createErr error
	deleteErr error
}

func newMemInvitations() *memInvitations {
	return &memInvitations{rows: map[string]*model.Invitation{}}
}

func (m *memInvitations) Create(ctx context.Context, ownerID, templateID string, payload model.InvitationPayload) (*model.Invitation, error) {
	if m.onCreate != nil {
		m.onCreate(ctx)
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	inv := &model.Invitation{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		TemplateID: templateID,
		Title:      payload.Title,
		Status:     model.StatusDraft,
		CreatedAt:  time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[inv.ID] = inv
	return inv, nil
}

func (m *memInvitations) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memInvitations) GetByID(_ context.Context, id string) (*model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvitations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memInvitations) put(inv model.Invitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[inv.ID] = &inv
}

type settingsKey struct {
	invitationID string
	kind         model.SubmissionKind
}

type memSubmissions struct {
	mu       sync.Mutex
	settings map[settingsKey]model.SubmissionSettings
	rows     []model.Submission
	clock    time.Time

	settingsErr error
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{
		settings: map[settingsKey]model.SubmissionSettings{},
		clock:    time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memSubmissions) setSettings(invitationID string, kind model.SubmissionKind, s model.SubmissionSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[settingsKey{invitationID, kind}] = s
}

func (m *memSubmissions) Settings(_ context.Context, invitationID string, kind model.SubmissionKind) (*model.SubmissionSettings, error) {
	if m.settingsErr != nil {
		return nil, m.settingsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[settingsKey{invitationID, kind}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memSubmissions) Create(_ context.Context, sub model.Submission) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	sub.ID = uuid.NewString()
	sub.CreatedAt = m.clock
	m.rows = append(m.rows, sub)
	return &sub, nil
}

func (m *memSubmissions) ListApproved(_ context.Context, invitationID string, kind model.SubmissionKind, before *time.Time, limit int) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for _, s := range m.rows {
		if before != nil && !s.CreatedAt.Before(*before) {
			continue
		}
		if s.InvitationID == invitationID && s.Kind == kind && s.IsApproved {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// approve stands in for the out-of-band moderation action.
func (m *memSubmissions) approve(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].IsApproved = true
		}
	}
}

func (m *memSubmissions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type stubLimiter struct {
	mu       sync.Mutex
	decision ratelimit.Decision
	calls    []string
}

func allowAll() *stubLimiter {
	return &stubLimiter{decision: ratelimit.Decision{Allowed: true}}
}

func (s *stubLimiter) Allow(_ context.Context, scope, identity string, _ int, _ time.Duration) ratelimit.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scope+"|"+identity)
	return s.decision
}

type stubBot struct {
	pass  bool
	calls int
}

func (s *stubBot) Verify(context.Context, string, string) bool {
	s.calls++
	return s.pass
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return p.err
}

var errStoreDown = errors.New("store down")
