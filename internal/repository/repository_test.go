package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/invitation-core/internal/config"
	"github.com/Shivanand-hulikatti/invitation-core/internal/database"
	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
)

// testPool connects to DATABASE_URL and applies the schema. The tests run
// against a real Postgres because the row locking under concurrent
// conditional updates is what they check.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping Postgres integration tests")
	}
	ctx := context.Background()
	pool, err := database.NewPool(ctx, config.DBConfig{URL: dsn, MaxConns: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

type testTiers struct {
	base    string
	premium string
}

// seedTiers installs a base and a premium package under names unique to
// the test, so tests never see each other's catalog rows.
func seedTiers(t *testing.T, pool *pgxpool.Pool, baseLimit, premiumLimit *int) testTiers {
	t.Helper()
	suffix := uuid.NewString()[:8]
	tiers := testTiers{base: "base-" + suffix, premium: "gold-" + suffix}
	err := NewCatalogRepository(pool).Upsert(context.Background(), model.Catalog{
		Packages: []model.PackageDefinition{
			{TierName: tiers.base, MaxInvitations: baseLimit, AllowedTemplateTier: tiers.base, IsActive: true},
			{TierName: tiers.premium, MaxInvitations: premiumLimit, AllowedTemplateTier: tiers.premium, SortOrder: 10, IsActive: true},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM packages WHERE tier_name = ANY($1)`, []string{tiers.base, tiers.premium})
	})
	return tiers
}

func newUserID(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	id := "user-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM user_entitlements WHERE user_id = $1`, id)
	})
	return id
}

func intPtr(n int) *int { return &n }

func TestIncrementUsageConcurrentLastSlot(t *testing.T) {
	pool := testPool(t)
	tiers := seedTiers(t, pool, intPtr(1), intPtr(5))
	repo := NewEntitlementRepository(pool)
	ctx := context.Background()
	user := newUserID(t, pool)
	_, err := repo.Ensure(ctx, user, tiers.base)
	require.NoError(t, err)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.IncrementUsage(ctx, user, tiers.base, tiers.base, false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrQuotaExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, exhausted)

	ent, pkg, err := repo.GetWithPackage(ctx, user, tiers.base)
	require.NoError(t, err)
	assert.Equal(t, 1, ent.UsedInvitations)
	assert.Equal(t, 1, *pkg.MaxInvitations)
}

func TestIncrementUsageClaimsPremiumOnce(t *testing.T) {
	pool := testPool(t)
	tiers := seedTiers(t, pool, intPtr(1), intPtr(5))
	repo := NewEntitlementRepository(pool)
	ctx := context.Background()
	user := newUserID(t, pool)
	_, err := repo.Upgrade(ctx, user, tiers.premium, true, time.Now().UTC(), nil)
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		changed   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.IncrementUsage(ctx, user, tiers.premium, tiers.base, true)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrTierChanged):
				changed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, changed)

	ent, pkg, err := repo.GetWithPackage(ctx, user, tiers.base)
	require.NoError(t, err)
	assert.Equal(t, 1, ent.UsedInvitations)
	assert.True(t, ent.ResetPending)
	assert.Equal(t, tiers.premium, ent.PackageTier)
	assert.Equal(t, tiers.base, pkg.TierName, "a consumed purchase counts as the base tier")

	oldTier, newTier, err := repo.ResetTier(ctx, user, tiers.base)
	require.NoError(t, err)
	assert.Equal(t, tiers.premium, oldTier)
	assert.Equal(t, tiers.base, newTier)

	ent, _, err = repo.GetWithPackage(ctx, user, tiers.base)
	require.NoError(t, err)
	assert.False(t, ent.ResetPending)
	assert.False(t, ent.PremiumActive)
}

func TestIncrementUsageDiagnosesMisses(t *testing.T) {
	pool := testPool(t)
	tiers := seedTiers(t, pool, intPtr(1), intPtr(5))
	repo := NewEntitlementRepository(pool)
	ctx := context.Background()
	user := newUserID(t, pool)
	_, err := repo.Ensure(ctx, user, tiers.base)
	require.NoError(t, err)

	_, _, err = repo.IncrementUsage(ctx, user, tiers.premium, tiers.base, true)
	assert.ErrorIs(t, err, ErrTierChanged)

	_, _, err = repo.IncrementUsage(ctx, "user-"+uuid.NewString(), tiers.base, tiers.base, false)
	assert.ErrorIs(t, err, ErrNotFound)

	count, limit, err := repo.IncrementUsage(ctx, user, tiers.base, tiers.base, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, *limit)
}

func TestEnsureReturnsExistingRow(t *testing.T) {
	pool := testPool(t)
	tiers := seedTiers(t, pool, intPtr(1), nil)
	repo := NewEntitlementRepository(pool)
	ctx := context.Background()
	user := newUserID(t, pool)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ent, err := repo.Ensure(ctx, user, tiers.base)
			if assert.NoError(t, err) {
				assert.Equal(t, tiers.base, ent.PackageTier)
			}
		}()
	}
	wg.Wait()

	_, err := repo.Upgrade(ctx, user, tiers.premium, true, time.Now().UTC(), nil)
	require.NoError(t, err)
	_, _, err = repo.IncrementUsage(ctx, user, tiers.premium, tiers.base, false)
	require.NoError(t, err)

	// The conflict path must hand back the stored row, not the defaults.
	ent, err := repo.Ensure(ctx, user, tiers.base)
	require.NoError(t, err)
	assert.Equal(t, tiers.premium, ent.PackageTier)
	assert.True(t, ent.PremiumActive)
	assert.Equal(t, 1, ent.UsedInvitations)
}

func TestUpgradeRequiresActivePackage(t *testing.T) {
	pool := testPool(t)
	tiers := seedTiers(t, pool, intPtr(1), intPtr(5))
	repo := NewEntitlementRepository(pool)
	ctx := context.Background()
	user := newUserID(t, pool)

	_, err := repo.Upgrade(ctx, user, "missing-"+tiers.premium, true, time.Now().UTC(), nil)
	assert.ErrorIs(t, err, ErrUnknownPackage)

	err = NewCatalogRepository(pool).Upsert(ctx, model.Catalog{Packages: []model.PackageDefinition{
		{TierName: tiers.premium, MaxInvitations: intPtr(5), AllowedTemplateTier: tiers.premium, SortOrder: 10, IsActive: false},
	}})
	require.NoError(t, err)
	_, err = repo.Upgrade(ctx, user, tiers.premium, true, time.Now().UTC(), nil)
	assert.ErrorIs(t, err, ErrUnknownPackage)

	_, _, err = repo.GetWithPackage(ctx, user, tiers.base)
	assert.ErrorIs(t, err, ErrNotFound, "a rejected upgrade creates nothing")
}

func TestInvitationLifecycle(t *testing.T) {
	pool := testPool(t)
	repo := NewInvitationRepository(pool)
	ctx := context.Background()

	inv, err := repo.Create(ctx, "owner-"+uuid.NewString(), "classic", model.InvitationPayload{Title: "Ana & Budi"})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana & Budi", got.Title)
	assert.Equal(t, model.StatusDraft, got.Status)

	require.NoError(t, repo.Delete(ctx, inv.ID))
	_, err = repo.GetByID(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListApprovedOrderingAndCursor(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	inv, err := NewInvitationRepository(pool).Create(ctx, "owner-"+uuid.NewString(), "classic", model.InvitationPayload{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = NewInvitationRepository(pool).Delete(context.Background(), inv.ID)
	})

	repo := NewSubmissionRepository(pool)
	add := func(kind model.SubmissionKind, msg string, approved bool) {
		t.Helper()
		_, err := repo.Create(ctx, model.Submission{
			Kind: kind, InvitationID: inv.ID, GuestName: "Ana", Message: msg, IsApproved: approved,
		})
		require.NoError(t, err)
	}
	add(model.KindComment, "first", true)
	add(model.KindComment, "hidden", false)
	add(model.KindComment, "second", true)
	add(model.KindRSVP, "", true)
	add(model.KindComment, "third", true)

	listed, err := repo.ListApproved(ctx, inv.ID, model.KindComment, nil, 10)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "third", listed[0].Message)
	assert.Equal(t, "second", listed[1].Message)
	assert.Equal(t, "first", listed[2].Message)

	older, err := repo.ListApproved(ctx, inv.ID, model.KindComment, &listed[1].CreatedAt, 10)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "first", older[0].Message)

	limited, err := repo.ListApproved(ctx, inv.ID, model.KindComment, nil, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "third", limited[0].Message)
}
