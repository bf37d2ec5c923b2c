package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
)

const entitlementColumns = `user_id, package_tier, used_invitations, premium_active, reset_pending, package_upgraded_at, package_expires_at`

// EntitlementRepository handles persistence for user entitlements.
type EntitlementRepository struct {
	db *pgxpool.Pool
}

// NewEntitlementRepository constructs an EntitlementRepository.
func NewEntitlementRepository(db *pgxpool.Pool) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

func scanEntitlement(row pgx.Row) (*model.UserEntitlement, error) {
	var e model.UserEntitlement
	err := row.Scan(&e.UserID, &e.PackageTier, &e.UsedInvitations, &e.PremiumActive, &e.ResetPending, &e.PackageUpgradedAt, &e.PackageExpiresAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Ensure returns the user's entitlement, creating it on the base tier if
// missing.
//
// The no-op DO UPDATE makes RETURNING yield the existing row on conflict,
// so two concurrent first-time calls both get a row back instead of one of
// them failing on the primary key.
func (r *EntitlementRepository) Ensure(ctx context.Context, userID, baseTier string) (*model.UserEntitlement, error) {
	e, err := scanEntitlement(r.db.QueryRow(ctx,
		`INSERT INTO user_entitlements (user_id, package_tier)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING `+entitlementColumns,
		userID, baseTier,
	))
	if err != nil {
		return nil, fmt.Errorf("ensure entitlement: %w", err)
	}
	return e, nil
}

// GetWithPackage returns the entitlement and the package definition of its
// effective tier: baseTier while a consumed premium purchase awaits its
// reset, package_tier otherwise. ErrNotFound means there is no entitlement
// row; ErrUnknownPackage means the tier has no package definition.
func (r *EntitlementRepository) GetWithPackage(ctx context.Context, userID, baseTier string) (*model.UserEntitlement, *model.PackageDefinition, error) {
	var (
		e         model.UserEntitlement
		tierName  *string
		maxInv    *int
		allowed   *string
		sortOrder *int
		isActive  *bool
	)
	err := r.db.QueryRow(ctx,
		`SELECT e.user_id, e.package_tier, e.used_invitations, e.premium_active, e.reset_pending,
		        e.package_upgraded_at, e.package_expires_at,
		        p.tier_name, p.max_invitations, p.allowed_template_tier, p.sort_order, p.is_active
		 FROM user_entitlements e
		 LEFT JOIN packages p
		        ON p.tier_name = CASE WHEN e.reset_pending THEN $2 ELSE e.package_tier END
		 WHERE e.user_id = $1`,
		userID, baseTier,
	).Scan(&e.UserID, &e.PackageTier, &e.UsedInvitations, &e.PremiumActive, &e.ResetPending,
		&e.PackageUpgradedAt, &e.PackageExpiresAt,
		&tierName, &maxInv, &allowed, &sortOrder, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get entitlement: %w", err)
	}
	if tierName == nil {
		return &e, nil, ErrUnknownPackage
	}
	return &e, &model.PackageDefinition{
		TierName:            *tierName,
		MaxInvitations:      maxInv,
		AllowedTemplateTier: *allowed,
		SortOrder:           *sortOrder,
		IsActive:            *isActive,
	}, nil
}

// IncrementUsage adds one to used_invitations if, and only if, the user is
// still on expectedTier and that package still has room. With claimPremium
// the same statement marks the premium purchase as consumed, so of two
// concurrent requests racing on one purchase only the first is counted.
//
// Zero rows are diagnosed as ErrNotFound, ErrTierChanged or
// ErrQuotaExhausted.
func (r *EntitlementRepository) IncrementUsage(ctx context.Context, userID, expectedTier, baseTier string, claimPremium bool) (int, *int, error) {
	var (
		newCount int
		limit    *int
	)
	err := r.db.QueryRow(ctx,
		`UPDATE user_entitlements e
		 SET used_invitations = e.used_invitations + 1,
		     reset_pending    = e.reset_pending OR $4
		 FROM packages p
		 WHERE e.user_id = $1
		   AND p.tier_name = $2
		   AND p.tier_name = CASE WHEN e.reset_pending THEN $3 ELSE e.package_tier END
		   AND NOT ($4 AND e.reset_pending)
		   AND (p.max_invitations IS NULL OR e.used_invitations < p.max_invitations)
		 RETURNING e.used_invitations, p.max_invitations`,
		userID, expectedTier, baseTier, claimPremium,
	).Scan(&newCount, &limit)
	if err == nil {
		return newCount, limit, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, fmt.Errorf("increment usage: %w", err)
	}

	var (
		effectiveTier string
		pending       bool
	)
	err = r.db.QueryRow(ctx,
		`SELECT CASE WHEN reset_pending THEN $2 ELSE package_tier END, reset_pending
		 FROM user_entitlements
		 WHERE user_id = $1`,
		userID, baseTier,
	).Scan(&effectiveTier, &pending)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, nil, ErrNotFound
	case err != nil:
		return 0, nil, fmt.Errorf("diagnose usage increment: %w", err)
	case effectiveTier != expectedTier || (claimPremium && pending):
		return 0, nil, ErrTierChanged
	default:
		return 0, nil, ErrQuotaExhausted
	}
}

// ResetTier moves the user to baseTier and clears the premium flag and any
// pending reset, returning the tier it replaced.
func (r *EntitlementRepository) ResetTier(ctx context.Context, userID, baseTier string) (string, string, error) {
	var oldTier, newTier string
	err := r.db.QueryRow(ctx,
		`UPDATE user_entitlements e
		 SET package_tier = $2, premium_active = FALSE, reset_pending = FALSE
		 FROM (SELECT user_id, package_tier
		       FROM user_entitlements
		       WHERE user_id = $1
		       FOR UPDATE) old
		 WHERE e.user_id = old.user_id
		 RETURNING old.package_tier, e.package_tier`,
		userID, baseTier,
	).Scan(&oldTier, &newTier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("reset package tier: %w", err)
	}
	return oldTier, newTier, nil
}

// Upgrade sets the user's tier, creating the entitlement if needed. The
// tier must name an active package.
func (r *EntitlementRepository) Upgrade(ctx context.Context, userID, tier string, premium bool, upgradedAt time.Time, expiresAt *time.Time) (*model.UserEntitlement, error) {
	e, err := scanEntitlement(r.db.QueryRow(ctx,
		`INSERT INTO user_entitlements (user_id, package_tier, premium_active, package_upgraded_at, package_expires_at)
		 SELECT $1, p.tier_name, $3, $4, $5
		 FROM packages p
		 WHERE p.tier_name = $2 AND p.is_active
		 ON CONFLICT (user_id) DO UPDATE
		 SET package_tier        = EXCLUDED.package_tier,
		     premium_active      = EXCLUDED.premium_active,
		     reset_pending       = FALSE,
		     package_upgraded_at = EXCLUDED.package_upgraded_at,
		     package_expires_at  = EXCLUDED.package_expires_at
		 RETURNING `+entitlementColumns,
		userID, tier, premium, upgradedAt, expiresAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownPackage
		}
		return nil, fmt.Errorf("upgrade entitlement: %w", err)
	}
	return e, nil
}
