package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
	"github.com/Shivanand-hulikatti/invitation-core/internal/repository"
)

// EntitlementStore is the persistence contract of the quota ledger.
// IncrementUsage must be a single conditional write that also claims the
// premium purchase when asked to.
type EntitlementStore interface {
	Ensure(ctx context.Context, userID, baseTier string) (*model.UserEntitlement, error)
	GetWithPackage(ctx context.Context, userID, baseTier string) (*model.UserEntitlement, *model.PackageDefinition, error)
	IncrementUsage(ctx context.Context, userID, expectedTier, baseTier string, claimPremium bool) (int, *int, error)
	ResetTier(ctx context.Context, userID, baseTier string) (string, string, error)
	Upgrade(ctx context.Context, userID, tier string, premium bool, upgradedAt time.Time, expiresAt *time.Time) (*model.UserEntitlement, error)
}

// QuotaLedger owns each user's package tier and invitation usage.
type QuotaLedger struct {
	store    EntitlementStore
	baseTier string
	logger   *zap.Logger
	now      func() time.Time
}

// NewQuotaLedger constructs a QuotaLedger.
func NewQuotaLedger(store EntitlementStore, baseTier string, logger *zap.Logger) *QuotaLedger {
	return &QuotaLedger{
		store:    store,
		baseTier: baseTier,
		logger:   logger.Named("ledger"),
		now:      time.Now,
	}
}

// EnsureProfile returns the user's entitlement, creating a base-tier one
// with zero usage if none exists.
func (l *QuotaLedger) EnsureProfile(ctx context.Context, userID string) (*model.UserEntitlement, error) {
	return l.store.Ensure(ctx, userID, l.baseTier)
}

// CheckCanCreate is the advisory quota check. The conditional increment
// remains the final arbiter.
func (l *QuotaLedger) CheckCanCreate(ctx context.Context, userID string) (model.QuotaStatus, error) {
	ent, pkg, err := l.store.GetWithPackage(ctx, userID, l.baseTier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.QuotaStatus{}, &EntitlementStateError{UserID: userID, Op: "check"}
		}
		return model.QuotaStatus{}, fmt.Errorf("check quota: %w", err)
	}

	status := model.QuotaStatus{
		PackageTier: ent.EffectiveTier(l.baseTier),
		Premium:     ent.IsPremium(l.baseTier),
		Used:        ent.UsedInvitations,
		Limit:       pkg.MaxInvitations,
	}
	if pkg.MaxInvitations == nil {
		status.CanCreate = true
		return status, nil
	}

	remaining := *pkg.MaxInvitations - ent.UsedInvitations
	if remaining < 0 {
		remaining = 0
	}
	status.Remaining = &remaining
	status.CanCreate = remaining > 0
	if !status.CanCreate {
		status.Reason = fmt.Sprintf("%s package allows %d invitations", status.PackageTier, *pkg.MaxInvitations)
	}
	return status, nil
}

// Increment atomically consumes one invitation slot of the package status
// was checked against, and claims the premium purchase when status.Premium
// is set. A *QuotaExceededError means a concurrent request took the last
// slot after the advisory check; ErrEntitlementChanged means the tier moved
// or the purchase was claimed first.
func (l *QuotaLedger) Increment(ctx context.Context, userID string, status model.QuotaStatus) (model.UsageUpdate, error) {
	newCount, limit, err := l.store.IncrementUsage(ctx, userID, status.PackageTier, l.baseTier, status.Premium)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return model.UsageUpdate{}, &EntitlementStateError{UserID: userID, Op: "increment"}
	case errors.Is(err, repository.ErrTierChanged):
		return model.UsageUpdate{}, ErrEntitlementChanged
	case errors.Is(err, repository.ErrQuotaExhausted):
		qe := &QuotaExceededError{}
		if _, pkg, getErr := l.store.GetWithPackage(ctx, userID, l.baseTier); getErr == nil && pkg.MaxInvitations != nil {
			qe.Limit = *pkg.MaxInvitations
		}
		return model.UsageUpdate{}, qe
	default:
		return model.UsageUpdate{}, err
	}

	update := model.UsageUpdate{NewCount: newCount, Limit: limit}
	if limit != nil {
		remaining := *limit - newCount
		if remaining < 0 {
			remaining = 0
		}
		update.Remaining = &remaining
	}
	return update, nil
}

// ResetToBase returns the user to the base tier and settles any consumed
// purchase. Resetting a user already on the base tier is a no-op, not an
// error.
func (l *QuotaLedger) ResetToBase(ctx context.Context, userID string) (model.PackageReset, error) {
	oldTier, newTier, err := l.store.ResetTier(ctx, userID, l.baseTier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PackageReset{}, &EntitlementStateError{UserID: userID, Op: "reset"}
		}
		return model.PackageReset{}, err
	}
	return model.PackageReset{Performed: true, OldTier: oldTier, NewTier: newTier}, nil
}

// Upgrade is the administrative path billing uses to grant a tier.
func (l *QuotaLedger) Upgrade(ctx context.Context, userID string, req model.UpgradeRequest) (*model.UserEntitlement, error) {
	tier := strings.TrimSpace(req.Tier)
	if userID == "" || tier == "" {
		return nil, fmt.Errorf("%w: user id and tier are required", ErrInvalidInput)
	}
	now := l.now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}

	ent, err := l.store.Upgrade(ctx, userID, tier, tier != l.baseTier, now, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, repository.ErrUnknownPackage) {
			return nil, fmt.Errorf("%w: unknown package %q", ErrInvalidInput, tier)
		}
		return nil, fmt.Errorf("upgrade entitlement: %w", err)
	}
	l.logger.Info("entitlement upgraded",
		zap.String("user_id", userID),
		zap.String("tier", ent.PackageTier),
		zap.Bool("premium_active", ent.PremiumActive))
	return ent, nil
}
