// Package model defines the core domain types for invitation provisioning
// and public guest submissions.
package model

import "time"

// UserEntitlement is a user's package tier and invitation usage.
type UserEntitlement struct {
	UserID            string     `json:"user_id"`
	PackageTier       string     `json:"package_tier"`
	UsedInvitations   int        `json:"used_invitations"`
	PremiumActive     bool       `json:"premium_active"`
	ResetPending      bool       `json:"reset_pending"`
	PackageUpgradedAt *time.Time `json:"package_upgraded_at,omitempty"`
	PackageExpiresAt  *time.Time `json:"package_expires_at,omitempty"`
}

// EffectiveTier is the tier quota and template access are judged on. A
// premium purchase already consumed by an invitation counts as baseTier
// even while its reset is outstanding.
func (e *UserEntitlement) EffectiveTier(baseTier string) string {
	if e.ResetPending {
		return baseTier
	}
	return e.PackageTier
}

// IsPremium reports whether the entitlement holds an unconsumed purchase
// that the next invitation must consume.
func (e *UserEntitlement) IsPremium(baseTier string) bool {
	return !e.ResetPending && (e.PremiumActive || e.PackageTier != baseTier)
}

// PackageDefinition is a catalog entry for a subscription tier.
type PackageDefinition struct {
	TierName            string `json:"tier_name"`
	MaxInvitations      *int   `json:"max_invitations"` // nil = unlimited
	AllowedTemplateTier string `json:"allowed_template_tier"`
	SortOrder           int    `json:"sort_order"`
	IsActive            bool   `json:"is_active"`
}

// Template is a catalog entry for an invitation design.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Tier     string `json:"tier"`
	IsActive bool   `json:"is_active"`
}

// QuotaStatus is the advisory answer to "may this user create another
// invitation right now".
type QuotaStatus struct {
	CanCreate   bool   `json:"can_create"`
	PackageTier string `json:"package_tier"`
	Premium     bool   `json:"premium"`
	Used        int    `json:"used"`
	Remaining   *int   `json:"remaining"`
	Limit       *int   `json:"limit"`
	Reason      string `json:"reason,omitempty"`
}

// UsageUpdate is the ledger state after a successful increment.
type UsageUpdate struct {
	NewCount  int  `json:"new_count"`
	Limit     *int `json:"limit"`
	Remaining *int `json:"remaining"`
}

// PackageReset describes the post-creation tier reset.
type PackageReset struct {
	Performed bool   `json:"performed"`
	OldTier   string `json:"old_tier,omitempty"`
	NewTier   string `json:"new_tier,omitempty"`
	Warning   bool   `json:"package_reset_warning"`
}

// UpgradeRequest is the payload for the administrative upgrade path.
type UpgradeRequest struct {
	Tier      string     `json:"tier"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Catalog is the static package and template catalog.
type Catalog struct {
	Packages  []PackageDefinition `json:"packages"`
	Templates []Template          `json:"templates"`
}
