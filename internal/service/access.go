package service

import (
	"context"
	"sort"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
)

// CatalogSource loads the package and template catalog.
type CatalogSource interface {
	Load(ctx context.Context) (model.Catalog, error)
}

// AccessPolicy decides which templates a package tier may use. Tiers are
// ranked by their package sort order; a package may use any active
// template whose tier ranks at or below its allowed template tier.
type AccessPolicy struct {
	rank      map[string]int
	allowed   map[string]string
	templates []model.Template
}

// NewAccessPolicy builds a policy from a catalog snapshot.
func NewAccessPolicy(cat model.Catalog) *AccessPolicy {
	p := &AccessPolicy{
		rank:      make(map[string]int, len(cat.Packages)),
		allowed:   make(map[string]string, len(cat.Packages)),
		templates: make([]model.Template, len(cat.Templates)),
	}
	for _, pkg := range cat.Packages {
		p.rank[pkg.TierName] = pkg.SortOrder
		p.allowed[pkg.TierName] = pkg.AllowedTemplateTier
	}
	copy(p.templates, cat.Templates)
	sort.Slice(p.templates, func(i, j int) bool { return p.templates[i].ID < p.templates[j].ID })
	return p
}

func (p *AccessPolicy) permits(tier string, t model.Template) bool {
	if !t.IsActive {
		return false
	}
	allowedTier, ok := p.allowed[tier]
	if !ok {
		return false
	}
	ceiling, ok := p.rank[allowedTier]
	if !ok {
		return false
	}
	need, ok := p.rank[t.Tier]
	return ok && need <= ceiling
}

// IsAccessible reports whether tier may use templateID.
func (p *AccessPolicy) IsAccessible(tier, templateID string) bool {
	for _, t := range p.templates {
		if t.ID == templateID {
			return p.permits(tier, t)
		}
	}
	return false
}

// AccessibleTemplates lists the template ids tier may use, sorted.
func (p *AccessPolicy) AccessibleTemplates(tier string) []string {
	ids := []string{}
	for _, t := range p.templates {
		if p.permits(tier, t) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
