package database

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
)

// catalogFile mirrors the YAML schema of a catalog seed file.
// is_active is optional and defaults to true.
type catalogFile struct {
	Packages []struct {
		Tier                string `yaml:"tier"`
		MaxInvitations      *int   `yaml:"max_invitations"`
		AllowedTemplateTier string `yaml:"allowed_template_tier"`
		SortOrder           int    `yaml:"sort_order"`
		IsActive            *bool  `yaml:"is_active"`
	} `yaml:"packages"`
	Templates []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Tier     string `yaml:"tier"`
		IsActive *bool  `yaml:"is_active"`
	} `yaml:"templates"`
}

// LoadCatalogFile reads and validates a YAML catalog seed file.
func LoadCatalogFile(path string) (model.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Catalog{}, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a YAML catalog and checks that every template tier
// and allowed template tier names a declared package.
func ParseCatalog(raw []byte) (model.Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return model.Catalog{}, fmt.Errorf("parse catalog file: %w", err)
	}

	var cat model.Catalog
	tiers := make(map[string]bool, len(f.Packages))
	for _, p := range f.Packages {
		tier := strings.TrimSpace(p.Tier)
		if tier == "" {
			return model.Catalog{}, fmt.Errorf("package tier is required")
		}
		if tiers[tier] {
			return model.Catalog{}, fmt.Errorf("duplicate package tier %q", tier)
		}
		if p.MaxInvitations != nil && *p.MaxInvitations < 0 {
			return model.Catalog{}, fmt.Errorf("package %q: max_invitations must not be negative", tier)
		}
		tiers[tier] = true
		cat.Packages = append(cat.Packages, model.PackageDefinition{
			TierName:            tier,
			MaxInvitations:      p.MaxInvitations,
			AllowedTemplateTier: strings.TrimSpace(p.AllowedTemplateTier),
			SortOrder:           p.SortOrder,
			IsActive:            p.IsActive == nil || *p.IsActive,
		})
	}

	for _, p := range cat.Packages {
		if !tiers[p.AllowedTemplateTier] {
			return model.Catalog{}, fmt.Errorf("package %q: unknown allowed_template_tier %q", p.TierName, p.AllowedTemplateTier)
		}
	}

	for _, t := range f.Templates {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return model.Catalog{}, fmt.Errorf("template id is required")
		}
		if !tiers[t.Tier] {
			return model.Catalog{}, fmt.Errorf("template %q: unknown tier %q", id, t.Tier)
		}
		cat.Templates = append(cat.Templates, model.Template{
			ID:       id,
			Name:     t.Name,
			Tier:     t.Tier,
			IsActive: t.IsActive == nil || *t.IsActive,
		})
	}

	return cat, nil
}
