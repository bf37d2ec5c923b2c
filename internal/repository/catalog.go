package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
)

// CatalogRepository reads and seeds the package and template catalog.
type CatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Load returns every package and template, active or not.
func (r *CatalogRepository) Load(ctx context.Context) (model.Catalog, error) {
	var cat model.Catalog

	rows, err := r.db.Query(ctx,
		`SELECT tier_name, max_invitations, allowed_template_tier, sort_order, is_active
		 FROM packages
		 ORDER BY sort_order ASC`,
	)
	if err != nil {
		return cat, fmt.Errorf("list packages: %w", err)
	}
	cat.Packages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PackageDefinition, error) {
		var p model.PackageDefinition
		err := row.Scan(&p.TierName, &p.MaxInvitations, &p.AllowedTemplateTier, &p.SortOrder, &p.IsActive)
		return p, err
	})
	if err != nil {
		return cat, fmt.Errorf("scan package: %w", err)
	}

	rows, err = r.db.Query(ctx,
		`SELECT id, name, tier, is_active FROM templates ORDER BY id ASC`,
	)
	if err != nil {
		return cat, fmt.Errorf("list templates: %w", err)
	}
	cat.Templates, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Template, error) {
		var t model.Template
		err := row.Scan(&t.ID, &t.Name, &t.Tier, &t.IsActive)
		return t, err
	})
	if err != nil {
		return cat, fmt.Errorf("scan template: %w", err)
	}

	return cat, nil
}

// Upsert writes the catalog in one transaction. Rows absent from cat are
// left untouched.
func (r *CatalogRepository) Upsert(ctx context.Context, cat model.Catalog) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, p := range cat.Packages {
		_, err = tx.Exec(ctx,
			`INSERT INTO packages (tier_name, max_invitations, allowed_template_tier, sort_order, is_active)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (tier_name) DO UPDATE
			 SET max_invitations       = EXCLUDED.max_invitations,
			     allowed_template_tier = EXCLUDED.allowed_template_tier,
			     sort_order            = EXCLUDED.sort_order,
			     is_active             = EXCLUDED.is_active`,
			p.TierName, p.MaxInvitations, p.AllowedTemplateTier, p.SortOrder, p.IsActive,
		)
		if err != nil {
			return fmt.Errorf("upsert package %q: %w", p.TierName, err)
		}
	}

	for _, t := range cat.Templates {
		_, err = tx.Exec(ctx,
			`INSERT INTO templates (id, name, tier, is_active)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name, tier = EXCLUDED.tier, is_active = EXCLUDED.is_active`,
			t.ID, t.Name, t.Tier, t.IsActive,
		)
		if err != nil {
			return fmt.Errorf("upsert template %q: %w", t.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
