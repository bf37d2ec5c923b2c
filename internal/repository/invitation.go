package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
)

// InvitationRepository handles persistence for invitations.
type InvitationRepository struct {
	db *pgxpool.Pool
}

// NewInvitationRepository constructs an InvitationRepository.
func NewInvitationRepository(db *pgxpool.Pool) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create inserts a new draft invitation and returns it with a generated UUID.
func (r *InvitationRepository) Create(ctx context.Context, ownerID, templateID string, payload model.InvitationPayload) (*model.Invitation, error) {
	inv := &model.Invitation{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		TemplateID:   templateID,
		Title:        payload.Title,
		EventDate:    payload.EventDate,
		CustomFields: payload.CustomFields,
		Status:       model.StatusDraft,
		CreatedAt:    time.Now().UTC(),
	}

	var custom []byte
	if len(inv.CustomFields) > 0 {
		custom = inv.CustomFields
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO invitations (id, owner_id, template_id, title, event_date, custom_fields, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.OwnerID, inv.TemplateID, inv.Title, inv.EventDate, custom, string(inv.Status), inv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

// Delete removes an invitation. Deleting a missing row is not an error.
func (r *InvitationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

// GetByID returns a single invitation or ErrNotFound. Malformed ids are
// reported as ErrNotFound rather than reaching Postgres.
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*model.Invitation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var (
		inv    model.Invitation
		status string
		custom []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT id::text, owner_id, template_id, title, event_date, custom_fields, status, created_at
		 FROM invitations WHERE id = $1`,
		id,
	).Scan(&inv.ID, &inv.OwnerID, &inv.TemplateID, &inv.Title, &inv.EventDate, &custom, &status, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	inv.Status = model.InvitationStatus(status)
	inv.CustomFields = custom
	return &inv, nil
}
