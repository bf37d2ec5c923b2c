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

// SubmissionRepository handles persistence for RSVPs, comments and their
// per-invitation settings.
type SubmissionRepository struct {
	db *pgxpool.Pool
}

// NewSubmissionRepository constructs a SubmissionRepository.
func NewSubmissionRepository(db *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Settings returns the owner's saved settings, or nil when none were saved.
func (r *SubmissionRepository) Settings(ctx context.Context, invitationID string, kind model.SubmissionKind) (*model.SubmissionSettings, error) {
	var s model.SubmissionSettings
	err := r.db.QueryRow(ctx,
		`SELECT is_enabled, require_approval, max_length, require_name, deadline, max_guests_per_response
		 FROM submission_settings
		 WHERE invitation_id = $1 AND kind = $2`,
		invitationID, string(kind),
	).Scan(&s.IsEnabled, &s.RequireApproval, &s.MaxLength, &s.RequireName, &s.Deadline, &s.MaxGuestsPerResponse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get submission settings: %w", err)
	}
	return &s, nil
}

// Create inserts a submission and returns it with a generated UUID.
func (r *SubmissionRepository) Create(ctx context.Context, sub model.Submission) (*model.Submission, error) {
	sub.ID = uuid.New().String()
	sub.CreatedAt = time.Now().UTC()

	var attendance *string
	if sub.AttendanceStatus != "" {
		s := string(sub.AttendanceStatus)
		attendance = &s
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO submissions (id, kind, invitation_id, guest_name, attendance_status, number_of_guests, message, is_approved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, string(sub.Kind), sub.InvitationID, sub.GuestName, attendance, sub.NumberOfGuests, sub.Message, sub.IsApproved, sub.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return &sub, nil
}

// ListApproved returns approved submissions of one kind, newest first,
// optionally only those created strictly before before.
func (r *SubmissionRepository) ListApproved(ctx context.Context, invitationID string, kind model.SubmissionKind, before *time.Time, limit int) ([]model.Submission, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, kind, invitation_id::text, guest_name, COALESCE(attendance_status, ''),
		        number_of_guests, message, is_approved, created_at
		 FROM submissions
		 WHERE invitation_id = $1 AND kind = $2 AND is_approved
		   AND ($4::timestamptz IS NULL OR created_at < $4)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		invitationID, string(kind), limit, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var (
			s          model.Submission
			kindText   string
			attendance string
		)
		if err := rows.Scan(&s.ID, &kindText, &s.InvitationID, &s.GuestName, &attendance,
			&s.NumberOfGuests, &s.Message, &s.IsApproved, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		s.Kind = model.SubmissionKind(kindText)
		s.AttendanceStatus = model.AttendanceStatus(attendance)
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
