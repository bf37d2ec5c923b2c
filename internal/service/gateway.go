package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/invitation-core/internal/events"
	"github.com/Shivanand-hulikatti/invitation-core/internal/metrics"
	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
	"github.com/Shivanand-hulikatti/invitation-core/internal/ratelimit"
	"github.com/Shivanand-hulikatti/invitation-core/internal/repository"
)

// InvitationReader looks up invitations by id.
type InvitationReader interface {
	GetByID(ctx context.Context, id string) (*model.Invitation, error)
}

// SubmissionStore persists guest submissions and reads their settings.
type SubmissionStore interface {
	Settings(ctx context.Context, invitationID string, kind model.SubmissionKind) (*model.SubmissionSettings, error)
	Create(ctx context.Context, sub model.Submission) (*model.Submission, error)
	ListApproved(ctx context.Context, invitationID string, kind model.SubmissionKind, before *time.Time, limit int) ([]model.Submission, error)
}

// RateLimiter decides whether a caller may proceed. Implementations fail
// open.
type RateLimiter interface {
	Allow(ctx context.Context, scope, identity string, limit int, window time.Duration) ratelimit.Decision
}

// BotVerifier checks a client attestation token. Implementations fail
// closed.
type BotVerifier interface {
	Verify(ctx context.Context, token, callerIP string) bool
}

// RateRule is the fixed-window limit for one submission kind.
type RateRule struct {
	Limit  int
	Window time.Duration
}

// SubmissionRequest is one guest write as seen by the gateway.
type SubmissionRequest struct {
	Kind         model.SubmissionKind
	InvitationID string
	CallerIP     string
	Token        string
	Input        model.SubmissionInput
}

// maxListedComments is the largest page GET /comments returns.
const maxListedComments = 200

// Gateway is the single entry point for unauthenticated guest writes.
// Every gate before the final insert is free of side effects, so nothing
// is ever compensated.
type Gateway struct {
	invitations InvitationReader
	submissions SubmissionStore
	limiter     RateLimiter
	bot         BotVerifier
	rules       map[model.SubmissionKind]RateRule
	events      events.Publisher
	logger      *zap.Logger
	now         func() time.Time
}

// NewGateway constructs a Gateway with its dependencies.
func NewGateway(
	invitations InvitationReader,
	submissions SubmissionStore,
	limiter RateLimiter,
	bot BotVerifier,
	rules map[model.SubmissionKind]RateRule,
	publisher events.Publisher,
	logger *zap.Logger,
) *Gateway {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Gateway{
		invitations: invitations,
		submissions: submissions,
		limiter:     limiter,
		bot:         bot,
		rules:       rules,
		events:      publisher,
		logger:      logger.Named("gateway"),
		now:         time.Now,
	}
}

// Submit runs the gates in order and stores the submission:
//
//	published invitation → rate limit → bot check → settings → policy → insert
func (g *Gateway) Submit(ctx context.Context, req SubmissionRequest) (res *model.SubmissionResult, err error) {
	defer func() {
		metrics.SubmissionsTotal.WithLabelValues(string(req.Kind), submitOutcome(err)).Inc()
	}()

	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown submission kind %q", ErrInvalidInput, req.Kind)
	}
	req.InvitationID = strings.TrimSpace(req.InvitationID)
	log := g.logger.With(
		zap.String("kind", string(req.Kind)),
		zap.String("invitation_id", req.InvitationID),
		zap.String("caller_ip", req.CallerIP))

	if _, err := g.publishedInvitation(ctx, req.InvitationID); err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			log.Info("submission rejected: invitation not found or unpublished")
		}
		return nil, err
	}

	rule := g.rules[req.Kind]
	scope := string(req.Kind) + ":" + req.InvitationID
	if d := g.limiter.Allow(ctx, scope, req.CallerIP, rule.Limit, rule.Window); !d.Allowed {
		retry := d.RetryAfter(g.now())
		log.Info("submission rejected: rate limited", zap.Int("retry_after_seconds", retry))
		return nil, &RateLimitedError{RetryAfterSeconds: retry}
	}

	if !g.bot.Verify(ctx, req.Token, req.CallerIP) {
		log.Info("submission rejected: bot check failed")
		return nil, ErrBotCheckFailed
	}

	settings, err := g.submissions.Settings(ctx, req.InvitationID, req.Kind)
	if err != nil {
		log.Error("load submission settings", zap.Error(err))
		return nil, &InternalError{Step: "load_settings", Cause: err}
	}

	decision := Evaluate(req.Kind, settings, req.Input, g.now())
	if !decision.Accept {
		log.Info("submission rejected by policy",
			zap.String("reason", string(decision.Reason)), zap.Int("limit", decision.Limit))
		return nil, decision.Err()
	}

	in := decision.Normalized
	sub, err := g.submissions.Create(ctx, model.Submission{
		Kind:             req.Kind,
		InvitationID:     req.InvitationID,
		GuestName:        in.GuestName,
		AttendanceStatus: in.AttendanceStatus,
		NumberOfGuests:   in.NumberOfGuests,
		Message:          in.Message,
		IsApproved:       decision.AutoApprove,
	})
	if err != nil {
		log.Error("insert submission", zap.Error(err))
		return nil, &InternalError{Step: "insert_submission", Cause: err}
	}

	if err := g.events.Publish(ctx, events.SubjectSubmissionCreated, sub); err != nil {
		log.Warn("publish submission event", zap.Error(err))
	}
	log.Info("submission stored", zap.String("submission_id", sub.ID), zap.Bool("auto_approved", sub.IsApproved))

	return &model.SubmissionResult{
		ID:             sub.ID,
		AutoApproved:   sub.IsApproved,
		DisplayMessage: displayMessage(req.Kind, sub.IsApproved),
	}, nil
}

// Settings returns the effective settings for a published invitation,
// falling back to the defaults when the owner never saved any.
func (g *Gateway) Settings(ctx context.Context, kind model.SubmissionKind, invitationID string) (model.SubmissionSettings, error) {
	if !kind.Valid() {
		return model.SubmissionSettings{}, fmt.Errorf("%w: unknown submission kind %q", ErrInvalidInput, kind)
	}
	if _, err := g.publishedInvitation(ctx, invitationID); err != nil {
		return model.SubmissionSettings{}, err
	}
	s, err := g.submissions.Settings(ctx, invitationID, kind)
	if err != nil {
		return model.SubmissionSettings{}, &InternalError{Step: "load_settings", Cause: err}
	}
	if s == nil {
		return model.DefaultSubmissionSettings(kind), nil
	}
	return *s, nil
}

// ListApprovedComments returns one page of the approved comments of a
// published invitation, newest first. Limits above maxListedComments are
// clamped.
func (g *Gateway) ListApprovedComments(ctx context.Context, invitationID string, page model.PageRequest) (model.SubmissionPage, error) {
	if page.Limit < 0 {
		return model.SubmissionPage{}, fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	}
	if _, err := g.publishedInvitation(ctx, invitationID); err != nil {
		return model.SubmissionPage{}, err
	}
	limit := page.Limit
	if limit == 0 || limit > maxListedComments {
		limit = maxListedComments
	}

	// One extra row tells whether an older page exists.
	subs, err := g.submissions.ListApproved(ctx, invitationID, model.KindComment, page.Before, limit+1)
	if err != nil {
		return model.SubmissionPage{}, &InternalError{Step: "list_comments", Cause: err}
	}
	out := model.SubmissionPage{Items: subs}
	if len(subs) > limit {
		out.Items = subs[:limit]
		next := out.Items[limit-1].CreatedAt
		out.NextBefore = &next
	}
	return out, nil
}

func (g *Gateway) publishedInvitation(ctx context.Context, id string) (*model.Invitation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: invitation_id is required", ErrInvalidInput)
	}
	inv, err := g.invitations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		g.logger.Error("load invitation", zap.String("invitation_id", id), zap.Error(err))
		return nil, &InternalError{Step: "load_invitation", Cause: err}
	}
	if inv.Status != model.StatusPublished {
		return nil, ErrResourceNotFound
	}
	return inv, nil
}

func displayMessage(kind model.SubmissionKind, approved bool) string {
	switch {
	case kind == model.KindRSVP && approved:
		return "Thank you! Your RSVP has been recorded."
	case kind == model.KindRSVP:
		return "Thank you! Your RSVP is awaiting confirmation from the host."
	case approved:
		return "Thank you! Your comment has been posted."
	default:
		return "Thank you! Your comment will appear once the host approves it."
	}
}

func submitOutcome(err error) string {
	switch {
	case err == nil:
		return "stored"
	case errors.Is(err, ErrResourceNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrBotCheckFailed):
		return "bot_check_failed"
	case errors.Is(err, ErrPolicyRejected), errors.Is(err, ErrInvalidInput):
		return "rejected"
	default:
		return "internal_error"
	}
}
