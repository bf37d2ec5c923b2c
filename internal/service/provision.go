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
)

// InvitationStore creates and removes invitations for the saga.
type InvitationStore interface {
	Create(ctx context.Context, ownerID, templateID string, payload model.InvitationPayload) (*model.Invitation, error)
	Delete(ctx context.Context, id string) error
}

// Provisioner runs the invitation provisioning saga:
//
//	ensure profile → check quota → check template access → insert invitation
//	→ increment usage → reset premium package
//
// The quota and access checks have nothing to undo. A failed increment
// deletes the inserted invitation; if it failed because the entitlement
// changed underneath, the checks run again. A failed package reset is
// reported as a warning on an otherwise successful result.
type Provisioner struct {
	ledger      *QuotaLedger
	catalog     CatalogSource
	invitations InvitationStore
	events      events.Publisher
	logger      *zap.Logger

	// completionTimeout bounds the steps that run detached from the
	// caller's context once the invitation row exists.
	completionTimeout time.Duration
}

// NewProvisioner constructs a Provisioner with its dependencies.
func NewProvisioner(
	ledger *QuotaLedger,
	catalog CatalogSource,
	invitations InvitationStore,
	publisher events.Publisher,
	completionTimeout time.Duration,
	logger *zap.Logger,
) *Provisioner {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if completionTimeout <= 0 {
		completionTimeout = 15 * time.Second
	}
	return &Provisioner{
		ledger:            ledger,
		catalog:           catalog,
		invitations:       invitations,
		events:            publisher,
		completionTimeout: completionTimeout,
		logger:            logger.Named("saga"),
	}
}

// Provision creates an invitation for req.UserID if their package allows
// it. Rejections are *QuotaExceededError, *TemplateNotAccessibleError or
// ErrInvalidInput; anything else is an *InternalError.
func (p *Provisioner) Provision(ctx context.Context, req model.ProvisioningRequest) (res *model.ProvisionResult, err error) {
	start := time.Now()
	defer func() {
		outcome := provisionOutcome(res, err)
		metrics.ProvisionTotal.WithLabelValues(outcome).Inc()
		metrics.ProvisionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	req.UserID = strings.TrimSpace(req.UserID)
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.Payload.Title = strings.TrimSpace(req.Payload.Title)
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if req.TemplateID == "" {
		return nil, fmt.Errorf("%w: templateId is required", ErrInvalidInput)
	}

	log := p.logger.With(zap.String("user_id", req.UserID), zap.String("template_id", req.TemplateID))

	for attempt := 1; ; attempt++ {
		res, err = p.attempt(ctx, log, req)
		if !errors.Is(err, ErrEntitlementChanged) {
			return res, err
		}
		if attempt == maxProvisionAttempts {
			return nil, p.fault(log, "increment_usage", err)
		}
		log.Info("entitlement changed by a concurrent request, re-checking", zap.Int("attempt", attempt))
	}
}

// maxProvisionAttempts bounds how often the checks are re-run after the
// entitlement changed under a request.
const maxProvisionAttempts = 3

// attempt runs the saga once. ErrEntitlementChanged means the inserted
// invitation was rolled back and the checks must be re-evaluated.
func (p *Provisioner) attempt(ctx context.Context, log *zap.Logger, req model.ProvisioningRequest) (*model.ProvisionResult, error) {
	// ── ProfileEnsured ──────────────────────────────────────────────────
	if _, err := p.ledger.EnsureProfile(ctx, req.UserID); err != nil {
		return nil, p.fault(log, "ensure_profile", err)
	}

	// ── QuotaChecked ────────────────────────────────────────────────────
	status, err := p.ledger.CheckCanCreate(ctx, req.UserID)
	if err != nil {
		return nil, p.fault(log, "check_quota", err)
	}
	if !status.CanCreate {
		qe := &QuotaExceededError{}
		if status.Remaining != nil {
			qe.Remaining = *status.Remaining
		}
		if status.Limit != nil {
			qe.Limit = *status.Limit
		}
		log.Info("provisioning rejected: quota exceeded",
			zap.String("tier", status.PackageTier), zap.Int("used", status.Used), zap.Int("limit", qe.Limit))
		return nil, qe
	}

	// ── AccessChecked ───────────────────────────────────────────────────
	cat, err := p.catalog.Load(ctx)
	if err != nil {
		return nil, p.fault(log, "load_catalog", err)
	}
	policy := NewAccessPolicy(cat)
	if !policy.IsAccessible(status.PackageTier, req.TemplateID) {
		log.Info("provisioning rejected: template not accessible", zap.String("tier", status.PackageTier))
		return nil, &TemplateNotAccessibleError{
			TemplateID:    req.TemplateID,
			AccessibleIDs: policy.AccessibleTemplates(status.PackageTier),
		}
	}

	// From the insert onwards the saga runs to completion even if the
	// caller disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.completionTimeout)
	defer cancel()

	// ── ResourceInserted ────────────────────────────────────────────────
	inv, err := p.invitations.Create(ctx, req.UserID, req.TemplateID, req.Payload)
	if err != nil {
		return nil, p.fault(log, "insert_invitation", err)
	}
	log = log.With(zap.String("invitation_id", inv.ID))

	// ── UsageIncremented ────────────────────────────────────────────────
	// The increment only lands on the tier checked above and, for a premium
	// user, claims the purchase in the same write.
	usage, err := p.ledger.Increment(ctx, req.UserID, status)
	if err != nil {
		p.compensate(ctx, log, inv.ID)
		var qe *QuotaExceededError
		switch {
		case errors.As(err, &qe):
			log.Info("provisioning rejected: quota taken by a concurrent request", zap.Int("limit", qe.Limit))
			return nil, qe
		case errors.Is(err, ErrEntitlementChanged):
			return nil, err
		}
		return nil, p.fault(log, "increment_usage", err)
	}

	// ── PackageReset ────────────────────────────────────────────────────
	reset := model.PackageReset{}
	if status.Premium {
		reset, err = p.ledger.ResetToBase(ctx, req.UserID)
		if err != nil {
			log.Error("package reset failed, keeping invitation", zap.Error(err))
			reset = model.PackageReset{OldTier: status.PackageTier, Warning: true}
		}
	}

	res := &model.ProvisionResult{Invitation: inv, Usage: usage, PackageReset: reset}

	if err := p.events.Publish(ctx, events.SubjectInvitationProvisioned, res); err != nil {
		log.Warn("publish provisioned event", zap.Error(err))
	}
	log.Info("invitation provisioned",
		zap.Int("used", usage.NewCount),
		zap.Bool("package_reset", reset.Performed),
		zap.Bool("package_reset_warning", reset.Warning))
	return res, nil
}

// compensate deletes an invitation that was never counted against quota.
func (p *Provisioner) compensate(ctx context.Context, log *zap.Logger, invitationID string) {
	if err := p.invitations.Delete(ctx, invitationID); err != nil {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		log.Error("compensation failed, orphaned invitation left behind", zap.Error(err))
		return
	}
	metrics.CompensationsTotal.WithLabelValues("deleted").Inc()
	log.Warn("rolled back uncounted invitation")
}

func (p *Provisioner) fault(log *zap.Logger, step string, err error) error {
	log.Error("provisioning failed", zap.String("step", step), zap.Error(err))
	return &InternalError{Step: step, Cause: err}
}

func provisionOutcome(res *model.ProvisionResult, err error) string {
	switch {
	case err == nil && res != nil && res.PackageReset.Warning:
		return "success_reset_warning"
	case err == nil:
		return "success"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrTemplateNotAccessible):
		return "template_not_accessible"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal_error"
	}
}
