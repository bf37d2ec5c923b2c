// Package service implements the provisioning saga and the public
// submission gateway: business rules, validation, and orchestration between
// HTTP handlers and the repository layer.
package service

import (
	"errors"
	"fmt"
)

// Rejections: expected, user-correctable outcomes. Detailed errors below
// match these with errors.Is.
var (
	ErrQuotaExceeded         = errors.New("package limit exceeded")
	ErrTemplateNotAccessible = errors.New("template not accessible with current package")
	ErrResourceNotFound      = errors.New("invitation not found")
	ErrRateLimited           = errors.New("too many requests")
	ErrBotCheckFailed        = errors.New("bot verification failed")
	ErrPolicyRejected        = errors.New("submission rejected")
	ErrInvalidInput          = errors.New("invalid input")
)

// ErrInternal marks unexpected faults. Callers see a generic message.
var ErrInternal = errors.New("internal error")

// ErrEntitlementChanged means the user's tier moved, or their premium
// purchase was consumed, between the quota check and the increment. The
// saga re-runs its checks when it sees it.
var ErrEntitlementChanged = errors.New("entitlement changed concurrently")

// QuotaExceededError is returned when the user's package has no room left.
type QuotaExceededError struct {
	Remaining int
	Limit     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("package limit exceeded: %d of %d remaining", e.Remaining, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// TemplateNotAccessibleError is returned when the chosen template is above
// the user's package.
type TemplateNotAccessibleError struct {
	TemplateID    string
	AccessibleIDs []string
}

func (e *TemplateNotAccessibleError) Error() string {
	return fmt.Sprintf("template %q not accessible with current package", e.TemplateID)
}

func (e *TemplateNotAccessibleError) Is(target error) bool { return target == ErrTemplateNotAccessible }

// RateLimitedError is returned when the caller exhausted its window.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// RejectReason names why the submission policy refused an input.
type RejectReason string

const (
	ReasonSubmissionsDisabled RejectReason = "submissions_disabled"
	ReasonDeadlinePassed      RejectReason = "deadline_passed"
	ReasonGuestLimitExceeded  RejectReason = "guest_limit_exceeded"
	ReasonTooLong             RejectReason = "too_long"
	ReasonNameRequired        RejectReason = "name_required"
	ReasonInvalidInput        RejectReason = "invalid_input"
)

// PolicyRejectedError carries the policy decision back to the caller.
// Limit is set for GuestLimitExceeded and TooLong.
type PolicyRejectedError struct {
	Reason  RejectReason
	Limit   int
	Message string
}

func (e *PolicyRejectedError) Error() string {
	return e.Message
}

func (e *PolicyRejectedError) Is(target error) bool {
	if target == ErrPolicyRejected {
		return true
	}
	return target == ErrInvalidInput && e.Reason == ReasonInvalidInput
}

// InternalError wraps an unexpected fault in a saga or gateway step.
type InternalError struct {
	Step  string
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Cause)
}

func (e *InternalError) Unwrap() error { return e.Cause }

func (e *InternalError) Is(target error) bool { return target == ErrInternal }

// EntitlementStateError reports a ledger operation on a user whose
// entitlement should exist but does not. It indicates a bug, never a user
// condition.
type EntitlementStateError struct {
	UserID string
	Op     string
}

func (e *EntitlementStateError) Error() string {
	return fmt.Sprintf("entitlement state: %s on missing user %q", e.Op, e.UserID)
}

func (e *EntitlementStateError) Is(target error) bool { return target == ErrInternal }
