package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
)

// Decision is the submission policy's verdict on one input.
type Decision struct {
	Accept      bool
	Reason      RejectReason
	Limit       int
	Message     string
	AutoApprove bool
	Normalized  model.SubmissionInput
}

// Err returns the rejection as a *PolicyRejectedError, or nil when accepted.
func (d Decision) Err() error {
	if d.Accept {
		return nil
	}
	return &PolicyRejectedError{Reason: d.Reason, Limit: d.Limit, Message: d.Message}
}

func reject(reason RejectReason, limit int, format string, args ...any) Decision {
	return Decision{Reason: reason, Limit: limit, Message: fmt.Sprintf(format, args...)}
}

// Evaluate applies settings to a guest input. Nil settings means the
// owner never saved any and the defaults for kind apply. Evaluate has no
// side effects.
func Evaluate(kind model.SubmissionKind, settings *model.SubmissionSettings, input model.SubmissionInput, now time.Time) Decision {
	s := model.DefaultSubmissionSettings(kind)
	if settings != nil {
		s = *settings
	}

	in := model.SubmissionInput{
		GuestName:        strings.TrimSpace(input.GuestName),
		AttendanceStatus: model.AttendanceStatus(strings.TrimSpace(string(input.AttendanceStatus))),
		NumberOfGuests:   input.NumberOfGuests,
		Message:          strings.TrimSpace(input.Message),
	}

	if !s.IsEnabled {
		return reject(ReasonSubmissionsDisabled, 0, "%ss are disabled for this invitation", kindLabel(kind))
	}

	var d Decision
	switch kind {
	case model.KindRSVP:
		d = evaluateRSVP(s, in, now)
	case model.KindComment:
		d = evaluateComment(s, in)
	default:
		return reject(ReasonInvalidInput, 0, "unknown submission kind %q", kind)
	}
	if !d.Accept {
		return d
	}
	d.AutoApprove = !s.RequireApproval
	return d
}

func evaluateRSVP(s model.SubmissionSettings, in model.SubmissionInput, now time.Time) Decision {
	if s.Deadline != nil && now.After(*s.Deadline) {
		return reject(ReasonDeadlinePassed, 0, "the RSVP deadline has passed")
	}
	// The name is the attendee list entry; it is never substituted.
	if in.GuestName == "" {
		return reject(ReasonInvalidInput, 0, "guest_name is required")
	}
	if !in.AttendanceStatus.Valid() {
		return reject(ReasonInvalidInput, 0, "attendance_status must be one of attending, not_attending, maybe")
	}

	if in.AttendanceStatus == model.AttendanceNotAttending {
		in.NumberOfGuests = 0
	} else if in.NumberOfGuests < 1 {
		return reject(ReasonInvalidInput, 0, "number_of_guests must be at least 1")
	}
	if s.MaxGuestsPerResponse > 0 && in.NumberOfGuests > s.MaxGuestsPerResponse {
		return reject(ReasonGuestLimitExceeded, s.MaxGuestsPerResponse,
			"a response may include at most %d guests", s.MaxGuestsPerResponse)
	}
	if s.MaxLength > 0 && utf8.RuneCountInString(in.Message) > s.MaxLength {
		return reject(ReasonTooLong, s.MaxLength, "message must be at most %d characters", s.MaxLength)
	}
	return Decision{Accept: true, Normalized: in}
}

func evaluateComment(s model.SubmissionSettings, in model.SubmissionInput) Decision {
	in.AttendanceStatus = ""
	in.NumberOfGuests = 0

	if in.Message == "" {
		return reject(ReasonInvalidInput, 0, "message is required")
	}
	if s.MaxLength > 0 && utf8.RuneCountInString(in.Message) > s.MaxLength {
		return reject(ReasonTooLong, s.MaxLength, "comment must be at most %d characters", s.MaxLength)
	}
	if in.GuestName == "" {
		if s.RequireName {
			return reject(ReasonNameRequired, 0, "guest_name is required")
		}
		in.GuestName = model.AnonymousName
	}
	return Decision{Accept: true, Normalized: in}
}

func kindLabel(kind model.SubmissionKind) string {
	if kind == model.KindRSVP {
		return "RSVP"
	}
	return string(kind)
}
