package model

import "time"

// SubmissionKind distinguishes the two kinds of guest submission.
type SubmissionKind string

const (
	KindRSVP    SubmissionKind = "rsvp"
	KindComment SubmissionKind = "comment"
)

// Valid reports whether k names a known submission kind.
func (k SubmissionKind) Valid() bool {
	return k == KindRSVP || k == KindComment
}

// AttendanceStatus is a guest's answer to an RSVP.
type AttendanceStatus string

const (
	AttendanceAttending    AttendanceStatus = "attending"
	AttendanceNotAttending AttendanceStatus = "not_attending"
	AttendanceMaybe        AttendanceStatus = "maybe"
)

// Valid reports whether s is one of the accepted attendance answers.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceAttending, AttendanceNotAttending, AttendanceMaybe:
		return true
	}
	return false
}

// AnonymousName replaces a blank comment author.
const AnonymousName = "Anonymous"

// SubmissionSettings are the owner-controlled rules for one kind of
// submission on one invitation.
type SubmissionSettings struct {
	IsEnabled            bool       `json:"is_enabled"`
	RequireApproval      bool       `json:"require_approval"`
	MaxLength            int        `json:"max_length"`
	RequireName          bool       `json:"require_name"`
	Deadline             *time.Time `json:"deadline,omitempty"`
	MaxGuestsPerResponse int        `json:"max_guests_per_response"`
}

// DefaultSubmissionSettings returns the settings that apply when an
// invitation owner never saved any. RSVPs are auto-approved by default,
// comments are held for moderation.
func DefaultSubmissionSettings(kind SubmissionKind) SubmissionSettings {
	if kind == KindComment {
		return SubmissionSettings{
			IsEnabled:       true,
			RequireApproval: true,
			MaxLength:       500,
			RequireName:     false,
		}
	}
	return SubmissionSettings{
		IsEnabled:            true,
		RequireApproval:      false,
		MaxLength:            500,
		RequireName:          true,
		MaxGuestsPerResponse: 5,
	}
}

// SubmissionInput is the guest-supplied content of an RSVP or comment.
type SubmissionInput struct {
	GuestName        string           `json:"guest_name"`
	AttendanceStatus AttendanceStatus `json:"attendance_status,omitempty"`
	NumberOfGuests   int              `json:"number_of_guests,omitempty"`
	Message          string           `json:"message"`
}

// SubmitRSVPRequest is the HTTP payload for POST /rsvp.
type SubmitRSVPRequest struct {
	InvitationID     string           `json:"invitation_id"`
	GuestName        string           `json:"guest_name"`
	AttendanceStatus AttendanceStatus `json:"attendance_status"`
	NumberOfGuests   int              `json:"number_of_guests"`
	Message          string           `json:"message"`
	TurnstileToken   string           `json:"turnstile_token"`
}

// SubmitCommentRequest is the HTTP payload for POST /comments.
type SubmitCommentRequest struct {
	InvitationID   string `json:"invitation_id"`
	GuestName      string `json:"guest_name"`
	Message        string `json:"message"`
	TurnstileToken string `json:"turnstile_token"`
}

// Submission is a persisted RSVP or comment.
type Submission struct {
	ID               string           `json:"id"`
	Kind             SubmissionKind   `json:"kind"`
	InvitationID     string           `json:"invitation_id"`
	GuestName        string           `json:"guest_name"`
	AttendanceStatus AttendanceStatus `json:"attendance_status,omitempty"`
	NumberOfGuests   int              `json:"number_of_guests,omitempty"`
	Message          string           `json:"message,omitempty"`
	IsApproved       bool             `json:"is_approved"`
	CreatedAt        time.Time        `json:"created_at"`
}

// SubmissionResult is returned to the guest after a successful submit.
type SubmissionResult struct {
	ID             string `json:"id"`
	AutoApproved   bool   `json:"auto_approved"`
	DisplayMessage string `json:"message"`
}

// PageRequest selects one page of a newest-first listing. Before is
// exclusive; a zero Limit means the largest page allowed.
type PageRequest struct {
	Before *time.Time
	Limit  int
}

// SubmissionPage is one page of a listing. NextBefore is set when older
// entries remain and is the Before of the following page.
type SubmissionPage struct {
	Items      []Submission
	NextBefore *time.Time
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
