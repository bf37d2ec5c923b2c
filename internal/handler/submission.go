package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
	"github.com/Shivanand-hulikatti/invitation-core/internal/service"
)

// SubmitRSVP handles POST /rsvp
// Records a guest's RSVP against a published invitation.
func (h *Handler) SubmitRSVP(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRSVPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.gateway.Submit(r.Context(), service.SubmissionRequest{
		Kind:         model.KindRSVP,
		InvitationID: req.InvitationID,
		CallerIP:     callerIP(r),
		Token:        req.TurnstileToken,
		Input: model.SubmissionInput{
			GuestName:        req.GuestName,
			AttendanceStatus: req.AttendanceStatus,
			NumberOfGuests:   req.NumberOfGuests,
			Message:          req.Message,
		},
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       res.DisplayMessage,
		"rsvp_id":       res.ID,
		"auto_approved": res.AutoApproved,
	})
}

// SubmitComment handles POST /comments
// Records a guest comment, held for moderation unless the owner disabled it.
func (h *Handler) SubmitComment(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.gateway.Submit(r.Context(), service.SubmissionRequest{
		Kind:         model.KindComment,
		InvitationID: req.InvitationID,
		CallerIP:     callerIP(r),
		Token:        req.TurnstileToken,
		Input: model.SubmissionInput{
			GuestName: req.GuestName,
			Message:   req.Message,
		},
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       res.DisplayMessage,
		"comment_id":    res.ID,
		"auto_approved": res.AutoApproved,
	})
}

// RSVPSettings handles GET /rsvp?invitation_id=
// Returns the effective RSVP settings of a published invitation.
func (h *Handler) RSVPSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.gateway.Settings(r.Context(), model.KindRSVP, r.URL.Query().Get("invitation_id"))
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	writeData(w, settings)
}

type commentsResponse struct {
	Success    bool               `json:"success"`
	Data       []model.Submission `json:"data"`
	NextBefore *time.Time         `json:"next_before,omitempty"`
}

// ListComments handles GET /comments?invitation_id=&limit=&before=
// Returns one page of approved comments, newest first. before is the
// next_before of the previous page.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var page model.PageRequest
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		page.Limit = n
	}
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		page.Before = &t
	}

	res, err := h.gateway.ListApprovedComments(r.Context(), q.Get("invitation_id"), page)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if res.Items == nil {
		res.Items = []model.Submission{}
	}

	writeJSON(w, http.StatusOK, commentsResponse{Success: true, Data: res.Items, NextBefore: res.NextBefore})
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	var (
		rl *service.RateLimitedError
		pe *service.PolicyRejectedError
	)
	switch {
	case errors.Is(err, service.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, "Invitation not found")
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		writeErrorDetails(w, http.StatusTooManyRequests, "Too many requests, please try again later",
			map[string]int{"retry_after": rl.RetryAfterSeconds})
	case errors.Is(err, service.ErrBotCheckFailed):
		writeError(w, http.StatusBadRequest, "Bot verification failed")
	case errors.As(err, &pe):
		details := map[string]any{"reason": pe.Reason}
		if pe.Limit > 0 {
			details["limit"] = pe.Limit
		}
		writeErrorDetails(w, http.StatusBadRequest, pe.Message, details)
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
