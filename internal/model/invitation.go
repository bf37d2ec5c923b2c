package model

import (
	"encoding/json"
	"time"
)

// InvitationStatus is the publication state of an invitation.
type InvitationStatus string

const (
	StatusDraft     InvitationStatus = "draft"
	StatusPublished InvitationStatus = "published"
	StatusArchived  InvitationStatus = "archived"
)

// Invitation is the billable resource created by the provisioning saga.
type Invitation struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"owner_id"`
	TemplateID   string           `json:"template_id"`
	Title        string           `json:"title"`
	EventDate    *time.Time       `json:"event_date,omitempty"`
	CustomFields json.RawMessage  `json:"custom_fields,omitempty"`
	Status       InvitationStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// InvitationPayload is the user-supplied content of a new invitation.
type InvitationPayload struct {
	Title        string          `json:"title"`
	EventDate    *time.Time      `json:"event_date,omitempty"`
	CustomFields json.RawMessage `json:"custom_fields,omitempty"`
}

// ProvisionInvitationRequest is the HTTP payload for POST /provision-invitation.
type ProvisionInvitationRequest struct {
	TemplateID     string            `json:"templateId"`
	InvitationData InvitationPayload `json:"invitationData"`
}

// ProvisioningRequest is the input to the provisioning saga.
type ProvisioningRequest struct {
	UserID     string
	TemplateID string
	Payload    InvitationPayload
}

// ProvisionResult summarises a successful saga run.
type ProvisionResult struct {
	Invitation   *Invitation  `json:"invitation"`
	Usage        UsageUpdate  `json:"usage_update"`
	PackageReset PackageReset `json:"package_reset"`
}
