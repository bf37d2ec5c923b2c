// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
	"github.com/Shivanand-hulikatti/invitation-core/internal/service"
)

// Provisioner runs the invitation provisioning saga.
type Provisioner interface {
	Provision(ctx context.Context, req model.ProvisioningRequest) (*model.ProvisionResult, error)
}

// Ledger is the part of the quota ledger exposed over HTTP.
type Ledger interface {
	EnsureProfile(ctx context.Context, userID string) (*model.UserEntitlement, error)
	CheckCanCreate(ctx context.Context, userID string) (model.QuotaStatus, error)
	Upgrade(ctx context.Context, userID string, req model.UpgradeRequest) (*model.UserEntitlement, error)
}

// Gateway accepts and lists guest submissions.
type Gateway interface {
	Submit(ctx context.Context, req service.SubmissionRequest) (*model.SubmissionResult, error)
	Settings(ctx context.Context, kind model.SubmissionKind, invitationID string) (model.SubmissionSettings, error)
	ListApprovedComments(ctx context.Context, invitationID string, page model.PageRequest) (model.SubmissionPage, error)
}

// Handler holds all HTTP handlers for the invitation API.
type Handler struct {
	saga           Provisioner
	ledger         Ledger
	gateway        Gateway
	adminToken     string
	trustedProxies []netip.Prefix
	logger         *zap.Logger
}

// New constructs a Handler. An empty adminToken disables the internal
// endpoints. Forwarding headers are honoured only from trustedProxies.
func New(saga Provisioner, ledger Ledger, gateway Gateway, adminToken string, trustedProxies []netip.Prefix, logger *zap.Logger) *Handler {
	return &Handler{
		saga:           saga,
		ledger:         ledger,
		gateway:        gateway,
		adminToken:     adminToken,
		trustedProxies: trustedProxies,
		logger:         logger.Named("http"),
	}
}

// Routes builds the router. authn guards the owner endpoints.
func (h *Handler) Routes(authn func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(RealIP(h.trustedProxies))
	r.Use(Logger(h.logger))
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/provision-invitation", func(r chi.Router) {
		r.Use(authn)
		r.Post("/", h.ProvisionInvitation)
		r.Get("/quota", h.Quota)
	})

	r.Post("/rsvp", h.SubmitRSVP)
	r.Get("/rsvp", h.RSVPSettings)
	r.Post("/comments", h.SubmitComment)
	r.Get("/comments", h.ListComments)

	r.Route("/internal", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/entitlements/{userId}/upgrade", h.UpgradeEntitlement)
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func writeErrorDetails(w http.ResponseWriter, status int, msg string, details any) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// callerIP returns the client address. RealIP has already replaced
// RemoteAddr when a trusted proxy forwarded the request.
func callerIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
