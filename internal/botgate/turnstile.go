// Package botgate verifies Cloudflare Turnstile tokens before guest writes.
package botgate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/invitation-core/internal/metrics"
)

// DefaultVerifyURL is Cloudflare's siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Verifier checks Turnstile tokens. With an empty secret every token
// passes; otherwise any failure to get a positive answer is a rejection.
type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
	logger    *zap.Logger
}

// Option customises a Verifier.
type Option func(*Verifier)

// WithVerifyURL overrides the siteverify endpoint.
func WithVerifyURL(u string) Option {
	return func(v *Verifier) { v.verifyURL = u }
}

// WithHTTPClient replaces the HTTP client. Its Timeout is kept as is.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// New creates a Verifier whose calls to the verification service are
// bounded by timeout.
func New(secret string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		secret:    secret,
		verifyURL: DefaultVerifyURL,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.Named("botgate"),
	}
	for _, opt := range opts {
		opt(v)
	}
	if secret == "" {
		v.logger.Warn("turnstile secret not configured, bot verification disabled", zap.Bool("degraded", true))
	}
	return v
}

// Enabled reports whether tokens are actually verified.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
}

// Verify reports whether token proves a human caller.
func (v *Verifier) Verify(ctx context.Context, token, callerIP string) bool {
	if !v.Enabled() {
		metrics.BotGateVerifications.WithLabelValues("disabled").Inc()
		return true
	}
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.BotGateVerifications.WithLabelValues("missing_token").Inc()
		return false
	}

	ok, err := v.siteverify(ctx, token, callerIP)
	if err != nil {
		v.logger.Error("turnstile verification failed, rejecting", zap.Error(err))
		metrics.BotGateVerifications.WithLabelValues("error").Inc()
		return false
	}
	if !ok {
		metrics.BotGateVerifications.WithLabelValues("rejected").Inc()
		return false
	}
	metrics.BotGateVerifications.WithLabelValues("passed").Inc()
	return true
}

func (v *Verifier) siteverify(ctx context.Context, token, callerIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if callerIP != "" {
		form.Set("remoteip", callerIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("call siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode siteverify response: %w", err)
	}
	if !body.Success {
		v.logger.Info("turnstile token rejected", zap.Strings("error_codes", body.ErrorCodes))
	}
	return body.Success, nil
}
