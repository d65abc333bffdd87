// Package webhook exposes the HTTP surface of the reconciliation engine:
// one POST endpoint that authenticates, normalizes, classifies and applies
// a CRM lifecycle event.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowreach/accountsync/pkg/accountsync"
)

const (
	// DefaultSignatureHeader carries the signature or token unless the
	// deployment overrides it.
	DefaultSignatureHeader = "X-Webhook-Signature"

	// DefaultSecretQueryParam is the fallback token location for senders
	// that cannot set headers.
	DefaultSecretQueryParam = "secret"

	// defaultMaxBodyBytes caps payload size. CRM payloads are well under
	// 100KB, so 256KB is a safe upper bound.
	defaultMaxBodyBytes = 256 * 1024
)

// Config defines the webhook handler configuration.
type Config struct {
	// Reconciler applies classified events to account records. Required.
	Reconciler *accountsync.Reconciler

	// Verifier authenticates requests before the payload is trusted.
	// Required: a nil Verifier is a misconfiguration and the handler
	// fails closed, rejecting every request.
	Verifier Verifier

	// SignatureHeader names the header carrying the signature or token.
	// Defaults to DefaultSignatureHeader; Authorization and the query
	// parameter are consulted as fallbacks.
	SignatureHeader string

	// SecretQueryParam names the query parameter fallback for token
	// deployments. Defaults to DefaultSecretQueryParam.
	SecretQueryParam string

	// MaxBodyBytes caps the request body size. Defaults to 256KB.
	MaxBodyBytes int64

	// Logger is an optional structured logger.
	Logger accountsync.Logger

	// Metrics is an optional metrics collector.
	Metrics accountsync.Metrics
}

// Handler processes inbound lifecycle webhooks.
type Handler struct {
	reconciler *accountsync.Reconciler
	verifier   Verifier
	sigHeader  string
	sigQuery   string
	maxBody    int64
	logger     accountsync.Logger
	metrics    accountsync.Metrics
}

// NewHandler creates a webhook handler.
func NewHandler(config Config) (*Handler, error) {
	if config.Reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}

	sigHeader := config.SignatureHeader
	if sigHeader == "" {
		sigHeader = DefaultSignatureHeader
	}
	sigQuery := config.SecretQueryParam
	if sigQuery == "" {
		sigQuery = DefaultSecretQueryParam
	}
	maxBody := config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	logger := config.Logger
	if logger == nil {
		logger = &accountsync.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &accountsync.NoopMetrics{}
	}

	return &Handler{
		reconciler: config.Reconciler,
		verifier:   config.Verifier,
		sigHeader:  sigHeader,
		sigQuery:   sigQuery,
		maxBody:    maxBody,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Response is the JSON body returned for handled events.
type Response struct {
	Success bool        `json:"success"`
	Action  string      `json:"action,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	EventID string      `json:"event_id,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		if errors.Is(err, errPayloadTooLarge) {
			h.metrics.RecordWebhookError("payload_too_large")
			h.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		} else {
			h.metrics.RecordWebhookError("invalid_payload")
			h.writeError(w, http.StatusBadRequest, "invalid payload")
		}
		return
	}

	// Authentication happens strictly before JSON parsing so an
	// unauthenticated request produces zero side effects. A nil verifier
	// is a misconfiguration and fails closed.
	if h.verifier == nil {
		h.logger.Error("no verifier configured, rejecting request")
		h.metrics.RecordWebhookError("auth_failed")
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.verifier.Verify(body, h.extractSignature(r)); err != nil {
		h.metrics.RecordWebhookError("auth_failed")
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	event, err := accountsync.Normalize(body)
	if err != nil {
		h.metrics.RecordWebhookError("invalid_payload")
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	action, reason := accountsync.Classify(event, h.reconciler.Config())

	if action == accountsync.ActionIgnore || event.Contact.Email == "" {
		// Structurally unusable payloads are acknowledged with 202 so the
		// sender is not encouraged to retry them indefinitely.
		if event.Contact.Email == "" && action != accountsync.ActionIgnore {
			reason = fmt.Sprintf("%s, but no contact email", string(action))
		}
		h.metrics.RecordWebhookEvent(string(action), "skipped")
		h.writeJSON(w, http.StatusAccepted, Response{
			Success: true,
			Action:  string(accountsync.ActionIgnore),
			Reason:  reason,
			EventID: event.EventID,
		})
		return
	}

	result, err := h.dispatch(r, event, action)
	if err != nil {
		h.logger.Error("webhook processing failed",
			accountsync.Field{Key: "action", Value: string(action)},
			accountsync.Field{Key: "event_id", Value: event.EventID},
			accountsync.Field{Key: "error", Value: err.Error()})
		h.metrics.RecordWebhookEvent(string(action), "error")
		h.metrics.RecordWebhookError("processing_error")
		h.metrics.RecordWebhookProcessingDuration(string(action), time.Since(startTime))
		h.writeError(w, http.StatusInternalServerError, "failed to process webhook")
		return
	}

	h.metrics.RecordWebhookEvent(string(action), "success")
	h.metrics.RecordWebhookProcessingDuration(string(action), time.Since(startTime))
	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Action:  string(action),
		Reason:  reason,
		Result:  result,
		EventID: event.EventID,
	})
}

// dispatch routes a classified event to the reconciler or status updater.
func (h *Handler) dispatch(r *http.Request, event *accountsync.WebhookEvent, action accountsync.Action) (interface{}, error) {
	ctx := r.Context()
	cfg := h.reconciler.Config()
	activate := true

	switch action {
	case accountsync.ActionProPurchase:
		return h.reconciler.EnsureAccount(ctx, accountsync.EnsureAccountParams{
			Email:             event.Contact.Email,
			FullName:          event.Contact.Name,
			ExternalContactID: event.Contact.ID,
			DesiredRole:       accountsync.RolePro,
			Activate:          &activate,
			SendInvite:        true,
		})

	case accountsync.ActionTrialSignup:
		return h.reconciler.EnsureAccount(ctx, accountsync.EnsureAccountParams{
			Email:             event.Contact.Email,
			FullName:          event.Contact.Name,
			ExternalContactID: event.Contact.ID,
			DesiredRole:       accountsync.RoleUser,
			Activate:          &activate,
			SendInvite:        true,
		})

	case accountsync.ActionUserUpdate:
		// Low-impact default: refresh contact linkage without flipping a
		// suspended account back to active.
		return h.reconciler.EnsureAccount(ctx, accountsync.EnsureAccountParams{
			Email:             event.Contact.Email,
			FullName:          event.Contact.Name,
			ExternalContactID: event.Contact.ID,
			DesiredRole:       accountsync.RoleUser,
		})

	case accountsync.ActionPaymentFailed:
		return h.reconciler.UpdateActiveStatus(ctx, accountsync.UpdateStatusParams{
			Email:             event.Contact.Email,
			Active:            false,
			DisabledMessage:   cfg.PaymentFailedMessage,
			ExternalContactID: event.Contact.ID,
		})

	case accountsync.ActionCancellation:
		return h.reconciler.UpdateActiveStatus(ctx, accountsync.UpdateStatusParams{
			Email:             event.Contact.Email,
			Active:            false,
			DisabledMessage:   cfg.CancellationMessage,
			ExternalContactID: event.Contact.ID,
		})

	case accountsync.ActionPaymentRecovered:
		return h.reconciler.UpdateActiveStatus(ctx, accountsync.UpdateStatusParams{
			Email:             event.Contact.Email,
			Active:            true,
			ExternalContactID: event.Contact.ID,
		})

	default:
		return nil, nil
	}
}

var errPayloadTooLarge = errors.New("payload too large")

// readBody reads the request body with a size cap.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errPayloadTooLarge
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	return body, nil
}

// extractSignature pulls the signature or token from the configured
// header, the Authorization header, or the query parameter fallback.
func (h *Handler) extractSignature(r *http.Request) string {
	if sig := r.Header.Get(h.sigHeader); sig != "" {
		return sig
	}
	if sig := r.Header.Get("Authorization"); sig != "" {
		return sig
	}
	return r.URL.Query().Get(h.sigQuery)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, Response{Success: false, Error: msg})
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
