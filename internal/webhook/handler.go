// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook receives inbound mail from the receiving provider and
// routes it synchronously. The provider POSTs one message per request to
// /inbound/{org}; the response tells it whether to retry.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/metrics"
	"github.com/AImitSK/skamp-sub025/internal/models"
	"github.com/AImitSK/skamp-sub025/internal/routing"
)

// SecretHeader carries the per-organization shared secret.
const SecretHeader = "X-Webhook-Secret"

// ErrMissingMessageID is returned for payloads without a message id.
var ErrMissingMessageID = errors.New("message_id is required")

// Router routes and classifies messages.
type Router interface {
	Route(ctx context.Context, orgID string, email *models.InboundEmail) (*routing.Outcome, error)
	Classify(ctx context.Context, orgID string, email *models.InboundEmail) *routing.Outcome
}

// Deduper remembers accepted message ids.
type Deduper interface {
	IsNew(ctx context.Context, orgID, messageID string) (bool, error)
	Forget(ctx context.Context, orgID, messageID string) error
}

// Publisher hands routing outcomes to the filing workers.
type Publisher interface {
	PublishOutcome(ctx context.Context, out *routing.Outcome) (string, error)
}

// Config holds the handler settings.
type Config struct {
	// Secrets maps organization id to its webhook secret. Organizations
	// not listed are unknown.
	Secrets map[string]string

	// RateLimit is the sustained request rate per organization; zero
	// disables limiting.
	RateLimit rate.Limit
	Burst     int

	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Handler serves the inbound and classify endpoints.
type Handler struct {
	router    Router
	filter    Deduper
	publisher Publisher
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHandler creates the webhook handler. filter and publisher may be nil.
func NewHandler(router Router, filter Deduper, publisher Publisher, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		router:    router,
		filter:    filter,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Payload is the JSON body of an inbound delivery. Address fields accept
// both bare addresses and the `Name <addr>` form.
type Payload struct {
	MessageID  string            `json:"message_id"`
	From       string            `json:"from"`
	To         []string          `json:"to"`
	Cc         []string          `json:"cc,omitempty"`
	ReplyTo    string            `json:"reply_to,omitempty"`
	Subject    string            `json:"subject"`
	ReceivedAt *time.Time        `json:"received_at,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// envelopeHeaders hold a single recipient address.
var envelopeHeaders = []string{"Delivered-To", "X-Original-To"}

// Email converts the payload into an InboundEmail.
func (p *Payload) Email() (*models.InboundEmail, error) {
	if p.MessageID == "" {
		return nil, ErrMissingMessageID
	}
	e := &models.InboundEmail{
		MessageID: p.MessageID,
		Subject:   p.Subject,
		Headers:   make(map[string]string, len(p.Headers)),
	}
	if p.ReceivedAt != nil {
		e.ReceivedAt = p.ReceivedAt.UTC()
	}

	var err error
	if e.From, err = address.ParseOne(p.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if p.ReplyTo != "" {
		rt, err := address.ParseOne(p.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("reply_to: %w", err)
		}
		e.ReplyTo = &rt
	}
	if e.To, err = parseAll(p.To); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	if e.Cc, err = parseAll(p.Cc); err != nil {
		return nil, fmt.Errorf("cc: %w", err)
	}

	for k, v := range p.Headers {
		e.Headers[k] = v
		for _, h := range envelopeHeaders {
			if http.CanonicalHeaderKey(k) != h {
				continue
			}
			a, err := address.ParseOne(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", h, err)
			}
			e.Headers[k] = a.Address
		}
	}
	return e, nil
}

func parseAll(values []string) ([]models.EmailAddress, error) {
	var out []models.EmailAddress
	for _, v := range values {
		list, err := address.ParseList(v)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type statusResponse struct {
	Status     string `json:"status"`
	MessageID  string `json:"message_id,omitempty"`
	EnvelopeID string `json:"envelope_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// authorize checks the organization secret and rate limit. It writes the
// error response and returns false when the request must stop.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, orgID string) bool {
	secret, ok := h.cfg.Secrets[orgID]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown organization"})
		return false
	}
	given := r.Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
		h.logger.Warn("webhook secret mismatch", zap.String("org_id", orgID), zap.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid webhook secret"})
		return false
	}
	if lim := h.limiter(orgID); lim != nil && !lim.Allow() {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(h.cfg.RateLimit)))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return false
	}
	return true
}

func (h *Handler) limiter(orgID string) *rate.Limiter {
	if h.cfg.RateLimit <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[orgID]
	if !ok {
		lim = rate.NewLimiter(h.cfg.RateLimit, h.cfg.Burst)
		h.limiters[orgID] = lim
	}
	return lim
}

func retryAfter(limit rate.Limit) int {
	secs := int(1 / float64(limit))
	if secs < 1 {
		return 1
	}
	return secs
}

// decode reads and converts the request body. It writes the error
// response and returns nil on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) *models.InboundEmail {
	var p Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
			return nil
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return nil
	}
	email, err := p.Email()
	if errors.Is(err, ErrMissingMessageID) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil
	}
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Reason: "malformed_address"})
		return nil
	}
	return email
}

// ServeInbound handles POST /inbound/{org}.
//
// Responses:
//   - 202 with the outcome when the message was routed and queued
//   - 200 {"status":"duplicate"} for a message id already accepted
//   - 422 {"error","reason"} when the message cannot be routed as addressed
//   - 503 on infrastructure failure; the provider should retry
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org")
	if !h.authorize(w, r, orgID) {
		return
	}
	email := h.decode(w, r)
	if email == nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

	if h.filter != nil {
		isNew, err := h.filter.IsNew(ctx, orgID, email.MessageID)
		if err != nil {
			h.logger.Warn("dedup check failed, proceeding", zap.Error(err))
		} else if !isNew {
			h.metrics.ObserveDuplicate()
			h.logger.Debug("skipping duplicate message", zap.String("message_id", email.MessageID))
			writeJSON(w, http.StatusOK, statusResponse{Status: "duplicate", MessageID: email.MessageID})
			return
		}
	}

	out, err := h.router.Route(ctx, orgID, email)
	if err != nil {
		// Rejections and failures both release the claim, so a retried
		// delivery gets the same answer instead of "duplicate".
		h.release(orgID, email.MessageID)
		if reason := routing.Reason(err); reason != "" {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Reason: reason})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "routing temporarily unavailable"})
		return
	}

	if h.publisher != nil {
		if _, err := h.publisher.PublishOutcome(ctx, out); err != nil {
			h.logger.Error("publish failed",
				zap.String("message_id", email.MessageID),
				zap.Error(err),
			)
			h.release(orgID, email.MessageID)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "queue temporarily unavailable"})
			return
		}
	}

	writeJSON(w, http.StatusAccepted, out)
}

// release forgets a dedup claim so the provider's retry is processed.
func (h *Handler) release(orgID, messageID string) {
	if h.filter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.filter.Forget(ctx, orgID, messageID); err != nil {
		h.logger.Warn("dedup release failed", zap.String("message_id", messageID), zap.Error(err))
	}
}

// ServeClassify handles POST /classify/{org}: the matcher only, nothing
// is queued.
func (h *Handler) ServeClassify(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org")
	if !h.authorize(w, r, orgID) {
		return
	}
	email := h.decode(w, r)
	if email == nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, h.router.Classify(ctx, orgID, email))
}

// Routes returns the webhook mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /inbound/{org}", h.ServeInbound)
	mux.HandleFunc("POST /classify/{org}", h.ServeClassify)
	return mux
}

// Serve starts the webhook HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler http.Handler, logger *zap.Logger) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("webhook server listening", zap.Int("port", port))
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			logger.Error("webhook server error", zap.Error(err))
		}
	}()

	return ready, nil
}
