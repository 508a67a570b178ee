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

// Package routing ties the address parser, the mailbox resolver and the
// customer/campaign matcher together into the per-message pipeline the
// webhook and the route CLI run.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/mailbox"
	"github.com/AImitSK/skamp-sub025/internal/matcher"
	"github.com/AImitSK/skamp-sub025/internal/metrics"
	"github.com/AImitSK/skamp-sub025/internal/models"
)

// Outcome is the result of routing one inbound message.
type Outcome struct {
	MessageID      string                     `json:"message_id"`
	OrganizationID string                     `json:"organization_id"`
	RoutingAddress string                     `json:"routing_address,omitempty"`
	Routing        *mailbox.Decision          `json:"routing,omitempty"`
	Match          *matcher.Result            `json:"match,omitempty"`
	Warnings       []matcher.HeuristicWarning `json:"warnings,omitempty"`
	ProcessedAt    time.Time                  `json:"processed_at"`
}

// Router routes inbound messages. It is safe for concurrent use.
type Router struct {
	parser         *address.Parser
	resolver       *mailbox.Resolver
	mailboxes      mailbox.DomainMailboxRepository
	matcher        *matcher.Matcher
	requireAddress bool
	now            func() time.Time
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// Option configures a Router.
type Option func(*Router)

// RequireRoutingAddress controls messages with no recipient on the inbox
// domain. When true (the default) they are rejected with
// address.ErrInvalidDomain; when false they are only classified.
func RequireRoutingAddress(require bool) Option {
	return func(r *Router) { r.requireAddress = require }
}

// WithClock overrides the clock stamped on outcomes.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithLogger sets the router logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a router. mailboxes may be nil, in which case domain
// mailbox existence is not verified.
func New(parser *address.Parser, resolver *mailbox.Resolver, mailboxes mailbox.DomainMailboxRepository, m *matcher.Matcher, opts ...Option) *Router {
	r := &Router{
		parser:         parser,
		resolver:       resolver,
		mailboxes:      mailboxes,
		matcher:        m,
		requireAddress: true,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route decides where email belongs. Messages filed into a domain
// mailbox, directly or after a redirect, are also matched to a customer
// or campaign; project mail is not, its address already says where it
// belongs.
//
// Errors satisfying IsRejection mean the message cannot be routed as
// addressed; any other error is an infrastructure failure worth retrying.
func (r *Router) Route(ctx context.Context, orgID string, email *models.InboundEmail) (*Outcome, error) {
	start := time.Now()
	defer r.metrics.ObserveLatency(start)

	out := r.newOutcome(orgID, email)

	parsed, rcpt, err := r.parser.FindRouting(email.Recipients())
	if err != nil {
		if !r.requireAddress && errors.Is(err, address.ErrInvalidDomain) {
			r.classify(ctx, out, email)
			return out, nil
		}
		return nil, r.reject(email, err)
	}
	out.RoutingAddress = rcpt

	if d, ok := parsed.(address.DomainAddress); ok {
		if err := r.checkDomainMailbox(ctx, orgID, d.DomainID); err != nil {
			return nil, r.reject(email, err)
		}
	}

	decision, err := r.resolver.ResolveFor(ctx, orgID, parsed)
	if err != nil {
		return nil, r.reject(email, err)
	}
	out.Routing = decision
	r.metrics.ObserveDecision(string(decision.MailboxType), decision.Redirected())

	if decision.MailboxType == mailbox.TypeDomain {
		r.classify(ctx, out, email)
	}

	r.logger.Info("message routed",
		zap.String("org_id", orgID),
		zap.String("message_id", email.MessageID),
		zap.String("address", rcpt),
		zap.String("mailbox_type", string(decision.MailboxType)),
		zap.String("project_id", decision.ProjectID),
		zap.String("domain_id", decision.DomainID),
		zap.Bool("redirected", decision.Redirected()),
	)
	return out, nil
}

// Classify runs only the matcher, for mail that has no routing address.
func (r *Router) Classify(ctx context.Context, orgID string, email *models.InboundEmail) *Outcome {
	out := r.newOutcome(orgID, email)
	r.classify(ctx, out, email)
	return out
}

func (r *Router) newOutcome(orgID string, email *models.InboundEmail) *Outcome {
	return &Outcome{
		MessageID:      email.MessageID,
		OrganizationID: orgID,
		ProcessedAt:    r.now().UTC(),
	}
}

func (r *Router) classify(ctx context.Context, out *Outcome, email *models.InboundEmail) {
	if r.matcher == nil {
		return
	}
	res := r.matcher.Match(ctx, out.OrganizationID, matcher.Message{
		FromEmail:    email.From.Address,
		Subject:      email.Subject,
		ReplyToEmail: email.ReplyToAddress(),
		ReceivedAt:   email.ReceivedAt,
	})
	out.Match = &res.Result
	out.Warnings = res.Warnings
}

func (r *Router) checkDomainMailbox(ctx context.Context, orgID, domainID string) error {
	if r.mailboxes == nil {
		return nil
	}
	m, err := r.mailboxes.GetDomainMailbox(ctx, domainID)
	if err != nil {
		return fmt.Errorf("load domain mailbox %s: %w", domainID, err)
	}
	if m == nil || (m.OrganizationID != "" && m.OrganizationID != orgID) {
		return fmt.Errorf("%w: %s", mailbox.ErrDomainMailboxNotFound, domainID)
	}
	return nil
}

func (r *Router) reject(email *models.InboundEmail, err error) error {
	reason := Reason(err)
	if reason == "" {
		r.logger.Error("routing failed",
			zap.String("message_id", email.MessageID),
			zap.Error(err),
		)
		return err
	}
	r.metrics.ObserveRejection(reason)
	r.logger.Info("message rejected",
		zap.String("message_id", email.MessageID),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return err
}

// Reason returns the machine-readable rejection reason for err, or ""
// when err is not a rejection.
func Reason(err error) string {
	switch {
	case errors.Is(err, address.ErrInvalidDomain):
		return "invalid_domain"
	case errors.Is(err, address.ErrMalformedAddress):
		return "malformed_address"
	case errors.Is(err, mailbox.ErrProjectNotFound):
		return "project_not_found"
	case errors.Is(err, mailbox.ErrDomainMailboxNotFound):
		return "domain_mailbox_not_found"
	case errors.Is(err, mailbox.ErrUnknownProjectStatus):
		return "unknown_project_status"
	default:
		return ""
	}
}

// IsRejection reports whether err means the message cannot be routed as
// addressed, as opposed to a transient failure.
func IsRejection(err error) bool {
	return Reason(err) != ""
}
