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

package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/AImitSK/skamp-sub025/internal/metrics"
	"github.com/AImitSK/skamp-sub025/internal/models"
)

// DefaultCompanyScanLimit caps the companies compared by the subject heuristic.
const DefaultCompanyScanLimit = 100

// DefaultTimeout bounds a shared match run, which outlives the caller
// that started it.
const DefaultTimeout = 10 * time.Second

// matchableCampaigns are the campaign states mail can relate to.
var matchableCampaigns = []models.CampaignStatus{models.CampaignActive, models.CampaignSent}

// Matcher runs the heuristics. It is safe for concurrent use.
type Matcher struct {
	repos            Repositories
	cache            Cache
	companyScanLimit int
	timeout          time.Duration
	now              func() time.Time
	logger           *zap.Logger
	metrics          *metrics.Metrics
	group            singleflight.Group
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithCache enables result caching.
func WithCache(c Cache) Option {
	return func(m *Matcher) { m.cache = c }
}

// WithCompanyScanLimit sets how many companies the subject heuristic compares.
func WithCompanyScanLimit(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.companyScanLimit = n
		}
	}
}

// WithTimeout bounds each heuristic run.
func WithTimeout(d time.Duration) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock overrides the clock used for cache keys of undated messages.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// WithLogger sets the matcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Matcher) { m.metrics = mt }
}

// New creates a matcher over repos.
func New(repos Repositories, opts ...Option) *Matcher {
	m := &Matcher{
		repos:            repos,
		companyScanLimit: DefaultCompanyScanLimit,
		timeout:          DefaultTimeout,
		now:              time.Now,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match finds the most likely customer and/or campaign for msg within
// the organization orgID. It never fails; see Outcome.Warnings.
func (m *Matcher) Match(ctx context.Context, orgID string, msg Message) Outcome {
	key := m.cacheKey(orgID, msg)

	if m.cache != nil {
		if r, ok := m.cache.Get(ctx, key); ok {
			m.metrics.ObserveCache(true)
			return Outcome{Result: r, Cached: true}
		}
		m.metrics.ObserveCache(false)
	}

	// Concurrent callers share this run, so it must not die with the
	// first caller's context.
	v, _, _ := m.group.Do(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		out := m.run(runCtx, orgID, msg)
		// A result degraded by failed lookups is not worth remembering.
		if m.cache != nil && len(out.Warnings) == 0 {
			m.cache.Set(runCtx, key, out.Result)
		}
		return out, nil
	})
	return v.(Outcome)
}

// CacheKey identifies a message for caching: organization, sender,
// subject and receive time. Messages without a receive time are keyed
// by the current time.
func CacheKey(orgID string, msg Message, now time.Time) string {
	at := msg.ReceivedAt
	if at.IsZero() {
		at = now
	}
	return strings.Join([]string{
		orgID,
		strings.ToLower(strings.TrimSpace(msg.FromEmail)),
		msg.Subject,
		at.UTC().Format(time.RFC3339Nano),
	}, "\x1f")
}

func (m *Matcher) cacheKey(orgID string, msg Message) string {
	return CacheKey(orgID, msg, m.now())
}

type heuristic struct {
	name string
	run  func(ctx context.Context, s *state) Result
}

func (m *Matcher) heuristics(msg Message) []heuristic {
	hs := make([]heuristic, 0, 4)
	if strings.TrimSpace(msg.ReplyToEmail) != "" {
		hs = append(hs, heuristic{"campaign_reply_to", m.matchCampaignReplyTo})
	}
	return append(hs,
		heuristic{"contact_email", m.matchContactEmail},
		heuristic{"domain", m.matchDomain},
		heuristic{"subject", m.matchSubject},
	)
}

func (m *Matcher) run(ctx context.Context, orgID string, msg Message) Outcome {
	s := &state{orgID: orgID, msg: msg, m: m}
	best := NoMatch()

	for _, h := range m.heuristics(msg) {
		s.current = h.name
		r := m.runOne(ctx, s, h)
		if r.Confidence > best.Confidence {
			best = r
		}
		if best.Confidence >= MaxConfidence {
			break
		}
	}

	m.metrics.ObserveMatch(string(best.MatchedBy))
	if best.Matched() {
		m.logger.Debug("message matched",
			zap.String("org_id", orgID),
			zap.String("matched_by", string(best.MatchedBy)),
			zap.Int("confidence", best.Confidence),
			zap.String("customer_id", best.CustomerID),
			zap.String("campaign_id", best.CampaignID),
		)
	}

	return Outcome{Result: best, Warnings: s.warnings}
}

// runOne runs a heuristic, converting a panic in a repository into a warning.
func (m *Matcher) runOne(ctx context.Context, s *state, h heuristic) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			s.warn(fmt.Errorf("panic: %v", p))
			r = NoMatch()
		}
	}()
	return h.run(ctx, s)
}

// state is the per-message scratch space shared by the heuristics.
type state struct {
	orgID    string
	msg      Message
	m        *Matcher
	current  string
	warnings []HeuristicWarning

	campaigns       []models.Campaign
	campaignsLoaded bool
}

func (s *state) warn(err error) {
	w := HeuristicWarning{Heuristic: s.current, Message: err.Error(), Err: err}
	s.warnings = append(s.warnings, w)
	s.m.metrics.ObserveWarning(s.current)
	s.m.logger.Warn("heuristic lookup failed",
		zap.String("org_id", s.orgID),
		zap.String("heuristic", s.current),
		zap.Error(err),
	)
}

// loadCampaigns fetches active and sent campaigns once per message.
// A failed load is reported by every heuristic that needs the list.
func (s *state) loadCampaigns(ctx context.Context) ([]models.Campaign, bool) {
	if s.campaignsLoaded {
		return s.campaigns, true
	}
	if s.m.repos.Campaigns == nil {
		return nil, false
	}
	campaigns, err := s.m.repos.Campaigns.FindCampaigns(ctx, s.orgID, matchableCampaigns)
	if err != nil {
		s.warn(fmt.Errorf("find campaigns: %w", err))
		return nil, false
	}
	s.campaigns, s.campaignsLoaded = campaigns, true
	return campaigns, true
}
