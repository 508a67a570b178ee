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

// Package mailbox decides which mailbox an addressed inbound message is
// filed into. Project addresses whose project has been archived or
// completed are demoted to the owning domain mailbox with provenance
// labels, so replies never land in a dead thread.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/models"
)

var (
	// ErrProjectNotFound is returned when a project address names an unknown project.
	ErrProjectNotFound = errors.New("project not found")

	// ErrDomainMailboxNotFound is returned by callers whose own domain
	// mailbox lookup fails for a domain address.
	ErrDomainMailboxNotFound = errors.New("domain mailbox not found")

	// ErrUnknownProjectStatus is returned for project states the resolver
	// does not know how to route.
	ErrUnknownProjectStatus = errors.New("unknown project status")
)

// RedirectReason is recorded on every redirect, for archived and completed
// projects alike.
const RedirectReason = "project_archived"

// ProjectRepository loads projects by ID. A missing project is (nil, nil).
type ProjectRepository interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
}

// DomainMailboxRepository loads domain mailboxes by ID. A missing mailbox
// is (nil, nil). Consulted by callers, not by the Resolver.
type DomainMailboxRepository interface {
	GetDomainMailbox(ctx context.Context, id string) (*models.DomainMailbox, error)
}

// Resolver turns a parsed address into a routing decision.
type Resolver struct {
	projects ProjectRepository
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the clock used for RedirectedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the resolver logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver reading project state from projects.
func NewResolver(projects ProjectRepository, opts ...Option) *Resolver {
	r := &Resolver{
		projects: projects,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides the target mailbox for parsed.
//
// Project status is read on every call; nothing is memoized, so a reply
// arriving after a project was archived is redirected even if earlier
// replies were not.
func (r *Resolver) Resolve(ctx context.Context, parsed address.Parsed) (*Decision, error) {
	return r.ResolveFor(ctx, "", parsed)
}

// ResolveFor is Resolve scoped to the organization the mail was delivered
// for. A project owned by another organization is reported as
// ErrProjectNotFound. An empty orgID disables the check.
func (r *Resolver) ResolveFor(ctx context.Context, orgID string, parsed address.Parsed) (*Decision, error) {
	switch p := parsed.(type) {
	case address.DomainAddress:
		return &Decision{
			MailboxType: TypeDomain,
			DomainID:    p.DomainID,
		}, nil

	case address.ProjectAddress:
		return r.resolveProject(ctx, orgID, p)

	default:
		return nil, fmt.Errorf("resolve: unsupported address %T", parsed)
	}
}

func (r *Resolver) resolveProject(ctx context.Context, orgID string, p address.ProjectAddress) (*Decision, error) {
	project, err := r.projects.GetProject(ctx, p.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", p.ProjectID, err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, p.ProjectID)
	}
	if orgID != "" && project.OrganizationID != orgID {
		r.logger.Warn("project address used by another organization",
			zap.String("project_id", project.ID),
			zap.String("org_id", orgID),
		)
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, p.ProjectID)
	}

	domainID := project.DomainID
	if domainID == "" {
		domainID = p.DomainHint()
	}

	switch {
	case project.Status.Accepting():
		return &Decision{
			MailboxType: TypeProject,
			ProjectID:   project.ID,
			DomainID:    domainID,
		}, nil

	case project.Status.Closed():
		d := &Decision{
			MailboxType: TypeDomain,
			DomainID:    domainID,
			Redirect: &RedirectMetadata{
				OriginalProjectID:    project.ID,
				OriginalProjectTitle: project.Title,
				ArchivedAt:           project.CompletedAt,
				RedirectedAt:         r.now().UTC(),
				Reason:               RedirectReason,
			},
		}
		d.AddLabel("redirected-from-" + string(project.Status))
		d.AddLabel(OriginalProjectLabel(project.ID))

		r.logger.Info("redirecting mail for closed project",
			zap.String("project_id", project.ID),
			zap.String("status", string(project.Status)),
			zap.String("domain_id", domainID),
		)
		return d, nil

	default:
		return nil, fmt.Errorf("%w: project %s has status %q", ErrUnknownProjectStatus, project.ID, project.Status)
	}
}
