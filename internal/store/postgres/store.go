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

// Package postgres provides a Postgres-backed CRM store implementing the
// repositories the mailbox resolver and the matcher consume.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/mailbox"
	"github.com/AImitSK/skamp-sub025/internal/matcher"
	"github.com/AImitSK/skamp-sub025/internal/models"
	"github.com/AImitSK/skamp-sub025/internal/store/memory"
)

// Store reads CRM entities from Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewStore creates a store backed by pool. It ensures the CRM tables
// exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure crm schema: %w", err)
	}
	logger.Info("crm store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id              TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			status          TEXT NOT NULL,
			domain_id       TEXT NOT NULL DEFAULT '',
			title           TEXT NOT NULL DEFAULT '',
			completed_at    TIMESTAMPTZ,
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS domain_mailboxes (
			id              TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			domain          TEXT NOT NULL DEFAULT '',
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS campaigns (
			seq             BIGSERIAL,
			id              TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			title           TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			customer_id     TEXT NOT NULL DEFAULT '',
			reply_to_email  TEXT NOT NULL DEFAULT '',
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS contacts (
			seq             BIGSERIAL,
			id              TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			email           TEXT NOT NULL,
			email_domain    TEXT NOT NULL DEFAULT '',
			display_name    TEXT NOT NULL DEFAULT '',
			company_id      TEXT NOT NULL DEFAULT '',
			company_name    TEXT NOT NULL DEFAULT '',
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS companies (
			seq             BIGSERIAL,
			id              TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name            TEXT NOT NULL DEFAULT '',
			website         TEXT NOT NULL DEFAULT '',
			website_host    TEXT NOT NULL DEFAULT '',
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_campaigns_org_status ON campaigns(organization_id, status);
		CREATE INDEX IF NOT EXISTS idx_contacts_org_email ON contacts(organization_id, lower(email));
		CREATE INDEX IF NOT EXISTS idx_contacts_org_domain ON contacts(organization_id, email_domain);
		CREATE INDEX IF NOT EXISTS idx_companies_org_host ON companies(organization_id, website_host);
	`)
	return err
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// GetProject returns the project with id, or nil if none exists.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, status, domain_id, title, completed_at
		FROM projects
		WHERE id = $1
	`, id)

	var p models.Project
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Status, &p.DomainID, &p.Title, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetDomainMailbox returns the domain mailbox with id, or nil if none exists.
func (s *Store) GetDomainMailbox(ctx context.Context, id string) (*models.DomainMailbox, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, domain
		FROM domain_mailboxes
		WHERE id = $1
	`, id)

	var m models.DomainMailbox
	err := row.Scan(&m.ID, &m.OrganizationID, &m.Domain)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindCampaigns returns the organization's campaigns in any of statuses,
// oldest first.
func (s *Store) FindCampaigns(ctx context.Context, orgID string, statuses []models.CampaignStatus) ([]models.Campaign, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, title, status, customer_id, reply_to_email
		FROM campaigns
		WHERE organization_id = $1 AND status = ANY($2)
		ORDER BY seq
	`, orgID, names)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Campaign, error) {
		var c models.Campaign
		err := row.Scan(&c.ID, &c.OrganizationID, &c.Title, &c.Status, &c.CustomerID, &c.ReplyToEmail)
		return c, err
	})
}

const contactColumns = `id, organization_id, email, display_name, company_id, company_name`

func scanContact(row pgx.Row) (models.Contact, error) {
	var c models.Contact
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Email, &c.DisplayName, &c.CompanyID, &c.CompanyName)
	return c, err
}

// FindContactByEmail returns the organization's contact with email
// (case-insensitive), or nil.
func (s *Store) FindContactByEmail(ctx context.Context, orgID, email string) (*models.Contact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE organization_id = $1 AND lower(email) = lower($2)
		ORDER BY seq
		LIMIT 1
	`, orgID, email)

	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindContactsByDomain returns the organization's contacts on domain,
// oldest first.
func (s *Store) FindContactsByDomain(ctx context.Context, orgID, domain string) ([]models.Contact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE organization_id = $1 AND email_domain = lower($2)
		ORDER BY seq
	`, orgID, domain)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Contact, error) {
		return scanContact(row)
	})
}

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Website)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCompany returns the organization's company with id, or nil.
func (s *Store) GetCompany(ctx context.Context, orgID, id string) (*models.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, website
		FROM companies
		WHERE organization_id = $1 AND id = $2
	`, orgID, id))
}

// FindCompanyByWebsiteDomain returns the oldest company whose website
// host equals domain, or nil.
func (s *Store) FindCompanyByWebsiteDomain(ctx context.Context, orgID, domain string) (*models.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, website
		FROM companies
		WHERE organization_id = $1 AND website_host <> '' AND website_host = lower($2)
		ORDER BY seq
		LIMIT 1
	`, orgID, domain))
}

// ListCompanies returns up to limit of the organization's companies, oldest first.
func (s *Store) ListCompanies(ctx context.Context, orgID string, limit int) ([]models.Company, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, name, website
		FROM companies
		WHERE organization_id = $1
		ORDER BY seq
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Company, error) {
		var c models.Company
		err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Website)
		return c, err
	})
}

// Import upserts every entity of a CRM snapshot in one transaction.
func (s *Store) Import(ctx context.Context, f memory.Fixture) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, p := range f.Projects {
		batch.Queue(`
			INSERT INTO projects (id, organization_id, status, domain_id, title, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				organization_id = EXCLUDED.organization_id,
				status          = EXCLUDED.status,
				domain_id       = EXCLUDED.domain_id,
				title           = EXCLUDED.title,
				completed_at    = EXCLUDED.completed_at,
				updated_at      = NOW()
		`, p.ID, p.OrganizationID, string(p.Status), p.DomainID, p.Title, p.CompletedAt)
	}
	for _, m := range f.DomainMailboxes {
		batch.Queue(`
			INSERT INTO domain_mailboxes (id, organization_id, domain)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				organization_id = EXCLUDED.organization_id,
				domain          = EXCLUDED.domain,
				updated_at      = NOW()
		`, m.ID, m.OrganizationID, m.Domain)
	}
	for _, c := range f.Campaigns {
		batch.Queue(`
			INSERT INTO campaigns (id, organization_id, title, status, customer_id, reply_to_email)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				organization_id = EXCLUDED.organization_id,
				title           = EXCLUDED.title,
				status          = EXCLUDED.status,
				customer_id     = EXCLUDED.customer_id,
				reply_to_email  = EXCLUDED.reply_to_email,
				updated_at      = NOW()
		`, c.ID, c.OrganizationID, c.Title, string(c.Status), c.CustomerID, c.ReplyToEmail)
	}
	for _, c := range f.Contacts {
		batch.Queue(`
			INSERT INTO contacts (id, organization_id, email, email_domain, display_name, company_id, company_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				organization_id = EXCLUDED.organization_id,
				email           = EXCLUDED.email,
				email_domain    = EXCLUDED.email_domain,
				display_name    = EXCLUDED.display_name,
				company_id      = EXCLUDED.company_id,
				company_name    = EXCLUDED.company_name,
				updated_at      = NOW()
		`, c.ID, c.OrganizationID, c.Email, address.Domain(c.Email), c.DisplayName, c.CompanyID, c.CompanyName)
	}
	for _, c := range f.Companies {
		batch.Queue(`
			INSERT INTO companies (id, organization_id, name, website, website_host)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				organization_id = EXCLUDED.organization_id,
				name            = EXCLUDED.name,
				website         = EXCLUDED.website,
				website_host    = EXCLUDED.website_host,
				updated_at      = NOW()
		`, c.ID, c.OrganizationID, c.Name, c.Website, address.WebsiteHost(c.Website))
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("import crm snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	s.logger.Info("crm snapshot imported",
		zap.Int("projects", len(f.Projects)),
		zap.Int("domain_mailboxes", len(f.DomainMailboxes)),
		zap.Int("campaigns", len(f.Campaigns)),
		zap.Int("contacts", len(f.Contacts)),
		zap.Int("companies", len(f.Companies)),
	)
	return nil
}

var (
	_ mailbox.ProjectRepository       = (*Store)(nil)
	_ mailbox.DomainMailboxRepository = (*Store)(nil)
	_ matcher.CampaignRepository      = (*Store)(nil)
	_ matcher.ContactRepository       = (*Store)(nil)
	_ matcher.CompanyRepository       = (*Store)(nil)
)
