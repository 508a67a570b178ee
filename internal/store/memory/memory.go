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

// Package memory is an in-process CRM store used by tests, the route CLI
// and single-node deployments that load their CRM snapshot from a YAML
// fixture. It implements every repository the resolvers consume.
package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/mailbox"
	"github.com/AImitSK/skamp-sub025/internal/matcher"
	"github.com/AImitSK/skamp-sub025/internal/models"
)

// Fixture is the YAML layout of a CRM snapshot.
type Fixture struct {
	Projects        []models.Project       `yaml:"projects"`
	DomainMailboxes []models.DomainMailbox `yaml:"domain_mailboxes"`
	Campaigns       []models.Campaign      `yaml:"campaigns"`
	Contacts        []models.Contact       `yaml:"contacts"`
	Companies       []models.Company       `yaml:"companies"`
}

// Store holds CRM entities in memory. Lists keep insertion order, which
// the matcher's tie-breaks depend on. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	projects  map[string]models.Project
	mailboxes map[string]models.DomainMailbox
	campaigns []models.Campaign
	contacts  []models.Contact
	companies []models.Company
}

// New creates an empty store.
func New() *Store {
	return &Store{
		projects:  make(map[string]models.Project),
		mailboxes: make(map[string]models.DomainMailbox),
	}
}

// Load reads a YAML fixture file into a new store.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML fixture into a new store.
func Parse(data []byte) (*Store, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	s := New()
	if err := s.Apply(f); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply adds every entity of f to the store.
func (s *Store) Apply(f Fixture) error {
	for _, p := range f.Projects {
		if p.ID == "" {
			return fmt.Errorf("fixture: project without id")
		}
		s.PutProject(p)
	}
	for _, m := range f.DomainMailboxes {
		if m.ID == "" {
			return fmt.Errorf("fixture: domain mailbox without id")
		}
		s.PutDomainMailbox(m)
	}
	for _, c := range f.Campaigns {
		s.PutCampaign(c)
	}
	for _, c := range f.Contacts {
		s.PutContact(c)
	}
	for _, c := range f.Companies {
		s.PutCompany(c)
	}
	return nil
}

// Snapshot returns the store content as a fixture.
func (s *Store) Snapshot() Fixture {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := Fixture{
		Campaigns: slices.Clone(s.campaigns),
		Contacts:  slices.Clone(s.contacts),
		Companies: slices.Clone(s.companies),
	}
	for _, p := range s.projects {
		f.Projects = append(f.Projects, p)
	}
	for _, m := range s.mailboxes {
		f.DomainMailboxes = append(f.DomainMailboxes, m)
	}
	slices.SortFunc(f.Projects, func(a, b models.Project) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(f.DomainMailboxes, func(a, b models.DomainMailbox) int { return strings.Compare(a.ID, b.ID) })
	return f
}

// PutProject inserts or replaces a project.
func (s *Store) PutProject(p models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

// PutDomainMailbox inserts or replaces a domain mailbox.
func (s *Store) PutDomainMailbox(m models.DomainMailbox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailboxes[m.ID] = m
}

// PutCampaign inserts or replaces a campaign, keeping its position.
func (s *Store) PutCampaign(c models.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns = upsert(s.campaigns, c, func(x models.Campaign) bool { return x.ID == c.ID })
}

// PutContact inserts or replaces a contact, keeping its position.
func (s *Store) PutContact(c models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = upsert(s.contacts, c, func(x models.Contact) bool { return x.ID == c.ID })
}

// PutCompany inserts or replaces a company, keeping its position.
func (s *Store) PutCompany(c models.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies = upsert(s.companies, c, func(x models.Company) bool { return x.ID == c.ID })
}

func upsert[T any](list []T, v T, same func(T) bool) []T {
	if i := slices.IndexFunc(list, same); i >= 0 {
		list[i] = v
		return list
	}
	return append(list, v)
}

// GetProject returns the project with id, or nil.
func (s *Store) GetProject(_ context.Context, id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetDomainMailbox returns the domain mailbox with id, or nil.
func (s *Store) GetDomainMailbox(_ context.Context, id string) (*models.DomainMailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mailboxes[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// FindCampaigns returns the organization's campaigns in any of statuses.
func (s *Store) FindCampaigns(_ context.Context, orgID string, statuses []models.CampaignStatus) ([]models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if c.OrganizationID == orgID && slices.Contains(statuses, c.Status) {
			out = append(out, c)
		}
	}
	return out, nil
}

// FindContactByEmail returns the organization's contact with email, or nil.
func (s *Store) FindContactByEmail(_ context.Context, orgID, email string) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contacts {
		if c.OrganizationID == orgID && strings.EqualFold(c.Email, email) {
			return &c, nil
		}
	}
	return nil, nil
}

// FindContactsByDomain returns the organization's contacts whose address
// is on domain.
func (s *Store) FindContactsByDomain(_ context.Context, orgID, domain string) ([]models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domain = strings.ToLower(domain)
	var out []models.Contact
	for _, c := range s.contacts {
		if c.OrganizationID == orgID && address.Domain(c.Email) == domain {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetCompany returns the organization's company with id, or nil.
func (s *Store) GetCompany(_ context.Context, orgID, id string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.OrganizationID == orgID && c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

// FindCompanyByWebsiteDomain returns the first company whose website host
// equals domain, or nil.
func (s *Store) FindCompanyByWebsiteDomain(_ context.Context, orgID, domain string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domain = strings.ToLower(domain)
	for _, c := range s.companies {
		if c.OrganizationID == orgID && c.Website != "" && address.WebsiteHost(c.Website) == domain {
			return &c, nil
		}
	}
	return nil, nil
}

// ListCompanies returns up to limit of the organization's companies.
func (s *Store) ListCompanies(_ context.Context, orgID string, limit int) ([]models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Company
	for _, c := range s.companies {
		if limit > 0 && len(out) >= limit {
			break
		}
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

var (
	_ mailbox.ProjectRepository       = (*Store)(nil)
	_ mailbox.DomainMailboxRepository = (*Store)(nil)
	_ matcher.CampaignRepository      = (*Store)(nil)
	_ matcher.ContactRepository       = (*Store)(nil)
	_ matcher.CompanyRepository       = (*Store)(nil)
)
