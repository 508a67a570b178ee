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
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/models"
)

// fakeRepo implements all three repositories over in-memory slices.
type fakeRepo struct {
	campaigns []models.Campaign
	contacts  []models.Contact
	companies []models.Company

	err       error
	panicWith any

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeRepo) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.err
}

func (f *fakeRepo) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRepo) FindCampaigns(_ context.Context, _ string, statuses []models.CampaignStatus) ([]models.Campaign, error) {
	if err := f.record("FindCampaigns"); err != nil {
		return nil, err
	}
	var out []models.Campaign
	for _, c := range f.campaigns {
		if slices.Contains(statuses, c.Status) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindContactByEmail(_ context.Context, _ string, email string) (*models.Contact, error) {
	if err := f.record("FindContactByEmail"); err != nil {
		return nil, err
	}
	for _, c := range f.contacts {
		if strings.EqualFold(c.Email, email) {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindContactsByDomain(_ context.Context, _ string, domain string) ([]models.Contact, error) {
	if err := f.record("FindContactsByDomain"); err != nil {
		return nil, err
	}
	var out []models.Contact
	for _, c := range f.contacts {
		if address.Domain(c.Email) == domain {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetCompany(_ context.Context, _ string, id string) (*models.Company, error) {
	if err := f.record("GetCompany"); err != nil {
		return nil, err
	}
	for _, c := range f.companies {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindCompanyByWebsiteDomain(_ context.Context, _ string, domain string) (*models.Company, error) {
	if err := f.record("FindCompanyByWebsiteDomain"); err != nil {
		return nil, err
	}
	for _, c := range f.companies {
		host := strings.TrimPrefix(strings.TrimPrefix(c.Website, "https://"), "www.")
		if host != "" && host == domain {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListCompanies(_ context.Context, _ string, limit int) ([]models.Company, error) {
	if err := f.record("ListCompanies"); err != nil {
		return nil, err
	}
	if len(f.companies) > limit {
		return f.companies[:limit], nil
	}
	return f.companies, nil
}

func newMatcher(repo *fakeRepo, opts ...Option) *Matcher {
	return New(Repositories{Campaigns: repo, Contacts: repo, Companies: repo}, opts...)
}

var ctx = context.Background()

// TestMatch_ContactEmailWithCompany covers the known-contact scenario.
func TestMatch_ContactEmailWithCompany(t *testing.T) {
	repo := &fakeRepo{
		contacts: []models.Contact{{
			ID: "c1", Email: "max@acme.com", DisplayName: "Max",
			CompanyID: "acme-id", CompanyName: "Acme",
		}},
	}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "max@acme.com", Subject: "Re: Product Launch"})

	assert.Equal(t, Result{
		CustomerID:   "acme-id",
		CustomerName: "Acme",
		FolderType:   FolderCustomer,
		Confidence:   95,
		MatchedBy:    ByEmail,
	}, out.Result)
	assert.Empty(t, out.Warnings)
}

// TestMatch_ContactEmailCaseNormalized verifies the lookup lowercases the sender.
func TestMatch_ContactEmailCaseNormalized(t *testing.T) {
	repo := &fakeRepo{contacts: []models.Contact{{ID: "c1", Email: "max@acme.com", CompanyID: "acme-id", CompanyName: "Acme"}}}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "  Max@ACME.com "})
	assert.Equal(t, ByEmail, out.Result.MatchedBy)
}

// TestMatch_ContactWithoutCompany verifies the lower contact-only score.
func TestMatch_ContactWithoutCompany(t *testing.T) {
	repo := &fakeRepo{contacts: []models.Contact{{ID: "c9", Email: "eva@freelance.io", DisplayName: "Eva Schmidt"}}}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "eva@freelance.io"})

	assert.Equal(t, Result{
		CustomerID:   "c9",
		CustomerName: "Eva Schmidt",
		FolderType:   FolderCustomer,
		Confidence:   85,
		MatchedBy:    ByEmail,
	}, out.Result)
}

// TestMatch_NoMatch covers an unknown generic-provider sender.
func TestMatch_NoMatch(t *testing.T) {
	out := newMatcher(&fakeRepo{}).Match(ctx, "org", Message{FromEmail: "random@yahoo.com", Subject: "hello"})

	assert.Equal(t, NoMatch(), out.Result)
	assert.Equal(t, FolderGeneral, out.Result.FolderType)
	assert.Zero(t, out.Result.Confidence)
	assert.Equal(t, ByNone, out.Result.MatchedBy)
	assert.Empty(t, out.Result.CustomerID)
	assert.Empty(t, out.Result.CampaignID)
}

// TestMatch_CampaignReplyToWins verifies a reply-to hit beats every other
// heuristic and stops the pipeline.
func TestMatch_CampaignReplyToWins(t *testing.T) {
	repo := &fakeRepo{
		campaigns: []models.Campaign{{
			ID: "camp-1", Title: "Product Launch", Status: models.CampaignSent,
			CustomerID: "acme-id", ReplyToEmail: "launch@inbox.example-service.tld",
		}},
		contacts:  []models.Contact{{ID: "c1", Email: "max@acme.com", CompanyID: "acme-id", CompanyName: "Acme"}},
		companies: []models.Company{{ID: "acme-id", Name: "Acme Corp", Website: "acme.com"}},
	}

	out := newMatcher(repo).Match(ctx, "org", Message{
		FromEmail:    "max@acme.com",
		Subject:      "Re: something else",
		ReplyToEmail: "launch@inbox.example-service.tld",
	})

	assert.Equal(t, Result{
		CustomerID:   "acme-id",
		CustomerName: "Acme Corp",
		CampaignID:   "camp-1",
		CampaignName: "Product Launch",
		FolderType:   FolderCampaign,
		Confidence:   100,
		MatchedBy:    ByCampaign,
	}, out.Result)
	assert.Zero(t, repo.called("FindContactByEmail"), "pipeline should stop at confidence 100")
	assert.Zero(t, repo.called("FindContactsByDomain"))
}

// TestMatch_CampaignReplyToByTitle verifies the subject-title branch of the
// reply-to heuristic and the unknown-customer fallback.
func TestMatch_CampaignReplyToByTitle(t *testing.T) {
	repo := &fakeRepo{
		campaigns: []models.Campaign{
			{ID: "draft", Title: "Product Launch", Status: models.CampaignDraft},
			{ID: "camp-2", Title: "Product Launch", Status: models.CampaignActive, CustomerID: "gone"},
		},
	}

	out := newMatcher(repo).Match(ctx, "org", Message{
		FromEmail:    "someone@elsewhere.org",
		Subject:      "AW: PRODUCT LAUNCH Rückfrage",
		ReplyToEmail: "someone@elsewhere.org",
	})

	assert.Equal(t, "camp-2", out.Result.CampaignID)
	assert.Equal(t, UnknownCustomer, out.Result.CustomerName)
	assert.Equal(t, 100, out.Result.Confidence)
}

// TestMatch_CampaignCustomerLookupFails verifies the fallback name and the warning.
func TestMatch_CampaignCustomerLookupFails(t *testing.T) {
	repo := &campaignOnlyCompanyErr{fakeRepo: fakeRepo{
		campaigns: []models.Campaign{{ID: "camp-1", Title: "Launch", Status: models.CampaignSent, CustomerID: "acme-id"}},
	}}

	m := New(Repositories{Campaigns: repo, Contacts: repo, Companies: repo})
	out := m.Match(ctx, "org", Message{Subject: "Launch", ReplyToEmail: "x@y.de"})

	assert.Equal(t, ByCampaign, out.Result.MatchedBy)
	assert.Equal(t, UnknownCustomer, out.Result.CustomerName)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, "campaign_reply_to", out.Warnings[0].Heuristic)
}

type campaignOnlyCompanyErr struct {
	fakeRepo
}

func (c *campaignOnlyCompanyErr) GetCompany(context.Context, string, string) (*models.Company, error) {
	return nil, errors.New("timeout")
}

// TestMatch_ReplyToRequired verifies the campaign heuristic only runs with
// a reply-to; the subject heuristic then scores the title lower.
func TestMatch_ReplyToRequired(t *testing.T) {
	repo := &fakeRepo{
		campaigns: []models.Campaign{{ID: "camp-1", Title: "Product Launch", Status: models.CampaignActive, CustomerID: "acme-id"}},
		companies: []models.Company{{ID: "acme-id", Name: "Acme"}},
	}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "a@b.org", Subject: "Re: Product Launch"})

	assert.Equal(t, Result{
		CustomerID:   "acme-id",
		CustomerName: "Acme",
		CampaignID:   "camp-1",
		CampaignName: "Product Launch",
		FolderType:   FolderCampaign,
		Confidence:   70,
		MatchedBy:    BySubject,
	}, out.Result)
}

// TestMatch_DomainWebsite verifies the direct company-website match.
func TestMatch_DomainWebsite(t *testing.T) {
	repo := &fakeRepo{companies: []models.Company{{ID: "acme-id", Name: "Acme", Website: "https://www.acme.com"}}}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "new.person@acme.com"})

	assert.Equal(t, Result{
		CustomerID:   "acme-id",
		CustomerName: "Acme",
		FolderType:   FolderCustomer,
		Confidence:   80,
		MatchedBy:    ByDomain,
	}, out.Result)
}

// TestMatch_DomainPlurality verifies the contact vote.
func TestMatch_DomainPlurality(t *testing.T) {
	repo := &fakeRepo{contacts: []models.Contact{
		{ID: "1", Email: "a@agency.de", CompanyID: "x", CompanyName: "X GmbH"},
		{ID: "2", Email: "b@agency.de", CompanyID: "y", CompanyName: "Y AG"},
		{ID: "3", Email: "c@agency.de", CompanyID: "y", CompanyName: "Y AG"},
		{ID: "4", Email: "d@agency.de"},
		{ID: "5", Email: "e@other.de", CompanyID: "x", CompanyName: "X GmbH"},
	}}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "new@agency.de"})

	assert.Equal(t, Result{
		CustomerID:   "y",
		CustomerName: "Y AG",
		FolderType:   FolderCustomer,
		Confidence:   75,
		MatchedBy:    ByDomain,
	}, out.Result)
}

// TestMatch_DomainPluralityTie verifies the first company seen wins a tie.
func TestMatch_DomainPluralityTie(t *testing.T) {
	repo := &fakeRepo{contacts: []models.Contact{
		{ID: "1", Email: "a@agency.de", CompanyID: "y", CompanyName: "Y AG"},
		{ID: "2", Email: "b@agency.de", CompanyID: "x", CompanyName: "X GmbH"},
	}}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "new@agency.de"})
	assert.Equal(t, "y", out.Result.CustomerID)
}

// TestMatch_GenericProviderNeverDomain verifies public providers never
// produce a domain result.
func TestMatch_GenericProviderNeverDomain(t *testing.T) {
	for _, domain := range []string{"gmail.com", "googlemail.com", "GMX.de", "gmx.net", "web.de", "t-online.de", "icloud.com", "outlook.com"} {
		t.Run(domain, func(t *testing.T) {
			repo := &fakeRepo{
				contacts: []models.Contact{
					{ID: "1", Email: "a@" + strings.ToLower(domain), CompanyID: "x", CompanyName: "X"},
					{ID: "2", Email: "b@" + strings.ToLower(domain), CompanyID: "x", CompanyName: "X"},
				},
				companies: []models.Company{{ID: "g", Name: "Google", Website: strings.ToLower(domain)}},
			}

			out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "stranger@" + domain})

			assert.NotEqual(t, ByDomain, out.Result.MatchedBy)
			assert.Zero(t, repo.called("FindCompanyByWebsiteDomain"))
			assert.Zero(t, repo.called("FindContactsByDomain"))
		})
	}
}

// TestMatch_SubjectSimilarity verifies fuzzy campaign title matching.
func TestMatch_SubjectSimilarity(t *testing.T) {
	repo := &fakeRepo{campaigns: []models.Campaign{{ID: "camp-1", Title: "Product Launch 2025", Status: models.CampaignSent}}}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "x@y.org", Subject: "Produkt Launch 2025"})

	assert.Equal(t, BySubject, out.Result.MatchedBy)
	assert.Equal(t, "camp-1", out.Result.CampaignID)
	assert.Equal(t, UnknownCustomer, out.Result.CustomerName)
}

// TestMatch_SubjectCompany verifies company-name matching by substring and similarity.
func TestMatch_SubjectCompany(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"substring", "Anfrage an Acme wegen Interview", "acme-id"},
		{"similar", "Nordlicht Medien GmbH.", "nord-id"},
		{"too different", "Nordlicht", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{companies: []models.Company{
				{ID: "acme-id", Name: "Acme"},
				{ID: "nord-id", Name: "Nordlicht Medien GmbH!"},
			}}

			out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "x@y.org", Subject: tt.subject})

			assert.Equal(t, tt.want, out.Result.CustomerID)
			if tt.want != "" {
				assert.Equal(t, 60, out.Result.Confidence)
				assert.Equal(t, FolderCustomer, out.Result.FolderType)
			}
		})
	}
}

// TestMatch_EmptyTitlesNeverMatch guards against the empty-substring trap.
func TestMatch_EmptyTitlesNeverMatch(t *testing.T) {
	repo := &fakeRepo{
		campaigns: []models.Campaign{{ID: "camp-1", Title: "  ", Status: models.CampaignActive}},
		companies: []models.Company{{ID: "co", Name: ""}},
	}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "x@y.org", Subject: "anything", ReplyToEmail: "x@y.org"})
	assert.Equal(t, NoMatch(), out.Result)
}

// TestMatch_HigherConfidenceWins verifies a later, stronger heuristic is
// not overridden by a weaker one.
func TestMatch_HigherConfidenceWins(t *testing.T) {
	repo := &fakeRepo{
		contacts:  []models.Contact{{ID: "c1", Email: "max@acme.com", CompanyID: "acme-id", CompanyName: "Acme"}},
		companies: []models.Company{{ID: "other", Name: "Launch"}},
		campaigns: []models.Campaign{{ID: "camp-1", Title: "Launch", Status: models.CampaignActive}},
	}

	out := newMatcher(repo).Match(ctx, "org", Message{FromEmail: "max@acme.com", Subject: "Launch"})
	assert.Equal(t, ByEmail, out.Result.MatchedBy)
	assert.Equal(t, 95, out.Result.Confidence)
}

// TestMatch_AllRepositoriesFail verifies Match never fails and reports
// every failed lookup.
func TestMatch_AllRepositoriesFail(t *testing.T) {
	repo := &fakeRepo{err: errors.New("firestore unavailable")}

	out := newMatcher(repo).Match(ctx, "org", Message{
		FromEmail:    "max@acme.com",
		Subject:      "Launch",
		ReplyToEmail: "max@acme.com",
	})

	assert.Equal(t, NoMatch(), out.Result)
	require.NotEmpty(t, out.Warnings)

	var heuristics []string
	for _, w := range out.Warnings {
		heuristics = append(heuristics, w.Heuristic)
		assert.ErrorIs(t, w, repo.err)
	}
	assert.Contains(t, heuristics, "campaign_reply_to")
	assert.Contains(t, heuristics, "contact_email")
	assert.Contains(t, heuristics, "domain")
	assert.Contains(t, heuristics, "subject")
}

// TestMatch_RepositoryPanic verifies a panicking repository is contained.
func TestMatch_RepositoryPanic(t *testing.T) {
	repo := &fakeRepo{panicWith: "nil map"}

	var out Outcome
	require.NotPanics(t, func() {
		out = newMatcher(repo).Match(ctx, "org", Message{FromEmail: "max@acme.com", Subject: "x"})
	})
	assert.Equal(t, NoMatch(), out.Result)
	assert.NotEmpty(t, out.Warnings)
}

// TestMatch_NilRepositories verifies missing repositories disable heuristics.
func TestMatch_NilRepositories(t *testing.T) {
	out := New(Repositories{}).Match(ctx, "org", Message{FromEmail: "max@acme.com", Subject: "x", ReplyToEmail: "y@z.de"})
	assert.Equal(t, NoMatch(), out.Result)
	assert.Empty(t, out.Warnings)
}

func TestMatch_FailedLookupsAreNotCached(t *testing.T) {
	repo := &fakeRepo{
		contacts: []models.Contact{{ID: "c1", Email: "max@acme.com", CompanyID: "acme-id", CompanyName: "Acme"}},
		err:      errors.New("db down"),
	}
	cache := &mapCache{m: make(map[string]Result)}
	m := newMatcher(repo, WithCache(cache))
	msg := Message{FromEmail: "max@acme.com", Subject: "Hi", ReceivedAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}

	degraded := m.Match(ctx, "org", msg)
	assert.Equal(t, NoMatch(), degraded.Result)
	assert.NotEmpty(t, degraded.Warnings)
	assert.Empty(t, cache.m)

	repo.err = nil
	recovered := m.Match(ctx, "org", msg)
	assert.False(t, recovered.Cached)
	assert.Equal(t, "acme-id", recovered.Result.CustomerID)
	assert.Equal(t, ConfidenceContactCompany, recovered.Result.Confidence)

	cached := m.Match(ctx, "org", msg)
	assert.True(t, cached.Cached)
	assert.Equal(t, recovered.Result, cached.Result)
}

type ctxAwareRepo struct {
	fakeRepo
}

func (c *ctxAwareRepo) FindContactByEmail(ctx context.Context, orgID, email string) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.fakeRepo.FindContactByEmail(ctx, orgID, email)
}

func TestMatch_RunIgnoresCallerCancellation(t *testing.T) {
	repo := &ctxAwareRepo{fakeRepo: fakeRepo{
		contacts: []models.Contact{{ID: "c1", Email: "max@acme.com", CompanyID: "acme-id", CompanyName: "Acme"}},
	}}
	m := New(Repositories{Campaigns: repo, Contacts: repo, Companies: repo}, WithTimeout(time.Second))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	out := m.Match(cancelled, "org", Message{FromEmail: "max@acme.com", Subject: "Hi"})
	assert.Empty(t, out.Warnings)
	assert.Equal(t, ByEmail, out.Result.MatchedBy)
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]Result
}

func (c *mapCache) Get(_ context.Context, key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[key]
	return r, ok
}

func (c *mapCache) Set(_ context.Context, key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = r
}

// TestMatch_Cache verifies repeated messages are served from the cache.
func TestMatch_Cache(t *testing.T) {
	repo := &fakeRepo{contacts: []models.Contact{{ID: "c1", Email: "max@acme.com", CompanyID: "acme-id", CompanyName: "Acme"}}}
	cache := &mapCache{m: make(map[string]Result)}
	m := newMatcher(repo, WithCache(cache))
	msg := Message{FromEmail: "max@acme.com", Subject: "Hi", ReceivedAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}

	first := m.Match(ctx, "org", msg)
	second := m.Match(ctx, "org", msg)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, 1, repo.called("FindContactByEmail"))

	m.Match(ctx, "other-org", msg)
	assert.Equal(t, 2, repo.called("FindContactByEmail"), "cache is scoped per organization")
}

// TestMatch_Concurrent exercises the matcher from many goroutines.
func TestMatch_Concurrent(t *testing.T) {
	repo := &fakeRepo{contacts: []models.Contact{{ID: "c1", Email: "max@acme.com", CompanyID: "acme-id", CompanyName: "Acme"}}}
	m := newMatcher(repo, WithCache(&mapCache{m: make(map[string]Result)}))
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := m.Match(ctx, "org", Message{FromEmail: "max@acme.com", Subject: "Hi", ReceivedAt: at})
			assert.Equal(t, ByEmail, out.Result.MatchedBy)
		}()
	}
	wg.Wait()
}

func TestCacheKey(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	dated := CacheKey("org", Message{FromEmail: "Max@Acme.com", Subject: "Hi", ReceivedAt: at}, now)
	assert.Equal(t, CacheKey("org", Message{FromEmail: "max@acme.com", Subject: "Hi", ReceivedAt: at.UTC()}, now.Add(time.Hour)), dated)

	undated := CacheKey("org", Message{FromEmail: "max@acme.com", Subject: "Hi"}, now)
	assert.NotEqual(t, undated, CacheKey("org", Message{FromEmail: "max@acme.com", Subject: "Hi"}, now.Add(time.Second)))
}
