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

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/models"
)

// Similarity thresholds for the subject heuristic; a candidate must score
// strictly above them.
const (
	CampaignSimilarityThreshold = 0.7
	CompanySimilarityThreshold  = 0.8
)

// matchCampaignReplyTo matches campaigns whose title appears in the
// subject or whose reply-to address appears in the message reply-to.
func (m *Matcher) matchCampaignReplyTo(ctx context.Context, s *state) Result {
	replyTo := strings.ToLower(strings.TrimSpace(s.msg.ReplyToEmail))
	if replyTo == "" {
		return NoMatch()
	}
	campaigns, ok := s.loadCampaigns(ctx)
	if !ok {
		return NoMatch()
	}

	subject := normalize(s.msg.Subject)
	for _, c := range campaigns {
		title := normalize(c.Title)
		campaignReplyTo := strings.ToLower(strings.TrimSpace(c.ReplyToEmail))

		titleHit := title != "" && strings.Contains(subject, title)
		replyHit := campaignReplyTo != "" && strings.Contains(replyTo, campaignReplyTo)
		if !titleHit && !replyHit {
			continue
		}

		return Result{
			CustomerID:   c.CustomerID,
			CustomerName: m.customerName(ctx, s, c.CustomerID),
			CampaignID:   c.ID,
			CampaignName: c.Title,
			FolderType:   FolderCampaign,
			Confidence:   ConfidenceCampaignReplyTo,
			MatchedBy:    ByCampaign,
		}
	}
	return NoMatch()
}

// matchContactEmail looks the sender up among known contacts.
func (m *Matcher) matchContactEmail(ctx context.Context, s *state) Result {
	if m.repos.Contacts == nil {
		return NoMatch()
	}
	email := strings.ToLower(strings.TrimSpace(s.msg.FromEmail))
	if email == "" {
		return NoMatch()
	}

	contact, err := m.repos.Contacts.FindContactByEmail(ctx, s.orgID, email)
	if err != nil {
		s.warn(fmt.Errorf("find contact %s: %w", email, err))
		return NoMatch()
	}
	if contact == nil {
		return NoMatch()
	}

	if contact.CompanyID != "" {
		name := contact.CompanyName
		if name == "" {
			name = m.customerName(ctx, s, contact.CompanyID)
		}
		return Result{
			CustomerID:   contact.CompanyID,
			CustomerName: name,
			FolderType:   FolderCustomer,
			Confidence:   ConfidenceContactCompany,
			MatchedBy:    ByEmail,
		}
	}

	name := contact.DisplayName
	if name == "" {
		name = contact.Email
	}
	return Result{
		CustomerID:   contact.ID,
		CustomerName: name,
		FolderType:   FolderCustomer,
		Confidence:   ConfidenceContact,
		MatchedBy:    ByEmail,
	}
}

// matchDomain matches the sender domain against company websites, then
// falls back to a plurality vote over contacts sharing the domain.
// Public mail providers carry no organizational signal and are skipped.
func (m *Matcher) matchDomain(ctx context.Context, s *state) Result {
	domain := address.Domain(s.msg.FromEmail)
	if domain == "" || IsGenericProvider(domain) {
		return NoMatch()
	}

	if m.repos.Companies != nil {
		company, err := m.repos.Companies.FindCompanyByWebsiteDomain(ctx, s.orgID, domain)
		switch {
		case err != nil:
			s.warn(fmt.Errorf("find company by website %s: %w", domain, err))
		case company != nil:
			return Result{
				CustomerID:   company.ID,
				CustomerName: company.Name,
				FolderType:   FolderCustomer,
				Confidence:   ConfidenceWebsite,
				MatchedBy:    ByDomain,
			}
		}
	}

	if m.repos.Contacts == nil {
		return NoMatch()
	}
	contacts, err := m.repos.Contacts.FindContactsByDomain(ctx, s.orgID, domain)
	if err != nil {
		s.warn(fmt.Errorf("find contacts by domain %s: %w", domain, err))
		return NoMatch()
	}

	winner, ok := plurality(contacts)
	if !ok {
		return NoMatch()
	}
	return Result{
		CustomerID:   winner.CompanyID,
		CustomerName: winner.CompanyName,
		FolderType:   FolderCustomer,
		Confidence:   ConfidenceDomainVote,
		MatchedBy:    ByDomain,
	}
}

// plurality returns a contact of the company most contacts belong to.
// Contacts without a company do not vote. On a tie the company seen
// first wins, which makes the outcome depend on repository order.
func plurality(contacts []models.Contact) (models.Contact, bool) {
	counts := make(map[string]int)
	var order []models.Contact
	for _, c := range contacts {
		if c.CompanyID == "" {
			continue
		}
		if counts[c.CompanyID] == 0 {
			order = append(order, c)
		}
		counts[c.CompanyID]++
	}

	var (
		best      models.Contact
		bestCount int
	)
	for _, c := range order {
		if n := counts[c.CompanyID]; n > bestCount {
			best, bestCount = c, n
		}
	}
	return best, bestCount > 0
}

// matchSubject compares the subject with campaign titles, then company names.
func (m *Matcher) matchSubject(ctx context.Context, s *state) Result {
	subject := normalize(s.msg.Subject)
	if subject == "" {
		return NoMatch()
	}

	if campaigns, ok := s.loadCampaigns(ctx); ok {
		for _, c := range campaigns {
			if !subjectMatches(subject, c.Title, CampaignSimilarityThreshold) {
				continue
			}
			return Result{
				CustomerID:   c.CustomerID,
				CustomerName: m.customerName(ctx, s, c.CustomerID),
				CampaignID:   c.ID,
				CampaignName: c.Title,
				FolderType:   FolderCampaign,
				Confidence:   ConfidenceSubjectCampaign,
				MatchedBy:    BySubject,
			}
		}
	}

	if m.repos.Companies == nil {
		return NoMatch()
	}
	companies, err := m.repos.Companies.ListCompanies(ctx, s.orgID, m.companyScanLimit)
	if err != nil {
		s.warn(fmt.Errorf("list companies: %w", err))
		return NoMatch()
	}
	for _, c := range companies {
		if !subjectMatches(subject, c.Name, CompanySimilarityThreshold) {
			continue
		}
		return Result{
			CustomerID:   c.ID,
			CustomerName: c.Name,
			FolderType:   FolderCustomer,
			Confidence:   ConfidenceSubjectCompany,
			MatchedBy:    BySubject,
		}
	}
	return NoMatch()
}

// subjectMatches reports whether candidate occurs in the normalized
// subject or is similar enough to it as a whole.
func subjectMatches(subject, candidate string, threshold float64) bool {
	candidate = normalize(candidate)
	if candidate == "" {
		return false
	}
	return strings.Contains(subject, candidate) || similarity(subject, candidate) > threshold
}

// customerName resolves a company name, falling back to UnknownCustomer.
func (m *Matcher) customerName(ctx context.Context, s *state, customerID string) string {
	if customerID == "" || m.repos.Companies == nil {
		return UnknownCustomer
	}
	company, err := m.repos.Companies.GetCompany(ctx, s.orgID, customerID)
	if err != nil {
		s.warn(fmt.Errorf("get company %s: %w", customerID, err))
		return UnknownCustomer
	}
	if company == nil || company.Name == "" {
		return UnknownCustomer
	}
	return company.Name
}
