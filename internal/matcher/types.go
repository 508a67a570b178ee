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

// Package matcher associates an inbound message with a customer and/or
// campaign when the message carries no explicit routing address.
//
// Heuristics run in a fixed order and each produces a confidence score;
// the highest score wins and ties keep the earlier heuristic:
//
//	campaign reply-to (100) > contact email (95/85) > sender domain (80/75) > subject (70/60)
//
// Repository failures never abort a match. They are reported as
// HeuristicWarnings and the failing lookup counts as "found nothing".
package matcher

import (
	"context"
	"time"

	"github.com/AImitSK/skamp-sub025/internal/models"
)

// FolderType classifies where a matched message is filed.
type FolderType string

const (
	FolderCustomer FolderType = "customer"
	FolderCampaign FolderType = "campaign"
	FolderGeneral  FolderType = "general"
)

// MatchedBy names the heuristic that produced a result.
type MatchedBy string

const (
	ByCampaign MatchedBy = "campaign"
	ByEmail    MatchedBy = "email"
	ByDomain   MatchedBy = "domain"
	BySubject  MatchedBy = "subject"
	ByNone     MatchedBy = "none"
)

// Confidence scores per heuristic outcome.
const (
	ConfidenceCampaignReplyTo = 100
	ConfidenceContactCompany  = 95
	ConfidenceContact         = 85
	ConfidenceWebsite         = 80
	ConfidenceDomainVote      = 75
	ConfidenceSubjectCampaign = 70
	ConfidenceSubjectCompany  = 60

	MaxConfidence = 100
)

// UnknownCustomer is the customer name used when a campaign's customer
// cannot be resolved.
const UnknownCustomer = "Unbekannter Kunde"

// Message holds the fields of an inbound email the heuristics look at.
type Message struct {
	FromEmail    string
	Subject      string
	ReplyToEmail string
	ReceivedAt   time.Time
}

// Result is the best association found for a message.
type Result struct {
	CustomerID   string     `json:"customer_id,omitempty"`
	CustomerName string     `json:"customer_name,omitempty"`
	CampaignID   string     `json:"campaign_id,omitempty"`
	CampaignName string     `json:"campaign_name,omitempty"`
	FolderType   FolderType `json:"folder_type"`
	Confidence   int        `json:"confidence"`
	MatchedBy    MatchedBy  `json:"matched_by"`
}

// NoMatch is the zero-confidence result.
func NoMatch() Result {
	return Result{FolderType: FolderGeneral, MatchedBy: ByNone}
}

// Matched reports whether any heuristic produced a positive score.
func (r Result) Matched() bool {
	return r.Confidence > 0
}

// HeuristicWarning records a lookup that failed inside a heuristic.
type HeuristicWarning struct {
	Heuristic string `json:"heuristic"`
	Message   string `json:"error"`
	Err       error  `json:"-"`
}

func (w HeuristicWarning) Error() string {
	return w.Heuristic + ": " + w.Message
}

func (w HeuristicWarning) Unwrap() error {
	return w.Err
}

// Outcome is the result of a match plus the warnings raised on the way.
type Outcome struct {
	Result   Result             `json:"result"`
	Warnings []HeuristicWarning `json:"warnings,omitempty"`
	Cached   bool               `json:"cached,omitempty"`
}

// CampaignRepository lists an organization's campaigns.
type CampaignRepository interface {
	FindCampaigns(ctx context.Context, orgID string, statuses []models.CampaignStatus) ([]models.Campaign, error)
}

// ContactRepository looks contacts up by address. A missing contact is (nil, nil).
type ContactRepository interface {
	FindContactByEmail(ctx context.Context, orgID, email string) (*models.Contact, error)
	FindContactsByDomain(ctx context.Context, orgID, domain string) ([]models.Contact, error)
}

// CompanyRepository looks companies up. A missing company is (nil, nil).
type CompanyRepository interface {
	GetCompany(ctx context.Context, orgID, id string) (*models.Company, error)
	FindCompanyByWebsiteDomain(ctx context.Context, orgID, domain string) (*models.Company, error)
	ListCompanies(ctx context.Context, orgID string, limit int) ([]models.Company, error)
}

// Repositories bundles the lookups the heuristics need. A nil repository
// disables the heuristics that depend on it.
type Repositories struct {
	Campaigns CampaignRepository
	Contacts  ContactRepository
	Companies CompanyRepository
}

// Cache stores match results. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, r Result)
}
