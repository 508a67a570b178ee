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

package models

import "time"

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectArchived  ProjectStatus = "archived"
	ProjectCompleted ProjectStatus = "completed"
)

// Accepting reports whether a project in this state still owns its mailbox.
func (s ProjectStatus) Accepting() bool {
	return s == ProjectActive || s == ProjectOnHold
}

// Closed reports whether mail for a project in this state is redirected.
func (s ProjectStatus) Closed() bool {
	return s == ProjectArchived || s == ProjectCompleted
}

// Project is a customer engagement with its own working mailbox.
// Created and mutated by project management; read-only here.
type Project struct {
	ID             string        `json:"id" yaml:"id"`
	OrganizationID string        `json:"organization_id" yaml:"organization_id"`
	Status         ProjectStatus `json:"status" yaml:"status"`
	DomainID       string        `json:"domain_id,omitempty" yaml:"domain_id"`
	Title          string        `json:"title" yaml:"title"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" yaml:"completed_at"`
}

// DomainMailbox is a tenant's catch-all inbox for one sending domain.
type DomainMailbox struct {
	ID             string `json:"id" yaml:"id"`
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
	Domain         string `json:"domain" yaml:"domain"`
}

// CampaignStatus is the state of a marketing campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSent      CampaignStatus = "sent"
	CampaignArchived  CampaignStatus = "archived"
)

// Campaign is an outbound PR/marketing mailing.
type Campaign struct {
	ID             string         `json:"id" yaml:"id"`
	OrganizationID string         `json:"organization_id" yaml:"organization_id"`
	Title          string         `json:"title" yaml:"title"`
	Status         CampaignStatus `json:"status" yaml:"status"`
	CustomerID     string         `json:"customer_id,omitempty" yaml:"customer_id"`
	ReplyToEmail   string         `json:"reply_to_email,omitempty" yaml:"reply_to_email"`
}

// Contact is a person known to the organization.
type Contact struct {
	ID             string `json:"id" yaml:"id"`
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
	Email          string `json:"email" yaml:"email"`
	DisplayName    string `json:"display_name" yaml:"display_name"`
	CompanyID      string `json:"company_id,omitempty" yaml:"company_id"`
	CompanyName    string `json:"company_name,omitempty" yaml:"company_name"`
}

// Company is a customer organization.
type Company struct {
	ID             string `json:"id" yaml:"id"`
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
	Name           string `json:"name" yaml:"name"`
	Website        string `json:"website,omitempty" yaml:"website"`
}
