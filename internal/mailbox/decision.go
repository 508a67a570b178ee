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

package mailbox

import (
	"slices"
	"time"
)

// Type is the kind of mailbox a message is filed into.
type Type string

const (
	TypeDomain  Type = "domain"
	TypeProject Type = "project"
)

// RedirectMetadata records why a project-addressed message was filed into
// its domain mailbox instead.
type RedirectMetadata struct {
	OriginalProjectID    string     `json:"original_project_id"`
	OriginalProjectTitle string     `json:"original_project_title"`
	ArchivedAt           *time.Time `json:"archived_at,omitempty"`
	RedirectedAt         time.Time  `json:"redirected_at"`
	Reason               string     `json:"reason"`
}

// Decision is the routing outcome for one addressed message.
//
// A project decision always carries ProjectID; a domain decision never
// does, even when the message was addressed to a project.
type Decision struct {
	MailboxType Type              `json:"mailbox_type"`
	ProjectID   string            `json:"project_id,omitempty"`
	DomainID    string            `json:"domain_id"`
	Labels      []string          `json:"labels,omitempty"`
	Redirect    *RedirectMetadata `json:"redirect,omitempty"`
}

// Redirected reports whether the message was demoted from a project mailbox.
func (d *Decision) Redirected() bool {
	return d.Redirect != nil
}

// AddLabel adds label once; insertion order is kept.
func (d *Decision) AddLabel(label string) {
	if !slices.Contains(d.Labels, label) {
		d.Labels = append(d.Labels, label)
	}
}

// HasLabel reports whether label is set.
func (d *Decision) HasLabel(label string) bool {
	return slices.Contains(d.Labels, label)
}

// OriginalProjectLabel is the provenance label for a redirected project.
func OriginalProjectLabel(projectID string) string {
	return "original-project:" + projectID
}
