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

// Package address decodes inbox recipient addresses into routing tokens.
//
// Two shapes are recognised on the configured inbox domain:
//
//	{domainToken}@{suffix}          domain mailbox
//	{label}-{projectId}@{suffix}    project mailbox
//
// Parsing is pure and performs no I/O.
package address

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedAddress is returned for structurally invalid addresses.
	ErrMalformedAddress = errors.New("malformed address")

	// ErrInvalidDomain is returned when the domain part is not the inbox suffix.
	ErrInvalidDomain = errors.New("address domain is not the inbox domain")
)

// DomainIDPrefix is prepended to a domain token to form its synthetic ID.
const DomainIDPrefix = "domain-"

// Kind tags the variant held by a Parsed value.
type Kind int

const (
	KindDomain Kind = iota + 1
	KindProject
)

func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "domain"
	case KindProject:
		return "project"
	default:
		return "unknown"
	}
}

// Parsed is the result of decoding an address. It is either a
// DomainAddress or a ProjectAddress; no other implementations exist.
type Parsed interface {
	Kind() Kind
	String() string
	parsed()
}

// DomainAddress addresses a domain catch-all mailbox.
type DomainAddress struct {
	Token    string
	DomainID string
}

func (DomainAddress) Kind() Kind { return KindDomain }
func (DomainAddress) parsed()    {}

func (d DomainAddress) String() string {
	return fmt.Sprintf("domain(%s)", d.Token)
}

// ProjectAddress addresses a project mailbox. The owning domain is not
// known until the project itself is loaded.
type ProjectAddress struct {
	LocalPart string
	Label     string
	ProjectID string
}

func (ProjectAddress) Kind() Kind { return KindProject }
func (ProjectAddress) parsed()    {}

func (p ProjectAddress) String() string {
	return fmt.Sprintf("project(%s, label=%s)", p.ProjectID, p.Label)
}

// DomainHint is the domain ID implied by the address label. Used only
// when the project record carries no domain of its own.
func (p ProjectAddress) DomainHint() string {
	return DomainIDPrefix + p.Label
}

// Split selects where a project local part is cut into label and ID.
type Split int

const (
	// SplitLast treats the final hyphen-delimited token as the project ID:
	// "presse-proj-123" → label "presse-proj", ID "123".
	SplitLast Split = iota
	// SplitFirst treats everything after the first hyphen as the project ID:
	// "presse-proj-123" → label "presse", ID "proj-123".
	SplitFirst
)

func (s Split) String() string {
	if s == SplitFirst {
		return "first"
	}
	return "last"
}

// ParseSplit converts a configuration value ("last", "first") to a Split.
func ParseSplit(v string) (Split, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "last":
		return SplitLast, nil
	case "first":
		return SplitFirst, nil
	default:
		return SplitLast, fmt.Errorf("unknown project split %q (want last or first)", v)
	}
}

// Parser decodes addresses for one inbox domain.
type Parser struct {
	suffix string
	split  Split
}

// Option configures a Parser.
type Option func(*Parser)

// WithSplit sets the project local-part split strategy.
func WithSplit(s Split) Option {
	return func(p *Parser) { p.split = s }
}

// NewParser creates a parser for addresses on the given inbox domain suffix.
func NewParser(suffix string, opts ...Option) *Parser {
	p := &Parser{suffix: strings.TrimSpace(suffix)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Suffix returns the inbox domain this parser accepts.
func (p *Parser) Suffix() string { return p.suffix }

// Parse decodes address into a DomainAddress or ProjectAddress.
func Parse(address, inboxDomainSuffix string) (Parsed, error) {
	return NewParser(inboxDomainSuffix).Parse(address)
}

// Parse decodes address into a DomainAddress or ProjectAddress.
func (p *Parser) Parse(address string) (Parsed, error) {
	address = strings.TrimSpace(address)

	at := strings.LastIndex(address, "@")
	if at < 0 {
		return nil, fmt.Errorf("%w: %q has no @", ErrMalformedAddress, address)
	}
	local, domain := address[:at], address[at+1:]
	if local == "" || domain == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAddress, address)
	}

	// DNS names compare case-insensitively; the local part is kept verbatim.
	if !strings.EqualFold(domain, p.suffix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}

	if !strings.Contains(local, "-") {
		return DomainAddress{Token: local, DomainID: DomainIDPrefix + local}, nil
	}

	var cut int
	if p.split == SplitFirst {
		cut = strings.Index(local, "-")
	} else {
		cut = strings.LastIndex(local, "-")
	}
	label, projectID := local[:cut], local[cut+1:]
	if label == "" || projectID == "" {
		return nil, fmt.Errorf("%w: %q has an empty label or project id", ErrMalformedAddress, address)
	}

	return ProjectAddress{LocalPart: local, Label: label, ProjectID: projectID}, nil
}

// FindRouting returns the first recipient that decodes successfully.
//
// Recipients on foreign domains are skipped. When nothing decodes, the
// first on-suffix failure is returned if there was one, otherwise
// ErrInvalidDomain.
func (p *Parser) FindRouting(recipients []string) (Parsed, string, error) {
	var firstErr error
	for _, rcpt := range recipients {
		parsed, err := p.Parse(rcpt)
		if err == nil {
			return parsed, rcpt, nil
		}
		if firstErr == nil && !errors.Is(err, ErrInvalidDomain) && p.onSuffix(rcpt) {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, "", firstErr
	}
	if len(recipients) == 0 {
		return nil, "", fmt.Errorf("%w: no recipients", ErrMalformedAddress)
	}
	return nil, "", fmt.Errorf("%w: no recipient on %s", ErrInvalidDomain, p.suffix)
}

func (p *Parser) onSuffix(addr string) bool {
	at := strings.LastIndex(addr, "@")
	return at >= 0 && strings.EqualFold(strings.TrimSpace(addr[at+1:]), p.suffix)
}

// Domain returns the lowercased domain part of an email address, or "".
func Domain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
