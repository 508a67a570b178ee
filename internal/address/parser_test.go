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

package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suffix = "inbox.example-service.tld"

// TestParse_DomainAddress verifies plain local parts decode as domain mailboxes.
func TestParse_DomainAddress(t *testing.T) {
	parsed, err := Parse("support@inbox.example-service.tld", suffix)
	require.NoError(t, err)

	assert.Equal(t, KindDomain, parsed.Kind())
	assert.Equal(t, DomainAddress{Token: "support", DomainID: "domain-support"}, parsed)
}

// TestParse_DomainTokensNeverProject checks that hyphen-free tokens are
// always domain addresses.
func TestParse_DomainTokensNeverProject(t *testing.T) {
	for _, token := range []string{"support", "info", "a", "presse.team", "x_y", "42"} {
		t.Run(token, func(t *testing.T) {
			parsed, err := Parse(token+"@"+suffix, suffix)
			require.NoError(t, err)
			d, ok := parsed.(DomainAddress)
			require.True(t, ok, "want DomainAddress, got %T", parsed)
			assert.Equal(t, token, d.Token)
		})
	}
}

// TestParse_InvalidDomain verifies foreign domains are rejected.
func TestParse_InvalidDomain(t *testing.T) {
	tests := []string{
		"x@gmail.com",
		"support@example-service.tld",
		"support@sub.inbox.example-service.tld",
		"presse-proj-123@inbox.example-service.tld.evil.com",
	}
	for _, addr := range tests {
		t.Run(addr, func(t *testing.T) {
			_, err := Parse(addr, suffix)
			assert.ErrorIs(t, err, ErrInvalidDomain)
		})
	}
}

// TestParse_Malformed verifies structurally broken addresses.
func TestParse_Malformed(t *testing.T) {
	tests := []string{
		"",
		"no-at-sign",
		"@inbox.example-service.tld",
		"support@",
		"-123@inbox.example-service.tld",
		"presse-@inbox.example-service.tld",
	}
	for _, addr := range tests {
		t.Run(addr, func(t *testing.T) {
			_, err := Parse(addr, suffix)
			assert.ErrorIs(t, err, ErrMalformedAddress)
		})
	}
}

// TestParse_SplitsOnLastAt verifies a quoted local part containing @
// keeps the domain after the last @.
func TestParse_SplitsOnLastAt(t *testing.T) {
	parsed, err := Parse("a@b@inbox.example-service.tld", suffix)
	require.NoError(t, err)
	assert.Equal(t, "a@b", parsed.(DomainAddress).Token)
}

// TestParse_SuffixCaseInsensitive verifies DNS-style domain comparison.
func TestParse_SuffixCaseInsensitive(t *testing.T) {
	parsed, err := Parse("Support@INBOX.Example-Service.TLD", suffix)
	require.NoError(t, err)
	assert.Equal(t, "Support", parsed.(DomainAddress).Token)
}

// TestParse_ProjectSplitLast verifies the default split keeps everything
// before the last hyphen as label.
func TestParse_ProjectSplitLast(t *testing.T) {
	parsed, err := Parse("presse-proj-123@inbox.example-service.tld", suffix)
	require.NoError(t, err)

	p, ok := parsed.(ProjectAddress)
	require.True(t, ok)
	assert.Equal(t, "presse-proj-123", p.LocalPart)
	assert.Equal(t, "presse-proj", p.Label)
	assert.Equal(t, "123", p.ProjectID)
	assert.Equal(t, "domain-presse-proj", p.DomainHint())
}

// TestParse_ProjectSplitFirst verifies the opt-in split that allows
// hyphenated project IDs.
func TestParse_ProjectSplitFirst(t *testing.T) {
	p := NewParser(suffix, WithSplit(SplitFirst))

	parsed, err := p.Parse("presse-proj-123@inbox.example-service.tld")
	require.NoError(t, err)

	assert.Equal(t, ProjectAddress{
		LocalPart: "presse-proj-123",
		Label:     "presse",
		ProjectID: "proj-123",
	}, parsed)
	assert.Equal(t, "domain-presse", parsed.(ProjectAddress).DomainHint())
}

// TestParse_SimpleProjectSameForBothSplits checks a single-hyphen local part.
func TestParse_SimpleProjectSameForBothSplits(t *testing.T) {
	for _, split := range []Split{SplitLast, SplitFirst} {
		t.Run(split.String(), func(t *testing.T) {
			parsed, err := NewParser(suffix, WithSplit(split)).Parse("presse-abc123@" + suffix)
			require.NoError(t, err)
			assert.Equal(t, ProjectAddress{LocalPart: "presse-abc123", Label: "presse", ProjectID: "abc123"}, parsed)
		})
	}
}

func TestParseSplit(t *testing.T) {
	s, err := ParseSplit("")
	require.NoError(t, err)
	assert.Equal(t, SplitLast, s)

	s, err = ParseSplit(" First ")
	require.NoError(t, err)
	assert.Equal(t, SplitFirst, s)

	_, err = ParseSplit("middle")
	assert.Error(t, err)
}

// TestFindRouting verifies recipient selection across To/Cc lists.
func TestFindRouting(t *testing.T) {
	p := NewParser(suffix)

	t.Run("skips foreign recipients", func(t *testing.T) {
		parsed, rcpt, err := p.FindRouting([]string{"team@acme.com", "presse-42@" + suffix})
		require.NoError(t, err)
		assert.Equal(t, "presse-42@"+suffix, rcpt)
		assert.Equal(t, KindProject, parsed.Kind())
	})

	t.Run("first match wins", func(t *testing.T) {
		parsed, _, err := p.FindRouting([]string{"support@" + suffix, "presse-42@" + suffix})
		require.NoError(t, err)
		assert.Equal(t, KindDomain, parsed.Kind())
	})

	t.Run("only foreign recipients", func(t *testing.T) {
		_, _, err := p.FindRouting([]string{"team@acme.com", "x@gmail.com"})
		assert.ErrorIs(t, err, ErrInvalidDomain)
	})

	t.Run("malformed on suffix is reported", func(t *testing.T) {
		_, _, err := p.FindRouting([]string{"team@acme.com", "-1@" + suffix})
		assert.ErrorIs(t, err, ErrMalformedAddress)
	})

	t.Run("no recipients", func(t *testing.T) {
		_, _, err := p.FindRouting(nil)
		assert.ErrorIs(t, err, ErrMalformedAddress)
	})
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "acme.com", Domain("Max@ACME.com"))
	assert.Equal(t, "", Domain("nobody"))
	assert.Equal(t, "", Domain("trailing@"))
}

// TestParseList verifies header parsing including display names.
func TestParseList(t *testing.T) {
	list, err := ParseList(`"Max Muster" <Max@Acme.com>, presse-42@inbox.example-service.tld`)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "max@acme.com", list[0].Address)
	assert.Equal(t, "Max Muster", list[0].Name)
	assert.Equal(t, "presse-42@inbox.example-service.tld", list[1].Address)

	list, err = ParseList("")
	require.NoError(t, err)
	assert.Empty(t, list)

	one, err := ParseOne("=?UTF-8?Q?J=C3=BCrgen?= <j@firma.de>")
	require.NoError(t, err)
	assert.Equal(t, "j@firma.de", one.Address)
	assert.Equal(t, "Jürgen", one.Name)
}

func TestWebsiteHost(t *testing.T) {
	tests := map[string]string{
		"acme.com":                    "acme.com",
		"https://www.Acme.com/de/":    "acme.com",
		"http://acme.com:8080?x=1":    "acme.com",
		"  www.nordlicht-medien.de. ": "nordlicht-medien.de",
		"":                            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, WebsiteHost(in), in)
	}
}
