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
	"fmt"
	"strings"

	gomail "github.com/emersion/go-message/mail"

	"github.com/AImitSK/skamp-sub025/internal/models"
)

// ParseList parses an RFC 5322 address-list header value such as
// `"Max" <max@acme.com>, presse-42@inbox.example.tld`. Encoded display
// names are decoded. Addresses are lowercased.
func ParseList(value string) ([]models.EmailAddress, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	list, err := gomail.ParseAddressList(value)
	if err != nil {
		// Providers sometimes hand over bare addresses the strict
		// parser rejects (trailing dots, unquoted specials).
		if !strings.ContainsAny(value, "<>,") && strings.Contains(value, "@") {
			return []models.EmailAddress{{Address: strings.ToLower(value)}}, nil
		}
		return nil, fmt.Errorf("parse address list %q: %w", value, err)
	}

	out := make([]models.EmailAddress, 0, len(list))
	for _, a := range list {
		out = append(out, models.EmailAddress{
			Address: strings.ToLower(strings.TrimSpace(a.Address)),
			Name:    a.Name,
		})
	}
	return out, nil
}

// ParseOne parses a single address header value, returning the first
// address of the list.
func ParseOne(value string) (models.EmailAddress, error) {
	list, err := ParseList(value)
	if err != nil {
		return models.EmailAddress{}, err
	}
	if len(list) == 0 {
		return models.EmailAddress{}, fmt.Errorf("%w: empty address", ErrMalformedAddress)
	}
	return list[0], nil
}

// WebsiteHost reduces a company website such as "https://www.Acme.com/de/"
// to the bare lowercase host "acme.com" so it compares with sender domains.
func WebsiteHost(website string) string {
	h := strings.ToLower(strings.TrimSpace(website))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, ":"); i >= 0 {
		h = h[:i]
	}
	h = strings.TrimPrefix(h, "www.")
	return strings.TrimSuffix(h, ".")
}
