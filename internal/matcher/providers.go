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

import "strings"

// genericProviders are public mailbox providers. A sender domain on this
// list says nothing about the sender's organization.
var genericProviders = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"yahoo.de":       true,
	"yahoo.co.uk":    true,
	"hotmail.com":    true,
	"hotmail.de":     true,
	"outlook.com":    true,
	"outlook.de":     true,
	"live.com":       true,
	"live.de":        true,
	"msn.com":        true,
	"gmx.de":         true,
	"gmx.net":        true,
	"web.de":         true,
	"t-online.de":    true,
	"aol.com":        true,
	"aol.de":         true,
	"mail.com":       true,
	"protonmail.com": true,
	"protonmail.ch":  true,
	"icloud.com":     true,
}

// IsGenericProvider reports whether domain belongs to a public mail provider.
func IsGenericProvider(domain string) bool {
	return genericProviders[strings.ToLower(strings.TrimSpace(domain))]
}
