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

// Package models defines the data structures shared across the inbound
// routing service: the inbound email as delivered by the receiving webhook
// and the read-only CRM entities the resolvers consult.
package models

import (
	"strings"
	"time"
)

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// InboundEmail is a received message, reduced to the fields routing needs.
// Bodies and attachments stay with the receiving provider; the filing
// service fetches them once a routing decision exists.
type InboundEmail struct {
	MessageID  string            `json:"message_id"`
	ReceivedAt time.Time         `json:"received_at"`
	From       EmailAddress      `json:"from"`
	ReplyTo    *EmailAddress     `json:"reply_to,omitempty"`
	To         []EmailAddress    `json:"to"`
	Cc         []EmailAddress    `json:"cc,omitempty"`
	Subject    string            `json:"subject"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Recipients returns every envelope and header recipient in delivery
// order: Delivered-To and X-Original-To first, then To, then Cc.
func (e *InboundEmail) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+2)
	for _, h := range []string{"Delivered-To", "X-Original-To"} {
		if v := e.header(h); v != "" {
			out = append(out, v)
		}
	}
	for _, a := range e.To {
		out = append(out, a.Address)
	}
	for _, a := range e.Cc {
		out = append(out, a.Address)
	}
	return out
}

// ReplyToAddress returns the reply-to address, or "" when absent.
func (e *InboundEmail) ReplyToAddress() string {
	if e.ReplyTo == nil {
		return ""
	}
	return e.ReplyTo.Address
}

func (e *InboundEmail) header(name string) string {
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
