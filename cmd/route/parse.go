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

package main

import (
	"github.com/spf13/cobra"

	"github.com/AImitSK/skamp-sub025/internal/address"
)

// parsedView is the printable form of an address.Parsed.
type parsedView struct {
	Kind       string `json:"kind"`
	Token      string `json:"domain_token,omitempty"`
	DomainID   string `json:"domain_id,omitempty"`
	LocalPart  string `json:"local_part,omitempty"`
	Label      string `json:"label,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	DomainHint string `json:"domain_hint,omitempty"`
}

func viewOf(p address.Parsed) parsedView {
	switch a := p.(type) {
	case address.DomainAddress:
		return parsedView{Kind: a.Kind().String(), Token: a.Token, DomainID: a.DomainID}
	case address.ProjectAddress:
		return parsedView{
			Kind:       a.Kind().String(),
			LocalPart:  a.LocalPart,
			Label:      a.Label,
			ProjectID:  a.ProjectID,
			DomainHint: a.DomainHint(),
		}
	default:
		return parsedView{Kind: p.Kind().String()}
	}
}

func newParseCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <address>",
		Short: "Decode an inbox address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.parser()
			if err != nil {
				return err
			}
			parsed, err := p.Parse(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), viewOf(parsed))
		},
	}
}
