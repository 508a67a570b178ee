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

	"github.com/AImitSK/skamp-sub025/internal/mailbox"
)

func newResolveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <address>",
		Short: "Resolve an inbox address to a mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.parser()
			if err != nil {
				return err
			}
			s, err := opts.store()
			if err != nil {
				return err
			}
			parsed, err := p.Parse(args[0])
			if err != nil {
				return err
			}
			d, err := mailbox.NewResolver(s, mailbox.WithLogger(opts.logger())).Resolve(cmd.Context(), parsed)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), d)
		},
	}
}
