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
	"errors"

	"github.com/spf13/cobra"

	"github.com/AImitSK/skamp-sub025/internal/matcher"
)

func newMatchCommand(opts *options) *cobra.Command {
	var msg matcher.Message

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a sender to a customer or campaign",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.org == "" {
				return errors.New("--org is required")
			}
			s, err := opts.store()
			if err != nil {
				return err
			}
			out := opts.matcher(s).Match(cmd.Context(), opts.org, msg)
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&msg.FromEmail, "from", "", "Sender address")
	cmd.Flags().StringVar(&msg.Subject, "subject", "", "Message subject")
	cmd.Flags().StringVar(&msg.ReplyToEmail, "reply-to", "", "Reply-To address")
	return cmd
}
