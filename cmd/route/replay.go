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
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AImitSK/skamp-sub025/internal/routing"
	"github.com/AImitSK/skamp-sub025/internal/webhook"
)

const maxLineBytes = 1 << 20

// rejection is printed in place of an outcome when a message is refused.
type rejection struct {
	Line      int    `json:"line"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
}

func newReplayCommand(opts *options) *cobra.Command {
	var classifyOnly bool

	cmd := &cobra.Command{
		Use:   "replay <messages.jsonl|->",
		Short: "Route captured webhook payloads, one JSON object per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.org == "" {
				return errors.New("--org is required")
			}
			r, err := opts.router()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return replay(cmd, r, opts.org, in, classifyOnly)
		},
	}

	cmd.Flags().BoolVar(&classifyOnly, "classify-only", false, "Skip address routing and only run the matcher")
	return cmd
}

func replay(cmd *cobra.Command, r *routing.Router, orgID string, in io.Reader, classifyOnly bool) error {
	out := json.NewEncoder(cmd.OutOrStdout())
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var routed, rejected int
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		var p webhook.Payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		email, err := p.Email()
		if err != nil {
			rejected++
			reason := "malformed_address"
			if errors.Is(err, webhook.ErrMissingMessageID) {
				reason = "missing_message_id"
			}
			if err := out.Encode(rejection{Line: line, MessageID: p.MessageID, Error: err.Error(), Reason: reason}); err != nil {
				return err
			}
			continue
		}

		if classifyOnly {
			routed++
			if err := out.Encode(r.Classify(cmd.Context(), orgID, email)); err != nil {
				return err
			}
			continue
		}

		outcome, err := r.Route(cmd.Context(), orgID, email)
		if err != nil {
			if !routing.IsRejection(err) {
				return fmt.Errorf("line %d: %w", line, err)
			}
			rejected++
			if err := out.Encode(rejection{Line: line, MessageID: p.MessageID, Error: err.Error(), Reason: routing.Reason(err)}); err != nil {
				return err
			}
			continue
		}
		routed++
		if err := out.Encode(outcome); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d routed, %d rejected\n", routed, rejected)
	return nil
}
