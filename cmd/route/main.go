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

// Command route runs the routing pipeline offline: decode an address,
// resolve it against a CRM snapshot, match a sender, replay captured
// webhook payloads, or import a snapshot into Postgres.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/logger"
	"github.com/AImitSK/skamp-sub025/internal/mailbox"
	"github.com/AImitSK/skamp-sub025/internal/matcher"
	"github.com/AImitSK/skamp-sub025/internal/routing"
	"github.com/AImitSK/skamp-sub025/internal/store/memory"
)

// options are the flags shared by all subcommands.
type options struct {
	suffix   string
	split    string
	fixtures string
	org      string
	verbose  bool
}

func (o *options) parser() (*address.Parser, error) {
	if o.suffix == "" {
		return nil, errors.New("--suffix (or INBOX_DOMAIN_SUFFIX) is required")
	}
	split, err := address.ParseSplit(o.split)
	if err != nil {
		return nil, err
	}
	return address.NewParser(o.suffix, address.WithSplit(split)), nil
}

func (o *options) store() (*memory.Store, error) {
	if o.fixtures == "" {
		return nil, errors.New("--fixtures is required")
	}
	return memory.Load(o.fixtures)
}

func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	l, err := logger.New(logger.Config{Level: "debug", Development: true})
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func (o *options) matcher(s *memory.Store) *matcher.Matcher {
	return matcher.New(
		matcher.Repositories{Campaigns: s, Contacts: s, Companies: s},
		matcher.WithLogger(o.logger()),
	)
}

func (o *options) router() (*routing.Router, error) {
	p, err := o.parser()
	if err != nil {
		return nil, err
	}
	s, err := o.store()
	if err != nil {
		return nil, err
	}
	log := o.logger()
	return routing.New(p, mailbox.NewResolver(s, mailbox.WithLogger(log)), s, o.matcher(s), routing.WithLogger(log)), nil
}

// NewRouteCommand builds the root command.
func NewRouteCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Inspect and replay inbound mail routing",
		Example: `  route parse presse-123@inbox.example-service.tld --suffix inbox.example-service.tld
  route resolve presse-123@inbox.example-service.tld --fixtures crm.yaml
  route match --from max@acme.com --subject "Re: Launch" --fixtures crm.yaml --org org-1
  route replay deliveries.jsonl --fixtures crm.yaml --org org-1`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.suffix, "suffix", os.Getenv("INBOX_DOMAIN_SUFFIX"), "Inbox domain suffix")
	pf.StringVar(&opts.split, "split", "last", "Project address split: last or first")
	pf.StringVar(&opts.fixtures, "fixtures", os.Getenv("CRM_FIXTURES"), "YAML CRM snapshot")
	pf.StringVar(&opts.org, "org", "", "Organization id")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline decisions to stderr")

	cmd.AddCommand(
		newParseCommand(opts),
		newResolveCommand(opts),
		newMatchCommand(opts),
		newReplayCommand(opts),
		newImportCommand(),
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := NewRouteCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
