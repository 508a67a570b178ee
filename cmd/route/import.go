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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AImitSK/skamp-sub025/internal/store/memory"
	"github.com/AImitSK/skamp-sub025/internal/store/postgres"
)

func newImportCommand() *cobra.Command {
	var (
		dsn      string
		maxConns int32
	)

	cmd := &cobra.Command{
		Use:   "import <fixtures.yaml>",
		Short: "Load a YAML CRM snapshot into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return errors.New("--postgres (or DATABASE_URL) is required")
			}
			s, err := memory.Load(args[0])
			if err != nil {
				return err
			}
			f := s.Snapshot()

			ctx := cmd.Context()
			pool, err := postgres.Connect(ctx, dsn, maxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			pg, err := postgres.NewStore(ctx, pool, zap.NewNop())
			if err != nil {
				return err
			}
			if err := pg.Import(ctx, f); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d projects, %d domain mailboxes, %d campaigns, %d contacts, %d companies\n",
				len(f.Projects), len(f.DomainMailboxes), len(f.Campaigns), len(f.Contacts), len(f.Companies))
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "postgres", os.Getenv("DATABASE_URL"), "Postgres connection string")
	cmd.Flags().Int32Var(&maxConns, "max-conns", 4, "Maximum pool connections")
	return cmd
}
