// Copyright 2025 Blink Labs Software
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

	"github.com/blinklabs-io/stokvel"
)

func reconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare member totals with their approved payments",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "List members whose total contribution is out of step",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStokvel(cmd, func(s *stokvel.Stokvel) error {
					mismatches, err := s.Ledger().Reconciler.Check(cmd.Context())
					if err != nil {
						return err
					}
					return writeYAML(cmd.OutOrStdout(), newMismatchViews(mismatches))
				})
			},
		},
		&cobra.Command{
			Use:   "repair",
			Short: "Reset mismatched totals to the sum of approved payments",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStokvel(cmd, func(s *stokvel.Stokvel) error {
					repaired, err := s.Ledger().Reconciler.Repair(cmd.Context())
					if err != nil {
						return err
					}
					return writeYAML(cmd.OutOrStdout(), newMismatchViews(repaired))
				})
			},
		},
	)
	return cmd
}
