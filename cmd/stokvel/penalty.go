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
	"github.com/blinklabs-io/stokvel/ledger"
)

func penaltyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "penalty",
		Short: "Run and inspect monthly penalty cycles",
	}
	cmd.AddCommand(penaltyRunCommand())
	cmd.AddCommand(penaltyForceCommand())
	cmd.AddCommand(penaltyStatusCommand())
	return cmd
}

// periodArg returns the period named by the flag, or the scheduler's current
// period when the flag is empty
func periodArg(s *stokvel.Stokvel, val string) (ledger.Period, error) {
	if val == "" {
		return s.Scheduler().CurrentPeriod(), nil
	}
	return ledger.ParsePeriod(val)
}

func penaltyRunCommand() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the penalty cycle for a period that has not been processed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				p, err := periodArg(s, period)
				if err != nil {
					return err
				}
				report, err := s.Scheduler().RunOnce(cmd.Context(), p)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), newPenaltyReportView(report))
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "period as YYYY-MM (default current month)")
	return cmd
}

func penaltyForceCommand() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "force",
		Short: "Run the penalty cycle for a period even if it was already processed",
		Long: "Run the penalty cycle for a period even if it was already processed.\n" +
			"Members are penalized again for the period.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				p, err := ledger.ParsePeriod(period)
				if err != nil {
					return err
				}
				report, err := s.Scheduler().ForceRun(cmd.Context(), p)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), newPenaltyReportView(report))
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "period as YYYY-MM")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func penaltyStatusCommand() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show penalty run markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				if period != "" {
					p, err := ledger.ParsePeriod(period)
					if err != nil {
						return err
					}
					run, err := s.Scheduler().Marker(cmd.Context(), p)
					if err != nil {
						return err
					}
					return writeYAML(cmd.OutOrStdout(), newRunView(run))
				}
				runs, err := s.Scheduler().Runs(cmd.Context())
				if err != nil {
					return err
				}
				ret := make([]runView, 0, len(runs))
				for _, run := range runs {
					ret = append(ret, newRunView(run))
				}
				return writeYAML(cmd.OutOrStdout(), ret)
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "only show the marker for this period (YYYY-MM)")
	return cmd
}
