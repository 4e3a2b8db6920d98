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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/stokvel"
	"github.com/blinklabs-io/stokvel/ledger"
)

func paymentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Submit and decide contribution payments",
	}
	cmd.AddCommand(paymentSubmitCommand())
	cmd.AddCommand(paymentApproveCommand())
	cmd.AddCommand(paymentRejectCommand())
	cmd.AddCommand(paymentListCommand())
	cmd.AddCommand(paymentReceiptCommand())
	return cmd
}

func paymentSubmitCommand() *cobra.Command {
	var (
		email       string
		tier        int
		month       int
		receiptRef  string
		receiptFile string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a pending payment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if receiptRef != "" && receiptFile != "" {
				return errors.New("--receipt-ref and --receipt-file are mutually exclusive")
			}
			var image []byte
			if receiptFile != "" {
				var err error
				image, err = os.ReadFile(receiptFile)
				if err != nil {
					return fmt.Errorf("reading receipt: %w", err)
				}
			}
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				var p *ledger.Payment
				var err error
				if image != nil {
					p, err = s.Ledger().Receipts.SubmitWithReceipt(cmd.Context(), email, tier, month, image)
				} else {
					p, err = s.Ledger().Payments.Submit(cmd.Context(), email, tier, month, receiptRef)
				}
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), newPaymentView(p))
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "member email address")
	cmd.Flags().IntVar(&tier, "tier", 0, "contribution tier")
	cmd.Flags().IntVar(&month, "month", 0, "month number (1-12)")
	cmd.Flags().StringVar(&receiptRef, "receipt-ref", "", "reference of an already stored receipt")
	cmd.Flags().StringVar(&receiptFile, "receipt-file", "", "receipt image to upload")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("tier")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func paymentApproveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve EMAIL PERIOD_KEY",
		Short: "Approve a pending payment and credit the member",
		Long:  "Approve a pending payment. PERIOD_KEY is <tier>_<month>, e.g. 100_03.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			periodKey, err := ledger.ParsePeriodKey(args[1])
			if err != nil {
				return err
			}
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				a, err := s.Ledger().Approvals.Approve(cmd.Context(), args[0], periodKey)
				if err != nil {
					var partialErr *ledger.PartialApprovalError
					if errors.As(err, &partialErr) {
						return fmt.Errorf("%w (run 'reconcile repair' to credit the member)", err)
					}
					return err
				}
				return writeYAML(cmd.OutOrStdout(), struct {
					Payment paymentView `yaml:"payment"`
					Member  memberView  `yaml:"member"`
				}{
					Payment: newPaymentView(a.Payment),
					Member:  newMemberView(a.Member),
				})
			})
		},
	}
	return cmd
}

func paymentRejectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject EMAIL PERIOD_KEY",
		Short: "Reject a pending payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			periodKey, err := ledger.ParsePeriodKey(args[1])
			if err != nil {
				return err
			}
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				p, err := s.Ledger().Approvals.Reject(cmd.Context(), args[0], periodKey)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), newPaymentView(p))
			})
		},
	}
	return cmd
}

func paymentListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list EMAIL",
		Short: "List the payments of a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				ret := []paymentView{}
				for p, err := range s.Ledger().Payments.ListForMember(cmd.Context(), args[0]) {
					if err != nil {
						return err
					}
					ret = append(ret, newPaymentView(p))
				}
				return writeYAML(cmd.OutOrStdout(), ret)
			})
		},
	}
	return cmd
}

func paymentReceiptCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "receipt EMAIL PERIOD_KEY",
		Short: "Download the receipt image of a payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			periodKey, err := ledger.ParsePeriodKey(args[1])
			if err != nil {
				return err
			}
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				p, err := s.Ledger().Payments.FindByKey(cmd.Context(), args[0], periodKey)
				if err != nil {
					return err
				}
				image, err := s.Ledger().Receipts.LoadForPayment(cmd.Context(), p)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(image)
					return err
				}
				return os.WriteFile(output, image, 0o600)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the image to this file instead of stdout")
	return cmd
}
