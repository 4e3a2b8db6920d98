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

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/stokvel"
)

// withStokvel opens the ledger for the duration of fn
func withStokvel(
	cmd *cobra.Command,
	fn func(s *stokvel.Stokvel) error,
) (err error) {
	s, err := openStokvel(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(s)
}

func memberCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage stokvel members",
	}
	cmd.AddCommand(memberRegisterCommand())
	cmd.AddCommand(memberShowCommand())
	cmd.AddCommand(memberListCommand())
	return cmd
}

func memberRegisterCommand() *cobra.Command {
	var (
		email    string
		fullName string
		whatsApp string
		tiers    []int
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				m, err := s.Ledger().Members.Register(
					cmd.Context(),
					email,
					fullName,
					whatsApp,
					tiers,
				)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), newMemberView(m))
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "member email address")
	cmd.Flags().StringVar(&fullName, "name", "", "member full name")
	cmd.Flags().StringVar(&whatsApp, "whatsapp", "", "member WhatsApp number")
	cmd.Flags().IntSliceVar(&tiers, "tiers", nil, "contribution tiers, e.g. 50,100")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("whatsapp")
	_ = cmd.MarkFlagRequired("tiers")
	return cmd
}

func memberShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show EMAIL",
		Short: "Show a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				m, err := s.Ledger().Members.Find(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), newMemberView(m))
			})
		},
	}
	return cmd
}

func memberListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStokvel(cmd, func(s *stokvel.Stokvel) error {
				ret := []memberView{}
				for m, err := range s.Ledger().Members.ListAll(cmd.Context()) {
					if err != nil {
						return err
					}
					ret = append(ret, newMemberView(m))
				}
				return writeYAML(cmd.OutOrStdout(), ret)
			})
		},
	}
	return cmd
}
