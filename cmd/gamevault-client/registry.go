package main

import (
	"github.com/spf13/cobra"

	"github.com/quantumauth-io/gamevault-client/internal/setup"
)

func newRegistryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect or initialize the license registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the registry exists and its counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, false, func(svc *setup.Services) error {
				info, err := svc.Registry.Describe(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the registry if it does not exist yet",
		Long: `Create the registry under the module account if it does not exist yet.

Running it against an initialized registry submits nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, true, func(svc *setup.Services) error {
				if err := svc.Registry.EnsureInitialized(cmd.Context()); err != nil {
					return err
				}
				info, err := svc.Registry.Describe(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	})

	return cmd
}
