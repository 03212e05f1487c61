package main

import (
	"github.com/spf13/cobra"

	"github.com/quantumauth-io/gamevault-client/internal/setup"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		host     string
		port     string
		readOnly bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the loopback HTTP API",
		Long: `Serve the loopback HTTP API used by the storefront UI.

The keystore is unlocked once at startup. Set GAMEVAULT_KEYSTORE_PASSWORD to
start without a prompt, or pass --read-only to serve reads only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *c.cfg
			if host != "" {
				cfg.Server.Host = host
			}
			if port != "" {
				cfg.Server.Port = port
			}
			if readOnly {
				cfg.Signer.ReadOnly = true
			}
			return setup.Run(cmd.Context(), &cfg, c.build, setup.Options{Prompter: c.prompter})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default from config)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "do not unlock the keystore")
	return cmd
}
