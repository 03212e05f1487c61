package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	clientconfig "github.com/quantumauth-io/gamevault-client/cmd/gamevault-client/config"
	"github.com/quantumauth-io/gamevault-client/internal/helpers"
	"github.com/quantumauth-io/gamevault-client/internal/setup"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

type cli struct {
	build    setup.BuildInfo
	cfgFile  string
	cfg      *clientconfig.Config
	prompter *helpers.Prompter

	// open builds a session; tests swap it for an in-memory ledger.
	open func(ctx context.Context, cfg *clientconfig.Config) (*setup.Services, error)
}

func newCLI(build setup.BuildInfo) *cli {
	c := &cli{build: build, prompter: helpers.NewPrompter()}
	c.open = func(ctx context.Context, cfg *clientconfig.Config) (*setup.Services, error) {
		return setup.Build(ctx, cfg, setup.Options{Prompter: c.prompter})
	}
	return c
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "gamevault-client",
		Short: "Client for the GameVault on-chain license registry",
		Long: `gamevault-client talks to the GameVault license module on the ledger.

It can serve a loopback HTTP API for the storefront UI, or run single
operations from the terminal: register listings, buy and transfer licenses,
and check what an account owns.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", c.build.Version, c.build.Commit, c.build.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg != nil {
				return nil
			}
			cfg, err := clientconfig.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "",
		"config file (default: ~/.config/gamevault-client/config.yaml)")

	root.AddCommand(
		newServeCmd(c),
		newKeygenCmd(c),
		newAddressCmd(c),
		newRegistryCmd(c),
		newListingsCmd(c),
		newLicensesCmd(c),
	)
	return root
}

// session opens the services. Without sign the keystore stays locked.
func (c *cli) session(ctx context.Context, sign bool) (*setup.Services, error) {
	cfg := *c.cfg
	if !sign {
		cfg.Signer.ReadOnly = true
	}
	return c.open(ctx, &cfg)
}

// withSession runs fn and always flushes the session afterwards.
func (c *cli) withSession(cmd *cobra.Command, sign bool, fn func(svc *setup.Services) error) error {
	svc, err := c.session(cmd.Context(), sign)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close(context.Background()) }()
	return fn(svc)
}

// accountFor prefers the explicit flag and falls back to the signer.
func accountFor(svc *setup.Services, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if signer.Ready(svc.Signer) {
		return svc.Signer.Address(), nil
	}
	return "", vaulterr.InvalidArg("account", "pass --account or unlock a keystore")
}

// signerAccount is the account every write is signed by.
func signerAccount(svc *setup.Services) (string, error) {
	if !signer.Ready(svc.Signer) {
		return "", &vaulterr.SignerUnavailable{Reason: "no keystore unlocked", Cause: signer.ErrNotReady}
	}
	return svc.Signer.Address(), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
