package main

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/quantumauth-io/gamevault-client/internal/helpers"
	"github.com/quantumauth-io/gamevault-client/internal/setup"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
)

type keyInfo struct {
	Address  string `json:"address"`
	Keystore string `json:"keystore"`
}

func newKeygenCmd(c *cli) *cobra.Command {
	var importSeed bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create an encrypted keystore for a new account",
		Long: `Create an encrypted keystore holding one ed25519 account key.

An existing keystore is never overwritten. With --import the 32 byte seed is
read as 0x-prefixed hex from the prompt instead of being generated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := setup.KeystorePath(c.cfg.Signer)
			if err != nil {
				return err
			}
			ks := signer.Keystore{Path: path}
			if ks.Exists() {
				return errors.Wrapf(signer.ErrKeystoreExists, "%s", path)
			}

			var seed []byte
			if importSeed {
				seed, err = hexutil.Decode(c.prompter.LineWithDefault("Seed (hex)", ""))
				if err != nil {
					return errors.Wrap(err, "decode seed")
				}
				defer helpers.ZeroBytes(seed)
			}

			pw, err := c.prompter.NewPassword()
			if err != nil {
				return err
			}
			defer helpers.ZeroBytes(pw)

			var addr string
			if seed != nil {
				addr, err = ks.Import(seed, pw)
			} else {
				addr, err = ks.Create(pw)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), keyInfo{Address: addr, Keystore: path})
		},
	}
	cmd.Flags().BoolVar(&importSeed, "import", false, "import an existing hex seed")
	return cmd
}

func newAddressCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Unlock the keystore and print its account address",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := setup.KeystorePath(c.cfg.Signer)
			if err != nil {
				return err
			}
			pw, err := c.prompter.Password("Keystore password: ")
			if err != nil {
				return err
			}
			defer helpers.ZeroBytes(pw)

			seed, addr, err := signer.Keystore{Path: path}.Unlock(pw)
			if err != nil {
				return err
			}
			helpers.ZeroBytes(seed)
			return printJSON(cmd.OutOrStdout(), keyInfo{Address: addr, Keystore: path})
		},
	}
}
