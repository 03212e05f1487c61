package main

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/licenses"
	"github.com/quantumauth-io/gamevault-client/internal/setup"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

var errNoValidLicense = errors.New("no valid license for this game")

type licenseRow struct {
	licenses.LicenseView
	Valid bool `json:"valid"`
}

func newLicensesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "licenses",
		Short: "Buy, transfer and inspect game licenses",
	}
	cmd.AddCommand(
		newLicensesListCmd(c),
		newLicensesOwnsCmd(c),
		newLicensesLaunchCmd(c),
		newLicensesBalanceCmd(c),
		newLicensesBuyCmd(c),
		newLicensesTransferCmd(c),
	)
	return cmd
}

func newLicensesListCmd(c *cli) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an account's licenses joined with their listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, account == "", func(svc *setup.Services) error {
				owner, err := accountFor(svc, account)
				if err != nil {
					return err
				}
				views, err := svc.Licenses.LicensesForAccount(cmd.Context(), owner)
				if err != nil {
					return err
				}
				now := time.Now()
				out := make([]licenseRow, 0, len(views))
				for _, v := range views {
					out = append(out, licenseRow{LicenseView: v, Valid: v.Valid(now)})
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "owner address (default keystore account)")
	return cmd
}

func newLicensesOwnsCmd(c *cli) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "owns <gameId>",
		Short: "Check whether an account holds a license for a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, account == "", func(svc *setup.Services) error {
				owner, err := accountFor(svc, account)
				if err != nil {
					return err
				}
				owned, err := svc.Licenses.OwnsLicense(cmd.Context(), owner, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"account": owner, "game_id": args[0], "owned": owned})
			})
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "owner address (default keystore account)")
	return cmd
}

func newLicensesLaunchCmd(c *cli) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "launch <gameId>",
		Short: "Check whether an account may launch a game",
		Long:  `Check whether an account holds an unexpired license for a game. Exits non-zero when it does not.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, account == "", func(svc *setup.Services) error {
				owner, err := accountFor(svc, account)
				if err != nil {
					return err
				}
				ok, err := svc.Licenses.CanLaunch(cmd.Context(), owner, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), map[string]any{"account": owner, "game_id": args[0], "can_launch": ok}); err != nil {
					return err
				}
				if !ok {
					return errNoValidLicense
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "owner address (default keystore account)")
	return cmd
}

func newLicensesBalanceCmd(c *cli) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an account's spendable coin balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, account == "", func(svc *setup.Services) error {
				owner, err := accountFor(svc, account)
				if err != nil {
					return err
				}
				bal, err := svc.Licenses.Balance(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"account": owner,
					"balance": strconv.FormatUint(bal, 10),
					"display": codec.FormatAmount(bal),
				})
			})
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "account address (default keystore account)")
	return cmd
}

func newLicensesBuyCmd(c *cli) *cobra.Command {
	var (
		expiry       uint64
		transferable bool
	)
	cmd := &cobra.Command{
		Use:   "buy <gameId>",
		Short: "Buy a license for a game with the keystore account",
		Long: `Buy a license for a game with the keystore account.

The balance is checked before anything is signed. --expiry is a unix time in
seconds; 0 means the license never expires.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, true, func(svc *setup.Services) error {
				buyer, err := signerAccount(svc)
				if err != nil {
					return err
				}
				res, err := svc.Licenses.Purchase(cmd.Context(), licenses.PurchaseRequest{
					Account:      buyer,
					GameID:       args[0],
					Expiry:       expiry,
					Transferable: transferable,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().Uint64Var(&expiry, "expiry", 0, "expiry as unix seconds (0 = never)")
	cmd.Flags().BoolVar(&transferable, "transferable", false, "allow the license to be transferred later")
	return cmd
}

func newLicensesTransferCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <licenseId> <to>",
		Short: "Transfer a license to another account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return vaulterr.InvalidArg("license_id", "must be a decimal license id")
			}
			return c.withSession(cmd, true, func(svc *setup.Services) error {
				from, err := signerAccount(svc)
				if err != nil {
					return err
				}
				res, err := svc.Licenses.Transfer(cmd.Context(), licenses.TransferRequest{
					Account:   from,
					LicenseID: id,
					To:        args[1],
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}
