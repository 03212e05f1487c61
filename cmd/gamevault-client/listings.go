package main

import (
	"github.com/spf13/cobra"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/listings"
	"github.com/quantumauth-io/gamevault-client/internal/setup"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

func newListingsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Browse and manage game listings",
	}
	cmd.AddCommand(
		newListingsAllCmd(c),
		newListingsMineCmd(c),
		newListingsRegisterCmd(c),
		newListingsSetActiveCmd(c),
	)
	return cmd
}

func newListingsAllCmd(c *cli) *cobra.Command {
	var includeInactive bool
	cmd := &cobra.Command{
		Use:   "all",
		Short: "List games in the catalog",
		Long: `List games in the catalog. Only active listings are shown unless
--include-inactive is set.

Examples:
  gamevault-client listings all
  gamevault-client listings all | jq '.[].title'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, false, func(svc *setup.Services) error {
				var (
					out []listings.Listing
					err error
				)
				if includeInactive {
					out, err = svc.Listings.AllListings(cmd.Context())
				} else {
					out, err = svc.Listings.AllActiveListings(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().BoolVar(&includeInactive, "include-inactive", false, "also list inactive games")
	return cmd
}

func newListingsMineCmd(c *cli) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List games registered by a seller",
		Long: `List games registered by a seller. Without --account the keystore is
unlocked and its address is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, account == "", func(svc *setup.Services) error {
				seller, err := accountFor(svc, account)
				if err != nil {
					return err
				}
				out, err := svc.Listings.ListingsBySeller(cmd.Context(), seller)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "seller address")
	return cmd
}

func newListingsRegisterCmd(c *cli) *cobra.Command {
	var in struct {
		title       string
		description string
		uri         string
		price       string
	}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new game listing",
		Long: `Register a new game listing signed by the keystore account.

Price is a decimal coin amount; omit it for a free game.

Examples:
  gamevault-client listings register --title Celeste --description "Climb" --price 5.99`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var price uint64
			if in.price != "" {
				p, err := codec.ParseAmount(in.price)
				if err != nil {
					return vaulterr.InvalidArg("price", err.Error())
				}
				price = p
			}
			return c.withSession(cmd, true, func(svc *setup.Services) error {
				res, err := svc.Listings.RegisterListing(cmd.Context(), listings.NewListing{
					Title:       in.title,
					Description: in.description,
					MetadataURI: in.uri,
					Price:       price,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&in.title, "title", "", "game title")
	cmd.Flags().StringVar(&in.description, "description", "", "game description")
	cmd.Flags().StringVar(&in.uri, "uri", "", "metadata uri")
	cmd.Flags().StringVar(&in.price, "price", "", "price, e.g. 5.99 (default free)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newListingsSetActiveCmd(c *cli) *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "set-active <gameId>",
		Short: "Activate or deactivate one of your listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, true, func(svc *setup.Services) error {
				hash, err := svc.Listings.SetActive(cmd.Context(), args[0], active)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"hash":    hash,
					"game_id": args[0],
					"active":  active,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", true, "listing state; --active=false deactivates")
	return cmd
}
