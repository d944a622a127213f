package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/client"
)

// currentAddress returns the logged-in wallet, asking the server when the
// config doesn't record one.
func currentAddress(c *client.Client) (string, error) {
	if a := getAddress(); a != "" {
		return a, nil
	}
	if getAPIKey() == "" {
		return "", fmt.Errorf("not logged in; run 'em login' or pass an address")
	}
	return c.Me()
}

// addressArg resolves an optional address argument.
func addressArg(c *client.Client, args []string) (string, error) {
	if len(args) == 0 {
		return currentAddress(c)
	}
	addr, err := chain.ParseAddress(args[0])
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

func newOwnedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owned [address]",
		Short: "List properties a wallet owns on chain",
		Long:  "Read the property tokens held by an address from the chain. Defaults to the logged-in wallet.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient()
			address, err := addressArg(c, args)
			if err != nil {
				return err
			}

			props, err := c.OwnedTokens(address)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(props)
			}
			return printPropertyTable(os.Stdout, props)
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show a wallet's native balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient()
			address, err := addressArg(c, args)
			if err != nil {
				return err
			}

			acct, err := c.Account(address)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(acct)
			}
			printAccount(os.Stdout, acct)
			return nil
		},
	}
}
