package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connection and auth status",
		Long:  "Tests the connection to the server, shows its network and checks if the stored API key is valid.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(os.Stdout)
		},
	}
}

func runStatus(out io.Writer) error {
	serverURL := getServerURL()
	apiKey := getAPIKey()

	fmt.Fprintf(out, "Server:  %s\n", serverURL)

	c := client.New(serverURL, apiKey)
	network, err := c.Network()
	if err != nil {
		fmt.Fprintf(out, "Status:  ✗ cannot reach server (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "Network: %s (chain %d)\n", network.Name, network.ChainID)

	if apiKey == "" {
		fmt.Fprintln(out, "API Key: not configured")
		fmt.Fprintln(out, "\nRun 'em login' to sign in with your wallet.")
		return nil
	}

	prefix := apiKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	fmt.Fprintf(out, "API Key: %s…\n", prefix)

	address, err := c.Me()
	if err != nil {
		fmt.Fprintf(out, "Status:  ✗ %v\n", err)
		fmt.Fprintln(out, "\nRun 'em login' to re-authenticate.")
		return nil
	}
	fmt.Fprintf(out, "Wallet:  %s\n", address)
	fmt.Fprintln(out, "Status:  ✓ connected and authenticated")
	return nil
}
