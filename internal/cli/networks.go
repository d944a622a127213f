package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/config"
)

func newNetworksCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List known chain networks and contract addresses",
		Long:  "List the networks the server can be pointed at with EM_NETWORK. Reads the built-in list unless --file (or EM_NETWORKS_FILE) names another.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv("EM_NETWORKS_FILE")
			}
			return runNetworks(file)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "networks YAML file")

	return cmd
}

func runNetworks(file string) error {
	nets, err := config.LoadNetworks(file)
	if err != nil {
		return err
	}

	if isJSON() {
		list := make([]config.Network, 0, len(nets))
		for _, name := range nets.Names() {
			list = append(list, nets[name])
		}
		return printJSON(list)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "NAME\tCHAIN\tCURRENCY\tRPC\tPROPERTY TOKEN"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, name := range nets.Names() {
		n := nets[name]
		if _, err := fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", name, n.ChainID, n.Currency, n.RPCURL, n.Contracts.PropertyToken); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return w.Flush()
}
