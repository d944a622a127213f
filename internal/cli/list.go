package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/client"
)

func newListCmd() *cobra.Command {
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List marketplace properties",
		Long:  "List indexed properties, optionally filtered by city, valuation range, geohash prefix or owner.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts)
		},
	}

	cmd.Flags().StringVar(&opts.City, "city", "", "only properties in this city")
	cmd.Flags().Int64Var(&opts.Min, "min", 0, "minimum valuation in USD")
	cmd.Flags().Int64Var(&opts.Max, "max", 0, "maximum valuation in USD")
	cmd.Flags().StringVar(&opts.Near, "near", "", "geohash prefix, e.g. 9v6k")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "only properties owned by this address")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "token|newest|valuation_asc|valuation_desc|name")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of results")

	return cmd
}

func runList(opts client.ListOptions) error {
	props, err := newAPIClient().ListProperties(opts)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(props)
	}
	return printPropertyTable(os.Stdout, props)
}
