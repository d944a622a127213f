package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show property details",
		Long:  "Show full details for a property, including its sales history.",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	resp, err := newAPIClient().GetProperty(id)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(resp)
	}

	printPropertySummary(os.Stdout, resp.Property)
	fmt.Println()
	if len(resp.Sales) == 0 {
		fmt.Println("No sales yet.")
		return nil
	}
	fmt.Printf("Sales (%d):\n", len(resp.Sales))
	return printSaleTable(os.Stdout, resp.Sales)
}
