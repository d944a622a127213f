package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/client"
	"github.com/evcraddock/estate-market/internal/sale"
)

func newSalesCmd() *cobra.Command {
	var (
		f    client.SaleFilter
		mine bool
	)

	cmd := &cobra.Command{
		Use:   "sales [property-id]",
		Short: "List sales",
		Long:  "List marketplace sales, newest first. Pass a property ID to see one property's history, or --mine for offers you made or received.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				f.PropertyID = id
			}
			if f.Status != "" && !sale.Status(f.Status).IsValid() {
				return fmt.Errorf("invalid status %q (pending|completed|cancelled)", f.Status)
			}
			return runSales(f, mine)
		},
	}

	cmd.Flags().StringVar(&f.Status, "status", "", "pending|completed|cancelled")
	cmd.Flags().StringVar(&f.Buyer, "buyer", "", "only offers from this address")
	cmd.Flags().StringVar(&f.Seller, "seller", "", "only offers to this address")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum number of results")
	cmd.Flags().BoolVar(&mine, "mine", false, "offers made and received by the logged-in wallet")

	return cmd
}

func runSales(f client.SaleFilter, mine bool) error {
	c := newAPIClient()

	if !mine {
		sales, err := c.ListSales(f)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(sales)
		}
		return printSaleTable(os.Stdout, sales)
	}

	address, err := currentAddress(c)
	if err != nil {
		return err
	}

	buying := f
	buying.Buyer = address
	made, err := c.ListSales(buying)
	if err != nil {
		return err
	}
	selling := f
	selling.Seller = address
	received, err := c.ListSales(selling)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(map[string][]*sale.Sale{"made": made, "received": received})
	}
	fmt.Println("Offers made:")
	if err := printSaleTable(os.Stdout, made); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("Offers received:")
	return printSaleTable(os.Stdout, received)
}

func newBuyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy <property-id> <price>",
		Short: "Make an offer on a property",
		Long:  "Open a pending sale for a property at the given price in whole US dollars.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			price, err := parsePrice(args[1])
			if err != nil {
				return err
			}

			s, err := newAPIClient().CreateSale(id, price)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(s)
			}
			printSale(os.Stdout, "created", s)
			return nil
		},
	}
}

func newCompleteCmd() *cobra.Command {
	var txHash string

	cmd := &cobra.Command{
		Use:   "complete <sale-id>",
		Short: "Accept an offer on a property you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newAPIClient().CompleteSale(args[0], txHash)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(s)
			}
			printSale(os.Stdout, "completed", s)
			return nil
		},
	}

	cmd.Flags().StringVar(&txHash, "tx", "", "transaction hash of the on-chain transfer")

	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <sale-id>",
		Short: "Withdraw or decline a pending offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newAPIClient().CancelSale(args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(s)
			}
			printSale(os.Stdout, "cancelled", s)
			return nil
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid property ID: %s", s)
	}
	return id, nil
}

// parsePrice accepts whole dollars with optional "$" and thousands separators.
func parsePrice(s string) (int64, error) {
	clean := strings.NewReplacer("$", "", ",", "", "_", "").Replace(strings.TrimSpace(s))
	price, err := strconv.ParseInt(clean, 10, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid price %q: enter a positive whole dollar amount", s)
	}
	return price, nil
}
