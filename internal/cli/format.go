package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/evcraddock/estate-market/internal/format"
	"github.com/evcraddock/estate-market/internal/property"
	"github.com/evcraddock/estate-market/internal/sale"
	"github.com/evcraddock/estate-market/internal/wallet"
)

// printJSON marshals v as indented JSON and writes it to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPropertySummary prints a single property in text format.
func printPropertySummary(w io.Writer, p *property.Property) {
	fmt.Fprintf(w, "Property #%d (token %s)\n", p.ID, p.TokenID)
	fmt.Fprintf(w, "  Name:      %s\n", p.Name)
	fmt.Fprintf(w, "  Address:   %s\n", p.Location.Address)
	if p.Location.City != "" {
		fmt.Fprintf(w, "  City:      %s\n", p.Location.City)
	}
	fmt.Fprintf(w, "  Valuation: %s\n", format.USD(p.Valuation))
	fmt.Fprintf(w, "  Owner:     %s\n", p.Owner)
	if p.Bedrooms != nil {
		fmt.Fprintf(w, "  Beds:      %g\n", *p.Bedrooms)
	}
	if p.Bathrooms != nil {
		fmt.Fprintf(w, "  Baths:     %g\n", *p.Bathrooms)
	}
	if p.Sqft != nil {
		fmt.Fprintf(w, "  Sqft:      %s\n", format.Number(*p.Sqft))
	}
	if p.YearBuilt != nil {
		fmt.Fprintf(w, "  Built:     %d\n", *p.YearBuilt)
	}
	if p.PropertyType != nil {
		fmt.Fprintf(w, "  Type:      %s\n", *p.PropertyType)
	}
	if p.Geohash != "" {
		fmt.Fprintf(w, "  Geohash:   %s\n", p.Geohash)
	}
}

// printPropertyTable prints a list of properties as a formatted table.
func printPropertyTable(w io.Writer, props []*property.Property) error {
	if len(props) == 0 {
		fmt.Fprintln(w, "No properties found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tTOKEN\tNAME\tCITY\tVALUATION\tOWNER"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(tw, "--\t-----\t----\t----\t---------\t-----"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for _, p := range props {
		city := p.Location.City
		if city == "" {
			city = "-"
		}
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.TokenID, truncate(p.Name, 32), city, format.USD(p.Valuation), format.ShortAddress(p.Owner)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	fmt.Fprintf(w, "\nTotal: %s\n", format.Count(int64(len(props)), "property", "properties"))
	return nil
}

// printSaleTable prints sales as a formatted table.
func printSaleTable(w io.Writer, sales []*sale.Sale) error {
	if len(sales) == 0 {
		fmt.Fprintln(w, "No sales found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tPROPERTY\tPRICE\tSELLER\tBUYER\tSTATUS\tCREATED"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, s := range sales {
		if _, err := fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.PropertyID, format.USD(s.Price),
			format.ShortAddress(s.Seller), format.ShortAddress(s.Buyer),
			s.Status.Label(), s.CreatedAt.Format("2006-01-02 15:04")); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return tw.Flush()
}

// printSale prints one sale after it changes.
func printSale(w io.Writer, verb string, s *sale.Sale) {
	fmt.Fprintf(w, "Sale %s %s.\n", s.ID, verb)
	fmt.Fprintf(w, "  Property: #%d\n", s.PropertyID)
	fmt.Fprintf(w, "  Price:    %s\n", format.USD(s.Price))
	fmt.Fprintf(w, "  Status:   %s\n", s.Status.Label())
	if s.TxHash != "" {
		fmt.Fprintf(w, "  Tx:       %s\n", s.TxHash)
	}
}

// printAccount prints a wallet account in text format.
func printAccount(w io.Writer, a *wallet.Account) {
	fmt.Fprintf(w, "Address: %s\n", a.Address)
	fmt.Fprintf(w, "Balance: %s %s\n", a.Balance, a.Currency)
	fmt.Fprintf(w, "Network: %s (chain %d)\n", a.Network, a.ChainID)
	if a.Explorer != "" {
		fmt.Fprintf(w, "Explorer: %s\n", a.Explorer)
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
