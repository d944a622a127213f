// Package dashboard assembles the per-visitor dashboard view.
package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/property"
	"github.com/evcraddock/estate-market/internal/sale"
	"github.com/evcraddock/estate-market/internal/wallet"
)

// Accounts resolves wallet state. *wallet.Provider satisfies it.
type Accounts interface {
	Account(ctx context.Context, address string) (*wallet.Account, error)
}

// Holdings enumerates owned tokens. *property.Service satisfies it.
type Holdings interface {
	Owned(ctx context.Context, owner string) ([]*property.Property, error)
}

// Dashboard is everything the dashboard page shows. When Connected is
// false only the connect prompt and market figures are meaningful.
type Dashboard struct {
	Connected      bool                 `json:"connected"`
	Account        *wallet.Account      `json:"account,omitempty"`
	Owned          []*property.Property `json:"owned"`
	PortfolioValue int64                `json:"portfolio_value"`
	Purchases      []*sale.Sale         `json:"purchases"`
	Offers         []*sale.Sale         `json:"offers"` // pending sales of the visitor's properties
	Market         *property.Stats      `json:"market,omitempty"`
	Sales          *sale.Stats          `json:"sales,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// Builder builds dashboards.
type Builder struct {
	accounts   Accounts
	holdings   Holdings
	properties *property.Repository
	sales      *sale.Repository
}

// NewBuilder creates a Builder. holdings may be nil when no chain is configured.
func NewBuilder(accounts Accounts, holdings Holdings, properties *property.Repository, sales *sale.Repository) *Builder {
	return &Builder{accounts: accounts, holdings: holdings, properties: properties, sales: sales}
}

const recentSales = 5

// Build assembles the dashboard for address; "" is a disconnected visitor.
// Chain failures are reported in Dashboard.Error rather than returned, so
// the page can render an inline error state. Only local storage failures
// are returned.
func (b *Builder) Build(ctx context.Context, address string) (*Dashboard, error) {
	d := &Dashboard{}

	market, err := b.properties.Stats()
	if err != nil {
		return nil, err
	}
	d.Market = market

	saleStats, err := b.sales.Stats()
	if err != nil {
		return nil, err
	}
	d.Sales = saleStats

	if address == "" {
		return d, nil
	}

	acct, err := b.accounts.Account(ctx, address)
	if err != nil {
		d.Error = ChainError(err)
		slog.Warn("dashboard account lookup failed", "address", address, "err", err)
		return d, nil
	}
	d.Account = acct
	d.Connected = acct.Connected
	if !d.Connected {
		return d, nil
	}

	d.Purchases, err = b.sales.List(sale.ListOptions{Buyer: acct.Address, Limit: recentSales})
	if err != nil {
		return nil, err
	}
	d.Offers, err = b.sales.List(sale.ListOptions{Seller: acct.Address, Status: sale.StatusPending})
	if err != nil {
		return nil, err
	}

	if b.holdings == nil {
		d.Error = ChainError(chain.ErrNoBackend)
		return d, nil
	}
	owned, err := b.holdings.Owned(ctx, acct.Address)
	if err != nil {
		d.Error = ChainError(err)
		slog.Warn("dashboard owned tokens failed", "address", acct.Address, "err", err)
		return d, nil
	}
	d.Owned = owned
	for _, p := range owned {
		d.PortfolioValue += p.Valuation
	}

	return d, nil
}

// ChainError turns a chain read failure into the message shown inline.
func ChainError(err error) string {
	switch {
	case errors.Is(err, chain.ErrNoBackend):
		return "No wallet provider is available. Configure a blockchain network to see your account."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The blockchain request timed out. Reload to try again."
	default:
		return "Couldn't reach the blockchain: " + err.Error()
	}
}
