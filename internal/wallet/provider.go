package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/config"
)

// Account is the wallet state shown to a visitor.
type Account struct {
	Connected  bool     `json:"connected"`
	Address    string   `json:"address,omitempty"`
	BalanceWei *big.Int `json:"balance_wei,omitempty"`
	Balance    string   `json:"balance,omitempty"` // ether, formatted
	Currency   string   `json:"currency,omitempty"`
	ChainID    int64    `json:"chain_id,omitempty"`
	Network    string   `json:"network,omitempty"`
	Explorer   string   `json:"explorer_url,omitempty"`
}

// Provider reads account state for connected addresses.
type Provider struct {
	backend chain.Backend
	network config.Network
}

// NewProvider creates a Provider. A nil backend is allowed; connected
// accounts then fail with chain.ErrNoBackend.
func NewProvider(backend chain.Backend, network config.Network) *Provider {
	return &Provider{backend: backend, network: network}
}

// Network returns the configured network.
func (p *Provider) Network() config.Network {
	return p.network
}

// Account returns the account for address. An empty address is a
// disconnected visitor and never touches the chain.
func (p *Provider) Account(ctx context.Context, address string) (*Account, error) {
	if address == "" {
		return &Account{Connected: false}, nil
	}

	addr, err := chain.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if p.backend == nil {
		return nil, chain.ErrNoBackend
	}

	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading chain id: %w", err)
	}
	if p.network.ChainID != 0 && chainID.Int64() != p.network.ChainID {
		return nil, fmt.Errorf("connected to chain %s, expected %d (%s)", chainID, p.network.ChainID, p.network.Name)
	}

	wei, err := p.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("reading balance: %w", err)
	}

	currency := p.network.Currency
	if currency == "" {
		currency = "ETH"
	}

	return &Account{
		Connected:  true,
		Address:    addr.Hex(),
		BalanceWei: wei,
		Balance:    FormatEther(wei),
		Currency:   currency,
		ChainID:    chainID.Int64(),
		Network:    p.network.Name,
		Explorer:   p.network.AddressURL(addr.Hex()),
	}, nil
}

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatEther renders a wei amount in ether with up to 4 decimals,
// truncating and trimming trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)

	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))
	fracStr := fmt.Sprintf("%018s", frac.String())[:4]
	fracStr = strings.TrimRight(fracStr, "0")

	out := whole.String()
	if fracStr != "" {
		out += "." + fracStr
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}
