package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var defaultNetworks []byte

// Contracts holds the deployed contract addresses of a network.
type Contracts struct {
	PropertyToken string `yaml:"property_token" json:"property_token"`
	Marketplace   string `yaml:"marketplace,omitempty" json:"marketplace,omitempty"`
}

// Network is a chain the marketplace reads from.
type Network struct {
	Name        string    `yaml:"-" json:"name"`
	ChainID     int64     `yaml:"chain_id" json:"chain_id"`
	RPCURL      string    `yaml:"rpc_url" json:"rpc_url"`
	ExplorerURL string    `yaml:"explorer_url,omitempty" json:"explorer_url,omitempty"`
	Currency    string    `yaml:"currency,omitempty" json:"currency,omitempty"`
	Contracts   Contracts `yaml:"contracts" json:"contracts"`
}

// Validate checks that a network can be used for contract reads.
func (n Network) Validate() error {
	if n.ChainID <= 0 {
		return fmt.Errorf("network %s: chain_id must be positive", n.Name)
	}
	if strings.TrimSpace(n.RPCURL) == "" {
		return fmt.Errorf("network %s: rpc_url is required", n.Name)
	}
	if !common.IsHexAddress(n.Contracts.PropertyToken) {
		return fmt.Errorf("network %s: invalid property_token address %q", n.Name, n.Contracts.PropertyToken)
	}
	if n.Contracts.Marketplace != "" && !common.IsHexAddress(n.Contracts.Marketplace) {
		return fmt.Errorf("network %s: invalid marketplace address %q", n.Name, n.Contracts.Marketplace)
	}
	return nil
}

// AddressURL returns the block explorer link for an address, or "" without an explorer.
func (n Network) AddressURL(address string) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimSuffix(n.ExplorerURL, "/") + "/address/" + address
}

// Networks maps network names to their configuration.
type Networks map[string]Network

// LoadNetworks reads networks from a YAML file. An empty path returns the
// built-in networks.
func LoadNetworks(path string) (Networks, error) {
	data := defaultNetworks
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading networks file: %w", err)
		}
	}
	return ParseNetworks(data)
}

// ParseNetworks decodes a YAML networks document.
func ParseNetworks(data []byte) (Networks, error) {
	var doc struct {
		Networks map[string]Network `yaml:"networks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing networks: %w", err)
	}
	if len(doc.Networks) == 0 {
		return nil, fmt.Errorf("no networks defined")
	}

	nets := make(Networks, len(doc.Networks))
	for name, n := range doc.Networks {
		n.Name = name
		if n.Currency == "" {
			n.Currency = "ETH"
		}
		nets[name] = n
	}
	return nets, nil
}

// Get returns a validated network by name.
func (n Networks) Get(name string) (Network, error) {
	net, ok := n[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (known: %s)", name, strings.Join(n.Names(), ", "))
	}
	if err := net.Validate(); err != nil {
		return Network{}, err
	}
	return net, nil
}

// Names returns the sorted network names.
func (n Networks) Names() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveNetwork loads the networks file named by the config and returns the
// selected network, with EM_RPC_URL overriding its RPC endpoint.
func (c *Config) ResolveNetwork() (Network, error) {
	nets, err := LoadNetworks(c.NetworksFile)
	if err != nil {
		return Network{}, err
	}
	net, ok := nets[c.Network]
	if ok && c.RPCURL != "" {
		net.RPCURL = c.RPCURL
		nets[c.Network] = net
	}
	return nets.Get(c.Network)
}
