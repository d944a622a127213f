package cli

import (
	"bufio"
	"crypto/ecdsa"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/client"
	"github.com/evcraddock/estate-market/internal/wallet"
)

const apiKeyPrefix = "em_"

type loginOptions struct {
	server  string
	key     string
	address string
	keyFile string
	name    string
}

func newLoginCmd() *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a wallet and store an API key",
		Long: `Proves wallet ownership by signing a challenge and stores the issued API key.

With --keyfile the challenge is signed locally with a hex private key (useful
for development chains). Otherwise the challenge is printed so you can sign it
in your wallet and paste the signature. --key stores an existing API key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(opts, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "", "server URL (default: from config or http://localhost:8080)")
	cmd.Flags().StringVar(&opts.key, "key", "", "store an existing API key instead of signing in")
	cmd.Flags().StringVar(&opts.address, "address", "", "wallet address to sign in with")
	cmd.Flags().StringVar(&opts.keyFile, "keyfile", "", "file holding a hex private key to sign with")
	cmd.Flags().StringVar(&opts.name, "name", "CLI", "name for the issued API key")

	return cmd
}

func runLogin(opts loginOptions, in io.Reader, out io.Writer) error {
	serverURL := opts.server
	if serverURL == "" {
		serverURL = getServerURL()
	}
	serverURL = strings.TrimRight(serverURL, "/")

	key, address := strings.TrimSpace(opts.key), ""
	if key == "" {
		var err error
		key, address, err = walletLogin(client.New(serverURL, ""), opts, in, out)
		if err != nil {
			return err
		}
	}
	if err := validateAPIKey(key); err != nil {
		return err
	}

	// Load existing config to preserve other fields
	cfg, err := loadConfig()
	if err != nil {
		cfg = CLIConfig{}
	}
	cfg.APIKey = key
	cfg.Address = address
	if opts.server != "" {
		cfg.ServerURL = serverURL
	}

	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if address != "" {
		fmt.Fprintf(out, "✓ Signed in as %s. API key saved.\n", address)
	} else {
		fmt.Fprintln(out, "✓ API key saved. You're logged in!")
	}
	return nil
}

// walletLogin runs the challenge/sign/connect exchange and returns the new
// API key and the wallet address it acts for.
func walletLogin(c *client.Client, opts loginOptions, in io.Reader, out io.Writer) (string, string, error) {
	signer, err := loadSigner(opts.keyFile)
	if err != nil {
		return "", "", err
	}

	address := strings.TrimSpace(opts.address)
	if signer != nil {
		derived := crypto.PubkeyToAddress(signer.PublicKey).Hex()
		if address != "" && !strings.EqualFold(address, derived) {
			return "", "", fmt.Errorf("keyfile belongs to %s, not %s", derived, address)
		}
		address = derived
	}
	if address == "" {
		return "", "", fmt.Errorf("pass --address (or --keyfile) to sign in, or --key to store an existing API key")
	}
	if _, err := chain.ParseAddress(address); err != nil {
		return "", "", err
	}

	ch, err := c.Challenge(address)
	if err != nil {
		return "", "", fmt.Errorf("requesting challenge: %w", err)
	}

	var sig string
	if signer != nil {
		sig, err = wallet.SignMessage(signer, ch.Message)
		if err != nil {
			return "", "", err
		}
	} else {
		fmt.Fprintln(out, "Sign this message with your wallet (personal_sign):")
		fmt.Fprintln(out)
		fmt.Fprintln(out, ch.Message)
		fmt.Fprintln(out)
		fmt.Fprint(out, "Paste the signature: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("reading input: %w", err)
		}
		sig = strings.TrimSpace(line)
		if sig == "" {
			return "", "", fmt.Errorf("no signature provided")
		}
	}

	resp, err := c.ConnectWithKey(ch.Token, sig, opts.name)
	if err != nil {
		return "", "", fmt.Errorf("signing in: %w", err)
	}
	return resp.Key.Key, resp.Address, nil
}

// loadSigner reads a hex private key from path. An empty path means the
// user signs in their wallet instead.
func loadSigner(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyfile: %w", err)
	}
	hexKey := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parsing keyfile: %w", err)
	}
	return key, nil
}

// validateAPIKey checks that the key is non-empty and has the expected prefix.
func validateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("no API key provided")
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return fmt.Errorf("invalid API key format (should start with %s)", apiKeyPrefix)
	}
	return nil
}
