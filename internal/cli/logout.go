package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/client"
)

func newLogoutCmd() *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		Long:  "Revokes the stored API key on the server and removes it from the config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(os.Stdout, !keep)
		},
	}

	cmd.Flags().BoolVar(&keep, "keep-key", false, "remove the key locally without revoking it")

	return cmd
}

func runLogout(out io.Writer, revoke bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.APIKey == "" {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}

	if revoke {
		server := cfg.ServerURL
		if server == "" {
			server = getServerURL()
		}
		if err := revokeKey(client.New(server, cfg.APIKey), cfg.APIKey); err != nil {
			fmt.Fprintf(out, "warning: could not revoke key on server: %v\n", err)
		}
	}

	cfg.APIKey = ""
	cfg.Address = ""
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintln(out, "✓ Logged out. API key removed.")
	return nil
}

// revokeKey deletes the server-side record of rawKey, found by its prefix.
func revokeKey(c *client.Client, rawKey string) error {
	keys, err := c.ListKeys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.KeyPrefix != "" && strings.HasPrefix(rawKey, k.KeyPrefix) {
			return c.DeleteKey(k.ID)
		}
	}
	return fmt.Errorf("key not found")
}
