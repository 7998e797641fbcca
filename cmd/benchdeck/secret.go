package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"benchdeck/internal/audit"
	"benchdeck/internal/config"
	"benchdeck/internal/keychain"
	"benchdeck/internal/settings"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage provider API keys in the system keychain",
}

func cliCredentialStore() (*keychain.AuditedStore, func(), error) {
	if err := os.MkdirAll(config.DefaultDir(), 0700); err != nil {
		return nil, nil, fmt.Errorf("creating state dir: %w", err)
	}
	auditLog, err := audit.NewLogger(auditLogPath())
	if err != nil {
		return nil, nil, err
	}
	store := keychain.NewAuditedStore(keychain.NewSystemStore(), auditLog, "cli")
	return store, func() { auditLog.Close() }, nil
}

var secretSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Store an API key in the keychain",
	Long:  "Store an API key. If value is omitted, reads from stdin (useful for piping).",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := cliCredentialStore()
		if err != nil {
			return err
		}
		defer done()
		key := args[0]

		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			if term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Print("Enter key value: ")
				b, err := term.ReadPassword(int(os.Stdin.Fd()))
				if err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
				fmt.Println()
				value = string(b)
			} else {
				b, err := os.ReadFile("/dev/stdin")
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				value = strings.TrimRight(string(b), "\n")
			}
		}

		if err := store.Set(key, value); err != nil {
			return err
		}
		fmt.Printf("Credential %q stored\n", key)
		return nil
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Retrieve an API key from the keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := cliCredentialStore()
		if err != nil {
			return err
		}
		defer done()
		val, err := store.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(val)
		return nil
	},
}

var secretListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored API keys",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := cliCredentialStore()
		if err != nil {
			return err
		}
		defer done()
		keys, err := store.List()
		if err != nil {
			return err
		}

		if len(keys) == 0 {
			fmt.Println("No credentials stored")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY")
		for _, k := range keys {
			fmt.Fprintln(w, k)
		}
		w.Flush()
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:     "delete <key>",
	Short:   "Remove an API key from the keychain",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := cliCredentialStore()
		if err != nil {
			return err
		}
		defer done()
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Credential %q deleted\n", args[0])
		return nil
	},
}

// secret link maps a worker environment variable to a stored keychain key.
// The daemon resolves the mapping when spawning the worker, so the key value
// never lands in the config file.
var secretLinkCmd = &cobra.Command{
	Use:   "link <ENV_VAR> <key>",
	Short: "Expose a stored key to the worker as an environment variable",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.DefaultPath())
		if err != nil {
			return err
		}
		store := settings.NewStore(cfg.SettingsPath)
		if err := store.SetCredentialKey(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Worker will receive %s from credential %q on next start\n", args[0], args[1])
		return nil
	},
}

var secretUnlinkCmd = &cobra.Command{
	Use:   "unlink <ENV_VAR>",
	Short: "Stop exposing a credential to the worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.DefaultPath())
		if err != nil {
			return err
		}
		store := settings.NewStore(cfg.SettingsPath)
		if err := store.RemoveCredentialKey(args[0]); err != nil {
			return err
		}
		fmt.Printf("Unlinked %s\n", args[0])
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretGetCmd)
	secretCmd.AddCommand(secretListCmd)
	secretCmd.AddCommand(secretDeleteCmd)
	secretCmd.AddCommand(secretLinkCmd)
	secretCmd.AddCommand(secretUnlinkCmd)
	rootCmd.AddCommand(secretCmd)
}
