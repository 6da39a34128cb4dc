package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/storecrew/internal/store"
	"github.com/mtzanidakis/storecrew/internal/vault"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage encrypted credentials",
		Long: `Secrets are sealed with STORECREW_VAULT_PASSPHRASE and stored in the
run database. Reference one from the config as "secret:<name>", for
example access_token: secret:shopify-token.`,
	}
	cmd.AddCommand(newSecretSetCmd(), newSecretListCmd(), newSecretDeleteCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	var value, file, description string
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret from --value or --file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := secretValue(value, file)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v, err := vault.New(cfg.Vault.Passphrase)
			if err != nil {
				return err
			}
			db, err := store.New(cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			if err := vault.NewKeeper(v, db).Set(args[0], description, plain); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret %q saved.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "secret value")
	cmd.Flags().StringVar(&file, "file", "", "read the secret value from a file")
	cmd.Flags().StringVar(&description, "description", "", "what the secret is for")
	cmd.MarkFlagsMutuallyExclusive("value", "file")
	return cmd
}

func secretValue(value, file string) (string, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	case value != "":
		return value, nil
	default:
		return "", &usageError{msg: "secret set needs --value or --file"}
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List secrets (names and descriptions only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			secrets, err := db.ListSecrets()
			if err != nil {
				return err
			}
			return writeSecrets(cmd.OutOrStdout(), secrets)
		},
	}
}

func writeSecrets(w io.Writer, secrets []store.Secret) error {
	if len(secrets) == 0 {
		fmt.Fprintln(w, "No secrets stored.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION\tUPDATED")
	for _, s := range secrets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Description, s.UpdatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			ok, err := db.DeleteSecret(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", vault.ErrSecretNotFound, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret %q deleted.\n", args[0])
			return nil
		},
	}
}
