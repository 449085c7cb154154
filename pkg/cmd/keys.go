package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/signer/file"
)

// KeysCmd returns a command for managing the local wallet key.
func KeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the local wallet key",
	}

	cmd.AddCommand(createKeyCmd())
	cmd.AddCommand(exportKeyCmd())
	cmd.AddCommand(importKeyCmd())
	cmd.AddCommand(addressCmd())

	return cmd
}

func keyDir(cmd *cobra.Command) (string, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.KeyDir(), nil
}

func createKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a new encrypted wallet key",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := keyDir(cmd)
			if err != nil {
				return err
			}
			passphrase, err := readPassphrase(cmd)
			if err != nil {
				return err
			}

			s, err := file.CreateFileSystemSigner(dir, passphrase)
			if err != nil {
				return fmt.Errorf("failed to create key: %w", err)
			}
			addr, err := s.Address()
			if err != nil {
				return err
			}
			cmd.Printf("Created key for %s in %s\n", addr.Hex(), file.KeyFilePath(dir))
			return nil
		},
	}
	cmd.Flags().String(config.FlagWalletPassphrase, "", "Passphrase to encrypt the new key")
	return cmd
}

func exportKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the private key to plain text",
		Long: `Export the locally saved wallet key to plain text.
This allows the key to be imported into a browser wallet or a password manager.

WARNING: The exported key is not encrypted. Handle it with extreme care.
Anyone with access to the exported key can add evidence or change roles on your behalf.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := keyDir(cmd)
			if err != nil {
				return err
			}
			passphrase, err := readPassphrase(cmd)
			if err != nil {
				return err
			}

			cmd.PrintErrln("WARNING: EXPORTING PRIVATE KEY. HANDLE WITH EXTREME CARE.")
			cmd.PrintErrln("ANYONE WITH ACCESS TO THIS KEY CAN SIGN TRANSACTIONS ON YOUR BEHALF.")

			s, err := file.LoadFileSystemSigner(dir, passphrase)
			if err != nil {
				return fmt.Errorf("failed to export private key: %w", err)
			}
			hexKey, err := s.ExportPrivateKey()
			if err != nil {
				return fmt.Errorf("failed to export private key: %w", err)
			}
			cmd.Println(hexKey)
			return nil
		},
	}
	cmd.Flags().String(config.FlagWalletPassphrase, "", "Passphrase of the wallet key")
	return cmd
}

func importKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [hex-private-key]",
		Short: "Import a private key from plain text",
		Long: `Import a hex encoded private key and store it encrypted locally.

WARNING: This command will overwrite any existing key.
If a key file exists in your home directory, you must use the --force flag.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := keyDir(cmd)
			if err != nil {
				return err
			}

			filePath := file.KeyFilePath(dir)
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(filePath); err == nil {
				if !force {
					return fmt.Errorf("key file already exists at %s. Use --force to overwrite", filePath)
				}
				if err := os.Remove(filePath); err != nil {
					return fmt.Errorf("failed to remove existing key: %w", err)
				}
			}

			passphrase, err := readPassphrase(cmd)
			if err != nil {
				return err
			}
			s, err := file.ImportFileSystemSigner(dir, args[0], passphrase)
			if err != nil {
				return fmt.Errorf("failed to import private key: %w", err)
			}
			addr, err := s.Address()
			if err != nil {
				return err
			}

			cmd.Printf("Successfully imported key for %s and saved to %s\n", addr.Hex(), filePath)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Overwrite existing key file if it exists")
	cmd.Flags().String(config.FlagWalletPassphrase, "", "Passphrase to encrypt the imported key")
	return cmd
}

func addressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the account of the local wallet key",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := keyDir(cmd)
			if err != nil {
				return err
			}
			addr, err := file.ReadAddress(dir)
			if err != nil {
				return err
			}
			cmd.Println(addr.Hex())
			return nil
		},
	}
}
