package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/signer/file"
)

// InitCmd initializes a new evreg.yaml file in the home directory and,
// when a passphrase is given, creates the local wallet key.
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: fmt.Sprintf("Initialize a new %s file", config.ConfigFileName),
		Long: fmt.Sprintf(`This command initializes a new %s file in the home directory.

With --%s the local wallet key is created as well, encrypted with that passphrase.`,
			config.ConfigFileName, config.FlagWalletPassphrase),
		RunE: func(cmd *cobra.Command, args []string) error {
			homePath, err := cmd.Flags().GetString(config.FlagRootDir)
			if err != nil {
				return fmt.Errorf("error reading home flag: %w", err)
			}

			if homePath == "" {
				return fmt.Errorf("home path is required")
			}

			configFilePath := filepath.Join(homePath, config.ConfigFileName)
			if _, err := os.Stat(configFilePath); err == nil {
				return fmt.Errorf("%s file already exists in the specified directory", config.ConfigFileName)
			}

			cfg := config.DefaultConfig
			cfg.RootDir = homePath

			if cfg.Contract.Address, err = cmd.Flags().GetString(config.FlagContractAddress); err != nil {
				return fmt.Errorf("error reading contract address flag: %w", err)
			}
			if cfg.Wallet.Type, err = cmd.Flags().GetString(config.FlagWalletType); err != nil {
				return fmt.Errorf("error reading wallet type flag: %w", err)
			}
			if cfg.Wallet.RemoteURL, err = cmd.Flags().GetString(config.FlagWalletRemoteURL); err != nil {
				return fmt.Errorf("error reading remote wallet flag: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := cfg.SaveAsYaml(); err != nil {
				return fmt.Errorf("error writing %s file: %w", config.ConfigFileName, err)
			}
			cmd.Printf("Initialized %s file in %s\n", config.ConfigFileName, homePath)

			passphrase, err := cmd.Flags().GetString(config.FlagWalletPassphrase)
			if err != nil {
				return fmt.Errorf("error reading passphrase flag: %w", err)
			}
			if cfg.Wallet.Type != config.WalletTypeLocal || passphrase == "" {
				return nil
			}

			s, err := file.CreateFileSystemSigner(cfg.KeyDir(), []byte(passphrase))
			if err != nil {
				return fmt.Errorf("failed to initialize wallet key: %w", err)
			}
			addr, err := s.Address()
			if err != nil {
				return err
			}
			cmd.Printf("Created wallet key for %s in %s\n", addr.Hex(), file.KeyFilePath(cfg.KeyDir()))
			return nil
		},
	}

	def := config.DefaultConfig
	cmd.Flags().String(config.FlagContractAddress, def.Contract.Address, "evidence registry contract address")
	cmd.Flags().String(config.FlagWalletType, def.Wallet.Type, "wallet provider type (local, remote)")
	cmd.Flags().String(config.FlagWalletRemoteURL, def.Wallet.RemoteURL, "remote wallet bridge JSON-RPC URL")
	cmd.Flags().String(config.FlagWalletPassphrase, "", "Passphrase for encrypting a new local wallet key")
	return cmd
}
