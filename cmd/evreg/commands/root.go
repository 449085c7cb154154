package commands

import (
	"github.com/spf13/cobra"

	"github.com/evidence-registry/evreg/pkg/config"
)

// AppName is the name of the application, the name of the command, and the name of the home directory.
const AppName = "evreg"

func init() {
	config.AddGlobalFlags(RootCmd, AppName)
}

// RootCmd is the root command for evreg
var RootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Client for the on-chain evidence registry.",
	Long: `
evreg pins evidence files to IPFS and records them in the evidence registry contract.
Police add evidence, court officials retrieve it and the contract owner manages both roles.
If the --home flag is not specified, evreg stores its configuration, wallet key and upload
journal in "~/.evreg".
`,
	SilenceUsage: true,
}
