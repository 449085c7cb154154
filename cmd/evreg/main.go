package main

import (
	"fmt"
	"os"

	"github.com/evidence-registry/evreg/cmd/evreg/commands"
	evregcmd "github.com/evidence-registry/evreg/pkg/cmd"
)

func main() {
	// Initiate the root command
	rootCmd := commands.RootCmd

	// Add subcommands to the root command
	rootCmd.AddCommand(
		evregcmd.InitCmd(),
		evregcmd.KeysCmd(),
		evregcmd.ConnectCmd(),
		evregcmd.EvidenceCmd(),
		evregcmd.RolesCmd(),
		evregcmd.PinsCmd(),
		evregcmd.ServeCmd(),
		evregcmd.VersionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		// Print to stderr and exit with error
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
