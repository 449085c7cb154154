package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/journal"
	"github.com/evidence-registry/evreg/pkg/view"
)

// PinsCmd lists the uploads recorded in the journal.
func PinsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pins",
		Short: "List pinned uploads and whether they were recorded on chain",
		Long: `List the uploads recorded in the journal.

Orphaned uploads were pinned but their transaction never confirmed. They can be
recorded with "evidence add --cid <cid>" without uploading them again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ParseConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled || cfg.JournalDir() == "" {
				return errors.New("the journal is not persisted, enable it with a journal path")
			}

			j, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer j.Close()

			orphaned, _ := cmd.Flags().GetBool("orphaned")
			var entries []journal.PinEntry
			if orphaned {
				entries, err = j.Orphaned(cmd.Context())
			} else {
				entries, err = j.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			view.NewConsole(cmd.OutOrStdout(), isTerminal(os.Stdout)).Pins(entries)
			return nil
		},
	}
	cmd.Flags().Bool("orphaned", false, "only show uploads that were never recorded on chain")
	config.AddFlags(cmd)
	return cmd
}
