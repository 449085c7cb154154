package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/evidence"
	"github.com/evidence-registry/evreg/pkg/view"
)

const (
	flagCaseID      = "case-id"
	flagDescription = "description"
	flagFile        = "file"
	flagCID         = "cid"
)

// EvidenceCmd returns the evidence commands.
func EvidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Add and retrieve evidence records",
	}
	cmd.AddCommand(addEvidenceCmd(), getEvidenceCmd(), countEvidenceCmd())
	return cmd
}

func addEvidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Pin a file and record it on chain",
		Long: `Upload a file to the pinning service and store its content identifier
in the registry under a case.

Content pinned earlier, for instance by an attempt whose transaction failed,
can be recorded without uploading it again with --cid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, _ := cmd.Flags().GetString(flagCaseID)
			description, _ := cmd.Flags().GetString(flagDescription)
			path, _ := cmd.Flags().GetString(flagFile)
			contentID, _ := cmd.Flags().GetString(flagCID)
			if path != "" && contentID != "" {
				return fmt.Errorf("--%s and --%s are mutually exclusive", flagFile, flagCID)
			}

			return withClient(cmd, func(c *Client) error {
				if err := c.connectFor(cmd, view.ActionAddEvidence, view.AddEvidence); err != nil {
					return err
				}

				req := evidence.AddRequest{
					CaseID:      caseID,
					Description: description,
					CID:         contentID,
					Progress: func(stage evidence.Stage) {
						c.Console.Notify(c.Notifier.Progress(view.ActionAddEvidence, stage))
					},
				}
				if path != "" {
					f, err := os.Open(filepath.Clean(path))
					if err != nil {
						return c.fail(view.ActionAddEvidence, fmt.Errorf("%w: %w", evidence.ErrInvalidInput, err))
					}
					defer f.Close()
					req.File, req.FileName = f, filepath.Base(path)
					c.Console.Notify(c.Notifier.Start(view.ActionAddEvidence, ""))
				}

				res, err := c.Evidence.AddEvidence(cmd.Context(), req)
				if err != nil {
					return c.fail(view.ActionAddEvidence, err)
				}
				c.Console.Notify(c.Notifier.Success(view.ActionAddEvidence, ""))
				cmd.Printf("cid: %s\nlink: %s\ntx: %s\nblock: %d\n", res.CID, res.GatewayURL, res.TxHash.Hex(), res.BlockNumber)
				return nil
			})
		},
	}
	cmd.Flags().String(flagCaseID, "", "case the evidence belongs to")
	cmd.Flags().String(flagDescription, "", "what the evidence shows")
	cmd.Flags().String(flagFile, "", "file to upload")
	cmd.Flags().String(flagCID, "", "content identifier of an already pinned file")
	config.AddFlags(cmd)
	return cmd
}

func getEvidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [evidence-id]",
		Short: "Show one evidence record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *Client) error {
				id, err := evidence.ParseID(args[0])
				if err != nil {
					return c.fail(view.ActionRetrieveEvidence, err)
				}
				if err := c.connectFor(cmd, view.ActionRetrieveEvidence, view.RetrieveEvidence); err != nil {
					return err
				}

				c.Console.Notify(c.Notifier.Start(view.ActionRetrieveEvidence, ""))
				rec, err := c.Evidence.GetEvidence(cmd.Context(), id)
				if err != nil {
					return c.fail(view.ActionRetrieveEvidence, err)
				}
				c.Console.Notify(c.Notifier.Success(view.ActionRetrieveEvidence, ""))
				c.Console.Record(rec)
				return nil
			})
		},
	}
	config.AddFlags(cmd)
	return cmd
}

func countEvidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of evidence records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *Client) error {
				if err := c.connectFor(cmd, view.ActionRetrieveEvidence, view.RetrieveEvidence); err != nil {
					return err
				}
				n, err := c.Evidence.EvidenceCount(cmd.Context())
				if err != nil {
					return c.fail(view.ActionRetrieveEvidence, err)
				}
				cmd.Printf("evidence records: %d\n", n)
				return nil
			})
		},
	}
	config.AddFlags(cmd)
	return cmd
}
