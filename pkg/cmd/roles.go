package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/evidence"
	"github.com/evidence-registry/evreg/pkg/roles"
	"github.com/evidence-registry/evreg/pkg/view"
)

type roleChange func(s *evidence.Service, ctx context.Context, account string) (evidence.RoleResult, error)

// role names accepted on the command line.
var roleChanges = map[string]struct {
	role   roles.Role
	grant  roleChange
	revoke roleChange
}{
	"police": {roles.Police, (*evidence.Service).GrantPolice, (*evidence.Service).RevokePolice},
	"court":  {roles.CourtOfficial, (*evidence.Service).GrantCourtOfficial, (*evidence.Service).RevokeCourtOfficial},
}

// RolesCmd returns the owner commands granting and revoking roles.
func RolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Grant or revoke police and court official roles (owner only)",
	}
	cmd.AddCommand(
		roleChangeCmd("grant", view.ActionGrantRole),
		roleChangeCmd("revoke", view.ActionRevokeRole),
	)
	return cmd
}

func roleChangeCmd(verb string, action view.Action) *cobra.Command {
	cmd := &cobra.Command{
		Use:       verb + " [police|court] [address]",
		Short:     fmt.Sprintf("%s a role", verb),
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"police", "court"},
		RunE: func(cmd *cobra.Command, args []string) error {
			change, ok := roleChanges[args[0]]
			if !ok {
				return fmt.Errorf("unknown role %q, expected police or court", args[0])
			}
			run := change.grant
			if action == view.ActionRevokeRole {
				run = change.revoke
			}

			return withClient(cmd, func(c *Client) error {
				if err := c.connectFor(cmd, action, view.OwnerControls); err != nil {
					return err
				}
				subject := change.role.String()
				c.Console.Notify(c.Notifier.Start(action, subject))
				res, err := run(c.Evidence, cmd.Context(), args[1])
				if err != nil {
					return c.fail(action, err)
				}
				c.Console.Notify(c.Notifier.Success(action, subject))
				cmd.Printf("account: %s\ntx: %s\nblock: %d\n", res.Account.Hex(), res.TxHash.Hex(), res.BlockNumber)
				return nil
			})
		},
	}
	config.AddFlags(cmd)
	return cmd
}
