package cmd

import (
	"github.com/spf13/cobra"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/view"
)

// withClient runs fn with a client built from cmd's configuration and closes
// it afterwards.
func withClient(cmd *cobra.Command, fn func(c *Client) error) error {
	c, err := NewClient(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			c.Logger.Error("failed to close client", "error", err)
		}
	}()
	return fn(c)
}

// ConnectCmd connects the wallet and shows the account, its role and the
// panels it can use.
func ConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connect",
		Aliases: []string{"whoami"},
		Short:   "Connect the wallet and show the account's role",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *Client) error {
				sess, err := c.Connect(cmd)
				if err != nil {
					return err
				}
				c.Console.Session(sess)
				c.Console.Panels(view.PanelsFor(sess.Roles))
				return nil
			})
		},
	}
	config.AddFlags(cmd)
	return cmd
}

// connectFor opens a session and checks that the account is shown panel.
func (c *Client) connectFor(cmd *cobra.Command, a view.Action, panel view.Panel) error {
	sess, err := c.Connect(cmd)
	if err != nil {
		return err
	}
	if err := view.Require(sess.Roles, panel); err != nil {
		return c.fail(a, err)
	}
	return nil
}

// fail shows err as the failure notification of a and returns it.
func (c *Client) fail(a view.Action, err error) error {
	c.Console.Notify(c.Notifier.Failure(a, err))
	return err
}
