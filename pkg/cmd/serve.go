package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evidence-registry/evreg/pkg/api"
	"github.com/evidence-registry/evreg/pkg/config"
)

// ServeCmd runs the HTTP API for a browser front end until interrupted.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry operations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *Client) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return c.Serve(ctx)
			})
		},
	}
	config.AddFlags(cmd)
	return cmd
}

// Serve runs the HTTP API, the session watcher and, for a remote wallet, the
// change poller until ctx is done or one of them fails.
func (c *Client) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := api.NewServer(c.Config, c.Sessions, c.Evidence, c.Journal, c.Logger)
	tasks := map[string]func(context.Context) error{
		"api":     server.Run,
		"session": c.Sessions.Watch,
	}
	if c.remote != nil {
		tasks["wallet"] = c.remote.Run
	}

	errCh := make(chan error, len(tasks))
	for name, run := range tasks {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.Logger.Error("Recovered from panic", "task", name, "panic", r)
					errCh <- fmt.Errorf("%s panicked: %v", name, r)
				}
			}()
			// once ctx is done every task unwinds with some context error,
			// Canceled or DeadlineExceeded, and that is a clean stop
			err := run(ctx)
			if err != nil && ctx.Err() == nil {
				err = fmt.Errorf("%s: %w", name, err)
			} else {
				err = nil
			}
			errCh <- err
		}()
	}

	var first error
	remaining := len(tasks)
	select {
	case <-ctx.Done():
		c.Logger.Info("shutting down...")
	case first = <-errCh:
		remaining--
		if first != nil {
			c.Logger.Error("stopped", "error", first)
		}
	}
	cancel()

	timeout := time.After(5 * time.Second)
	for ; remaining > 0; remaining-- {
		select {
		case err := <-errCh:
			if err != nil && first == nil {
				first = err
			}
		case <-timeout:
			c.Logger.Info("shutdown timed out")
			return first
		}
	}
	return first
}
