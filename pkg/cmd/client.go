package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/evidence"
	"github.com/evidence-registry/evreg/pkg/journal"
	"github.com/evidence-registry/evreg/pkg/log"
	"github.com/evidence-registry/evreg/pkg/network"
	"github.com/evidence-registry/evreg/pkg/pinning"
	"github.com/evidence-registry/evreg/pkg/session"
	"github.com/evidence-registry/evreg/pkg/signer/file"
	"github.com/evidence-registry/evreg/pkg/view"
	"github.com/evidence-registry/evreg/pkg/wallet"
)

// dialChain opens chain access for the local wallet. Tests point it at an
// in-process chain.
var dialChain wallet.Dialer = wallet.DialEthClient

// ParseConfig is an helpers that loads the client configuration and validates it.
func ParseConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("failed to validate config: %w", err)
	}

	return cfg, nil
}

// SetupLogger configures and returns a logger based on the provided configuration.
// Log output goes to the command's error stream so results on stdout stay clean.
func SetupLogger(cmd *cobra.Command, cfg config.LogConfig) (log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := []log.Option{log.LevelOption(level), log.TraceOption(cfg.Trace)}
	if cfg.Format == "json" {
		opts = append(opts, log.OutputJSONOption())
	} else {
		opts = append(opts, log.ColorOption(isTerminal(os.Stderr)))
	}

	return log.NewLogger(cmd.ErrOrStderr(), opts...).With("module", "main"), nil
}

// Client bundles every component a command needs, wired from one configuration.
type Client struct {
	Config   config.Config
	Logger   log.Logger
	Provider wallet.Provider
	Sessions *session.Manager
	Pinning  *pinning.Client
	Journal  *journal.Journal
	Evidence *evidence.Service
	Notifier view.Notifier
	Console  *view.Console

	// remote is set when the wallet lives behind a bridge and must be polled.
	remote *wallet.RemoteProvider
	closer func()
}

// NewClient loads the configuration of cmd and wires the wallet, session,
// pinning client, journal and evidence service.
func NewClient(cmd *cobra.Command) (*Client, error) {
	cfg, err := ParseConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := SetupLogger(cmd, cfg.Log)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.Contract.Address) {
		return nil, fmt.Errorf("contract address is not configured, set --%s", config.FlagContractAddress)
	}

	c := &Client{
		Config:   cfg,
		Logger:   logger,
		Notifier: view.Notifier{ChainName: cfg.Chain.Name},
		Console:  view.NewConsole(cmd.OutOrStdout(), isTerminal(os.Stdout)),
	}

	chain := wallet.ChainFromConfig(cfg.Chain)
	switch cfg.Wallet.Type {
	case config.WalletTypeRemote:
		remote, err := wallet.DialRemoteProvider(cmd.Context(), cfg.Wallet.RemoteURL, cfg.Wallet.PollInterval.Duration, logger)
		if err != nil {
			return nil, err
		}
		c.Provider, c.remote, c.closer = remote, remote, remote.Close
	default:
		passphrase, err := readPassphrase(cmd)
		if err != nil {
			return nil, err
		}
		s, err := file.LoadFileSystemSigner(cfg.KeyDir(), passphrase)
		if err != nil {
			if errors.Is(err, file.ErrKeyNotFound) {
				return nil, fmt.Errorf("%w: run `keys create` first", wallet.ErrNoProvider)
			}
			return nil, err
		}
		local := wallet.NewLocalProvider(s, chain, logger, wallet.WithDialer(dialChain))
		c.Provider, c.closer = local, local.Close
	}

	guard := network.NewGuard(chain, c.Provider, logger)
	c.Sessions = session.NewManager(c.Provider, guard, common.HexToAddress(cfg.Contract.Address), logger)
	c.Pinning = pinning.NewClient(cfg.Pinning, logger)

	c.Journal, err = journal.Open(cfg)
	if err != nil {
		c.closer()
		return nil, err
	}

	metrics := evidence.NopMetrics()
	if cfg.Instrumentation.IsPrometheusEnabled() {
		metrics = evidence.PrometheusMetrics(cfg.Instrumentation.Namespace, "chain_id", fmt.Sprint(cfg.Chain.ID))
	}
	c.Evidence = evidence.NewService(c.Sessions, c.Pinning, logger,
		evidence.WithJournal(c.Journal),
		evidence.WithMetrics(metrics),
		evidence.WithConfirmTimeout(cfg.Chain.ConfirmTimeout.Duration),
	)
	return c, nil
}

// Close releases the wallet connection and the journal.
func (c *Client) Close() error {
	var errs error
	if c.Journal != nil {
		if err := c.Journal.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if c.closer != nil {
		c.closer()
	}
	return errs
}

// Connect opens a session and prints it. Failures are shown as notifications
// before being returned.
func (c *Client) Connect(cmd *cobra.Command) (session.Session, error) {
	c.Console.Notify(c.Notifier.Start(view.ActionConnect, ""))
	sess, err := c.Sessions.Connect(cmd.Context())
	if err != nil {
		c.Console.Notify(c.Notifier.Failure(view.ActionConnect, err))
		return sess, err
	}
	c.Console.Notify(c.Notifier.Success(view.ActionConnect, sess.Address.Hex()))
	return sess, nil
}

// readPassphrase takes the passphrase from its flag, or prompts for it when
// stdin is a terminal.
func readPassphrase(cmd *cobra.Command) ([]byte, error) {
	passphrase, err := cmd.Flags().GetString(config.FlagWalletPassphrase)
	if err != nil {
		return nil, err
	}
	if passphrase != "" {
		return []byte(passphrase), nil
	}
	if !isTerminal(os.Stdin) {
		return nil, fmt.Errorf("passphrase is required. Please provide it using the --%s flag", config.FlagWalletPassphrase)
	}
	cmd.PrintErr("Key passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd())) // #nosec G115
	cmd.PrintErrln()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return pass, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) // #nosec G115
}
