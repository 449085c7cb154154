package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// FlagPrefix is stripped from flag names before they are bound to config keys.
	FlagPrefix = "evreg."

	// EnvPrefix is the prefix of environment variables overriding config keys.
	EnvPrefix = "EVREG"

	// FlagRootDir is a flag for specifying the root directory
	FlagRootDir = "home"

	// Chain configuration flags

	// FlagChainID is a flag for specifying the chain the wallet must be on
	FlagChainID = "evreg.chain.id"
	// FlagChainName is a flag for specifying the human readable chain name
	FlagChainName = "evreg.chain.name"
	// FlagChainRPCURL is a flag for specifying the chain JSON-RPC endpoint
	FlagChainRPCURL = "evreg.chain.rpc_url"
	// FlagChainExplorerURL is a flag for specifying the block explorer URL
	FlagChainExplorerURL = "evreg.chain.explorer_url"
	// FlagChainConfirmTimeout is a flag for bounding the wait for a transaction receipt
	FlagChainConfirmTimeout = "evreg.chain.confirm_timeout"

	// FlagContractAddress is a flag for specifying the evidence registry contract address
	FlagContractAddress = "evreg.contract.address"

	// Wallet configuration flags

	// FlagWalletType is a flag for specifying the wallet type (local, remote)
	FlagWalletType = "evreg.wallet.type"
	// FlagWalletKeyPath is a flag for specifying the directory of the local key file
	FlagWalletKeyPath = "evreg.wallet.key_path"
	// FlagWalletRemoteURL is a flag for specifying the remote wallet bridge URL
	FlagWalletRemoteURL = "evreg.wallet.remote_url"
	// FlagWalletPollInterval is a flag for specifying how often a remote wallet is polled for changes
	FlagWalletPollInterval = "evreg.wallet.poll_interval"

	// FlagWalletPassphrase is a flag for specifying the local key passphrase
	//nolint:gosec
	FlagWalletPassphrase = "evreg.wallet.passphrase"

	// Pinning configuration flags

	// FlagPinningEndpoint is a flag for specifying the pinning upload endpoint
	FlagPinningEndpoint = "evreg.pinning.endpoint"
	// FlagPinningAPIKey is a flag for specifying the pinning API key
	FlagPinningAPIKey = "evreg.pinning.api_key" // #nosec G101
	// FlagPinningSecretAPIKey is a flag for specifying the pinning secret API key
	FlagPinningSecretAPIKey = "evreg.pinning.secret_api_key" // #nosec G101
	// FlagPinningGatewayURL is a flag for specifying the content gateway base URL
	FlagPinningGatewayURL = "evreg.pinning.gateway_url"
	// FlagPinningRequestsPerMinute is a flag for pacing uploads
	FlagPinningRequestsPerMinute = "evreg.pinning.requests_per_minute"

	// Journal configuration flags

	// FlagJournalEnabled is a flag for enabling the upload journal
	FlagJournalEnabled = "evreg.journal.enabled"
	// FlagJournalPath is a flag for specifying the journal directory
	FlagJournalPath = "evreg.journal.path"

	// API configuration flags

	// FlagAPIAddress is a flag for specifying the HTTP API listen address
	FlagAPIAddress = "evreg.api.address"
	// FlagAPIPort is a flag for specifying the HTTP API port
	FlagAPIPort = "evreg.api.port"
	// FlagAPICORSAllowedOrigins is a flag for specifying the allowed CORS origins
	FlagAPICORSAllowedOrigins = "evreg.api.cors_allowed_origins"
	// FlagAPIMaxOpenConnections is a flag for limiting simultaneous API connections
	FlagAPIMaxOpenConnections = "evreg.api.max_open_connections"

	// Instrumentation configuration flags

	// FlagPrometheus is a flag for enabling Prometheus metrics
	FlagPrometheus = "evreg.instrumentation.prometheus"
	// FlagPrometheusNamespace is a flag for specifying the metrics namespace
	FlagPrometheusNamespace = "evreg.instrumentation.namespace"

	// Logging configuration flags

	// FlagLogLevel is a flag for specifying the log level
	FlagLogLevel = "evreg.log.level"
	// FlagLogFormat is a flag for specifying the log format
	FlagLogFormat = "evreg.log.format"
	// FlagLogTrace is a flag for enabling stack traces in error logs
	FlagLogTrace = "evreg.log.trace"
)

const (
	// WalletTypeLocal signs with an encrypted key file on disk.
	WalletTypeLocal = "local"
	// WalletTypeRemote delegates accounts, chain switching and signing to a JSON-RPC wallet bridge.
	WalletTypeRemote = "remote"
)

// DurationWrapper is a wrapper for time.Duration that implements encoding.TextMarshaler and encoding.TextUnmarshaler
// needed for YAML marshalling/unmarshalling especially for time.Duration
type DurationWrapper struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler to format the duration as text
func (d DurationWrapper) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler to parse the duration from text
func (d *DurationWrapper) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Config stores evreg configuration.
type Config struct {
	RootDir string `mapstructure:"-" yaml:"-" comment:"Root directory where evreg files are located"`

	Chain           ChainConfig           `mapstructure:"chain" yaml:"chain"`
	Contract        ContractConfig        `mapstructure:"contract" yaml:"contract"`
	Wallet          WalletConfig          `mapstructure:"wallet" yaml:"wallet"`
	Pinning         PinningConfig         `mapstructure:"pinning" yaml:"pinning"`
	Journal         JournalConfig         `mapstructure:"journal" yaml:"journal"`
	API             APIConfig             `mapstructure:"api" yaml:"api"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`
	Log             LogConfig             `mapstructure:"log" yaml:"log"`
}

// ChainConfig describes the single chain the wallet is required to be on.
type ChainConfig struct {
	ID               uint64          `mapstructure:"id" yaml:"id" comment:"Chain ID the wallet must be connected to before any state-changing call (11155111 is Sepolia)."`
	Name             string          `mapstructure:"name" yaml:"name" comment:"Human readable chain name, used when asking the wallet to add the chain."`
	RPCURL           string          `mapstructure:"rpc_url" yaml:"rpc_url" comment:"JSON-RPC endpoint of the chain."`
	ExplorerURL      string          `mapstructure:"explorer_url" yaml:"explorer_url" comment:"Block explorer base URL offered to the wallet when adding the chain."`
	CurrencyName     string          `mapstructure:"currency_name" yaml:"currency_name" comment:"Native currency name."`
	CurrencySymbol   string          `mapstructure:"currency_symbol" yaml:"currency_symbol" comment:"Native currency symbol."`
	CurrencyDecimals uint8           `mapstructure:"currency_decimals" yaml:"currency_decimals" comment:"Native currency decimals."`
	ConfirmTimeout   DurationWrapper `mapstructure:"confirm_timeout" yaml:"confirm_timeout" comment:"Upper bound on waiting for a transaction receipt. 0 waits until the caller gives up. Examples: \"0s\", \"2m\"."`
}

// ContractConfig holds the deployed evidence registry contract.
type ContractConfig struct {
	Address string `mapstructure:"address" yaml:"address" comment:"Address of the deployed evidence registry contract."`
}

// WalletConfig selects and configures the wallet provider.
type WalletConfig struct {
	Type         string          `mapstructure:"type" yaml:"type" comment:"Wallet provider type (local, remote)."`
	KeyPath      string          `mapstructure:"key_path" yaml:"key_path" comment:"Directory of the encrypted key file for the local wallet, relative to the root directory."`
	RemoteURL    string          `mapstructure:"remote_url" yaml:"remote_url" comment:"JSON-RPC URL of the remote wallet bridge."`
	PollInterval DurationWrapper `mapstructure:"poll_interval" yaml:"poll_interval" comment:"How often the remote wallet is polled for account or chain changes."`
}

// PinningConfig configures the file pinning client.
type PinningConfig struct {
	Endpoint          string  `mapstructure:"endpoint" yaml:"endpoint" comment:"Multipart upload endpoint of the pinning service."`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key" comment:"Pinning service API key. Can also be set through PINATA_API_KEY."`
	SecretAPIKey      string  `mapstructure:"secret_api_key" yaml:"secret_api_key" comment:"Pinning service secret API key. Can also be set through PINATA_SECRET_API_KEY."`
	GatewayURL        string  `mapstructure:"gateway_url" yaml:"gateway_url" comment:"Base URL used to build content links. Links are never fetched."`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute" comment:"Client side pacing of uploads. 0 disables pacing."`
}

// JournalConfig configures the upload journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" comment:"Record every pinned upload and whether it was anchored on-chain."`
	Path    string `mapstructure:"path" yaml:"path" comment:"Journal directory relative to the root directory. Empty keeps the journal in memory."`
}

// APIConfig contains the HTTP API server configuration parameters
type APIConfig struct {
	Address            string   `mapstructure:"address" yaml:"address" comment:"Address to bind the HTTP API to (host)."`
	Port               uint16   `mapstructure:"port" yaml:"port" comment:"Port to bind the HTTP API to."`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins" comment:"Origins allowed to call the API from a browser."`
	MaxOpenConnections int      `mapstructure:"max_open_connections" yaml:"max_open_connections" comment:"Maximum number of simultaneous connections. 0 means unlimited."`
}

// LogConfig contains all logging configuration parameters
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" comment:"Log level (debug, info, warn, error)"`
	Format string `mapstructure:"format" yaml:"format" comment:"Log format (text, json)"`
	Trace  bool   `mapstructure:"trace" yaml:"trace" comment:"Enable stack traces in error logs"`
}

// ListenAddress returns the host:port the API binds to.
func (c APIConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// KeyDir returns the absolute directory of the local wallet key file.
func (c Config) KeyDir() string {
	return c.resolve(c.Wallet.KeyPath)
}

// JournalDir returns the absolute journal directory, or "" for an in-memory journal.
func (c Config) JournalDir() string {
	if c.Journal.Path == "" {
		return ""
	}
	return c.resolve(c.Journal.Path)
}

func (c Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootDir, p)
}

// Validate checks the configuration for values the client cannot run with.
func (c Config) Validate() error {
	var errs error
	if c.Chain.ID == 0 {
		errs = multierror.Append(errs, errors.New("chain.id must be set"))
	}
	if c.Chain.RPCURL != "" {
		if _, err := url.ParseRequestURI(c.Chain.RPCURL); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("chain.rpc_url: %w", err))
		}
	}
	if c.Contract.Address != "" && !common.IsHexAddress(c.Contract.Address) {
		errs = multierror.Append(errs, fmt.Errorf("contract.address %q is not a hex address", c.Contract.Address))
	}
	switch c.Wallet.Type {
	case WalletTypeLocal:
	case WalletTypeRemote:
		if c.Wallet.RemoteURL == "" {
			errs = multierror.Append(errs, errors.New("wallet.remote_url is required for a remote wallet"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown wallet.type %q", c.Wallet.Type))
	}
	if c.Pinning.RequestsPerMinute < 0 {
		errs = multierror.Append(errs, errors.New("pinning.requests_per_minute can't be negative"))
	}
	if c.API.MaxOpenConnections < 0 {
		errs = multierror.Append(errs, errors.New("api.max_open_connections can't be negative"))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errs
}

// AddGlobalFlags registers the flags shared by every command: logging and root directory.
func AddGlobalFlags(cmd *cobra.Command, appName string) {
	def := DefaultConfig
	cmd.PersistentFlags().String(FlagLogLevel, def.Log.Level, "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(FlagLogFormat, def.Log.Format, "Set the log format (text, json)")
	cmd.PersistentFlags().Bool(FlagLogTrace, def.Log.Trace, "Enable stack traces in error logs")
	cmd.PersistentFlags().String(FlagRootDir, DefaultRootDirWithName(appName), "Root directory for application data")
}

// AddFlags adds the client configuration options to a cobra Command.
func AddFlags(cmd *cobra.Command) {
	def := DefaultConfig

	cmd.Flags().Uint64(FlagChainID, def.Chain.ID, "required chain ID")
	cmd.Flags().String(FlagChainName, def.Chain.Name, "required chain name")
	cmd.Flags().String(FlagChainRPCURL, def.Chain.RPCURL, "chain JSON-RPC endpoint")
	cmd.Flags().String(FlagChainExplorerURL, def.Chain.ExplorerURL, "block explorer URL")
	cmd.Flags().Duration(FlagChainConfirmTimeout, def.Chain.ConfirmTimeout.Duration, "maximum wait for a transaction receipt (0 for no limit)")

	cmd.Flags().String(FlagContractAddress, def.Contract.Address, "evidence registry contract address")

	cmd.Flags().String(FlagWalletType, def.Wallet.Type, "wallet provider type (local, remote)")
	cmd.Flags().String(FlagWalletKeyPath, def.Wallet.KeyPath, "directory of the encrypted key file")
	cmd.Flags().String(FlagWalletRemoteURL, def.Wallet.RemoteURL, "remote wallet bridge JSON-RPC URL")
	cmd.Flags().Duration(FlagWalletPollInterval, def.Wallet.PollInterval.Duration, "remote wallet change polling interval")
	cmd.Flags().String(FlagWalletPassphrase, "", "passphrase of the local key file")

	cmd.Flags().String(FlagPinningEndpoint, def.Pinning.Endpoint, "pinning upload endpoint")
	cmd.Flags().String(FlagPinningAPIKey, def.Pinning.APIKey, "pinning API key")
	cmd.Flags().String(FlagPinningSecretAPIKey, def.Pinning.SecretAPIKey, "pinning secret API key")
	cmd.Flags().String(FlagPinningGatewayURL, def.Pinning.GatewayURL, "content gateway base URL")
	cmd.Flags().Float64(FlagPinningRequestsPerMinute, def.Pinning.RequestsPerMinute, "maximum uploads per minute (0 for no pacing)")

	cmd.Flags().Bool(FlagJournalEnabled, def.Journal.Enabled, "record pinned uploads in the journal")
	cmd.Flags().String(FlagJournalPath, def.Journal.Path, "journal directory (empty for in-memory)")

	cmd.Flags().String(FlagAPIAddress, def.API.Address, "HTTP API address (host)")
	cmd.Flags().Uint16(FlagAPIPort, def.API.Port, "HTTP API port")
	cmd.Flags().StringSlice(FlagAPICORSAllowedOrigins, def.API.CORSAllowedOrigins, "origins allowed to call the HTTP API")
	cmd.Flags().Int(FlagAPIMaxOpenConnections, def.API.MaxOpenConnections, "maximum simultaneous HTTP API connections")

	cmd.Flags().Bool(FlagPrometheus, def.Instrumentation.Prometheus, "enable Prometheus metrics")
	cmd.Flags().String(FlagPrometheusNamespace, def.Instrumentation.Namespace, "Prometheus metrics namespace")
}

// Load loads the configuration in the following order of precedence:
// 1. DefaultConfig (lowest priority)
// 2. YAML configuration file in the root directory
// 3. Environment variables (EVREG_CHAIN_ID, PINATA_API_KEY, ...)
// 4. Command line flags (highest priority)
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()

	config := DefaultConfig
	setDefaultsInViper(v, reflect.ValueOf(config), "")

	home, _ := cmd.Flags().GetString(FlagRootDir)
	if home != "" {
		config.RootDir = home
	}

	v.SetConfigName(ConfigBaseName)
	v.SetConfigType(ConfigExtension)
	v.AddConfigPath(config.RootDir)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) {
			return config, fmt.Errorf("error reading YAML configuration: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	var bindErrs error
	for key, env := range map[string]string{
		"pinning.api_key":        "PINATA_API_KEY",
		"pinning.secret_api_key": "PINATA_SECRET_API_KEY",
	} {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			bindErrs = multierror.Append(bindErrs, err)
		}
	}

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == FlagRootDir {
			return
		}
		flagName := strings.TrimPrefix(f.Name, FlagPrefix)
		if err := v.BindPFlag(flagName, f); err != nil {
			bindErrs = multierror.Append(bindErrs, err)
		}
	})
	if bindErrs != nil {
		return config, fmt.Errorf("unable to bind flags: %w", bindErrs)
	}

	if err := v.Unmarshal(&config, decoderOptions); err != nil {
		return config, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return config, nil
}

// LoadFromViper decodes an already populated viper instance over DefaultConfig.
func LoadFromViper(v *viper.Viper) (Config, error) {
	config := DefaultConfig
	if err := v.Unmarshal(&config, decoderOptions); err != nil {
		return config, fmt.Errorf("unable to decode configuration: %w", err)
	}
	return config, nil
}

func decoderOptions(c *mapstructure.DecoderConfig) {
	c.TagName = "mapstructure"
	c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		durationWrapperHook,
	)
}

func durationWrapperHook(f reflect.Type, t reflect.Type, data any) (any, error) {
	if t != reflect.TypeOf(DurationWrapper{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		duration, err := time.ParseDuration(v)
		if err != nil {
			return nil, err
		}
		return DurationWrapper{Duration: duration}, nil
	case time.Duration:
		return DurationWrapper{Duration: v}, nil
	case DurationWrapper:
		return v, nil
	}
	return data, nil
}

// setDefaultsInViper walks the config struct and registers every leaf under
// its dotted mapstructure key, so flags and env vars can override nested values.
func setDefaultsInViper(v *viper.Viper, val reflect.Value, prefix string) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(DurationWrapper{}) {
			setDefaultsInViper(v, fv, key)
			continue
		}
		if dw, ok := fv.Interface().(DurationWrapper); ok {
			v.SetDefault(key, dw.String())
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
