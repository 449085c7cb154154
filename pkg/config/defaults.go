package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDirPerm is the default permissions used when creating directories.
	DefaultDirPerm = 0750

	// DefaultKeyDir is the default directory of the local wallet key, relative to the root.
	DefaultKeyDir = "keys"

	// DefaultJournalDir is the default directory of the upload journal, relative to the root.
	DefaultJournalDir = "journal"

	// SepoliaChainID is the chain id of the Sepolia test network (0xaa36a7).
	SepoliaChainID = 11155111

	// DefaultPinningEndpoint is the pinning service upload endpoint.
	DefaultPinningEndpoint = "https://api.pinata.cloud/pinning/pinFileToIPFS"

	// DefaultGatewayURL is the content gateway base. Content links are <gateway>/<cid>.
	DefaultGatewayURL = "https://gateway.pinata.cloud/ipfs/"

	// DefaultLogLevel is the default log level for the application
	DefaultLogLevel = "info"
)

// DefaultRootDir returns the default root directory for evreg
func DefaultRootDir() string {
	return DefaultRootDirWithName("evreg")
}

// DefaultRootDirWithName returns ~/.<appName>, or "" when the home directory is unknown.
func DefaultRootDirWithName(appName string) string {
	if appName == "" {
		appName = "evreg"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "."+appName)
}

// DefaultConfig keeps default values of Config
var DefaultConfig = Config{
	RootDir: DefaultRootDir(),
	Chain: ChainConfig{
		ID:               SepoliaChainID,
		Name:             "Sepolia",
		RPCURL:           "https://rpc.sepolia.org",
		ExplorerURL:      "https://sepolia.etherscan.io",
		CurrencyName:     "SepoliaETH",
		CurrencySymbol:   "ETH",
		CurrencyDecimals: 18,
		ConfirmTimeout:   DurationWrapper{0},
	},
	Wallet: WalletConfig{
		Type:         WalletTypeLocal,
		KeyPath:      DefaultKeyDir,
		PollInterval: DurationWrapper{2 * time.Second},
	},
	Pinning: PinningConfig{
		Endpoint:          DefaultPinningEndpoint,
		GatewayURL:        DefaultGatewayURL,
		RequestsPerMinute: 60,
	},
	Journal: JournalConfig{
		Enabled: true,
		Path:    DefaultJournalDir,
	},
	API: APIConfig{
		Address:            "127.0.0.1",
		Port:               7331,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		MaxOpenConnections: 64,
	},
	Instrumentation: DefaultInstrumentationConfig(),
	Log: LogConfig{
		Level:  DefaultLogLevel,
		Format: "text",
		Trace:  false,
	},
}
