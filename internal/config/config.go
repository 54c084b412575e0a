package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
)

// Environment variable keys, resolved with the RGBD_ prefix.
const (
	// DatadirKey is the local data directory storing the daemon state.
	DatadirKey = "DATA_DIR_PATH"
	// NetworkKey is the bitcoin network to run against. One of "mainnet",
	// "testnet" or "regtest".
	NetworkKey = "NETWORK"
	// ExplorerEndpointKey is the endpoint of the esplora REST API.
	ExplorerEndpointKey = "EXPLORER_ENDPOINT"
	// ExplorerRequestTimeoutKey are the milliseconds to wait for indexer
	// responses before timing out.
	ExplorerRequestTimeoutKey = "EXPLORER_REQUEST_TIMEOUT"
	// LogLevelKey selects the logging verbosity. For reference on the
	// values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// ForceAcceptAdvancesStateKey controls whether force-accepted invalid
	// consignments advance allocation state or are only recorded for audit.
	ForceAcceptAdvancesStateKey = "FORCE_ACCEPT_ADVANCES_STATE"
	// StatsIntervalKey defines the interval in seconds for printing basic
	// runtime statistics.
	StatsIntervalKey = "STATS_INTERVAL"
)

// Datadir subdirectories.
const (
	DbLocation   = "db"
	BlobLocation = "blobs"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkRegtest = "regtest"
)

var defaultDatadir = btcutil.AppDataDir("rgbd", false)

// Config carries the daemon settings, resolved once at startup. Values are
// read-only after Load: components receive what they need through
// constructors instead of reaching into a mutable global.
type Config struct {
	datadir                  string
	network                  *chaincfg.Params
	networkName              string
	explorerEndpoint         string
	explorerTimeout          time.Duration
	logLevel                 int
	forceAcceptAdvancesState bool
	statsInterval            time.Duration
}

// Load resolves the configuration from the environment, validating it
// before anything starts.
func Load() (*Config, error) {
	vip := viper.New()
	vip.SetEnvPrefix("RGBD")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(NetworkKey, NetworkMainnet)
	vip.SetDefault(ExplorerEndpointKey, "https://blockstream.info/api")
	vip.SetDefault(ExplorerRequestTimeoutKey, 15000)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(ForceAcceptAdvancesStateKey, false)
	vip.SetDefault(StatsIntervalKey, 600)

	datadir := vip.GetString(DatadirKey)
	if len(datadir) <= 0 {
		return nil, fmt.Errorf("datadir must not be null")
	}

	networkName := vip.GetString(NetworkKey)
	network, err := networkParams(networkName)
	if err != nil {
		return nil, err
	}

	endpoint := vip.GetString(ExplorerEndpointKey)
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("explorer endpoint is not a valid url: %s", err)
	}

	timeout := vip.GetInt(ExplorerRequestTimeoutKey)
	if timeout <= 0 {
		return nil, fmt.Errorf("explorer request timeout must be positive")
	}

	return &Config{
		datadir:                  datadir,
		network:                  network,
		networkName:              networkName,
		explorerEndpoint:         endpoint,
		explorerTimeout:          time.Duration(timeout) * time.Millisecond,
		logLevel:                 vip.GetInt(LogLevelKey),
		forceAcceptAdvancesState: vip.GetBool(ForceAcceptAdvancesStateKey),
		statsInterval:            time.Duration(vip.GetInt(StatsIntervalKey)) * time.Second,
	}, nil
}

func networkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf(
			"network must be one of '%s', '%s' or '%s'",
			NetworkMainnet, NetworkTestnet, NetworkRegtest,
		)
	}
}

// Datadir returns the daemon data directory.
func (c *Config) Datadir() string {
	return c.datadir
}

// DBDir returns the directory holding the badger stores.
func (c *Config) DBDir() string {
	return filepath.Join(c.datadir, DbLocation)
}

// BlobDir returns the directory holding the consignment blob store.
func (c *Config) BlobDir() string {
	return filepath.Join(c.datadir, BlobLocation)
}

// Network returns the chain parameters of the configured network.
func (c *Config) Network() *chaincfg.Params {
	return c.network
}

// NetworkName returns the configured network name.
func (c *Config) NetworkName() string {
	return c.networkName
}

// ExplorerEndpoint returns the esplora REST API endpoint.
func (c *Config) ExplorerEndpoint() string {
	return c.explorerEndpoint
}

// ExplorerTimeout returns the indexer request timeout.
func (c *Config) ExplorerTimeout() time.Duration {
	return c.explorerTimeout
}

// LogLevel returns the configured logging verbosity.
func (c *Config) LogLevel() int {
	return c.logLevel
}

// ForceAcceptAdvancesState returns whether forcibly accepted invalid
// consignments advance allocation state.
func (c *Config) ForceAcceptAdvancesState() bool {
	return c.forceAcceptAdvancesState
}

// StatsInterval returns the interval between runtime statistics dumps.
func (c *Config) StatsInterval() time.Duration {
	return c.statsInterval
}
