package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/tracing"
)

const (
	EnvPrefix  = "GAMEVAULT"
	EnvNetwork = "GAMEVAULT_ENV"
)

type LedgerSettings struct {
	Network        string        `mapstructure:"network"`
	NodeURL        string        `mapstructure:"node_url"`
	ModuleAddress  string        `mapstructure:"module_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type SignerSettings struct {
	// Keystore overrides the per-network default location.
	Keystore string `mapstructure:"keystore"`
	// ReadOnly skips unlocking. Every write then fails as signer unavailable.
	ReadOnly     bool          `mapstructure:"read_only"`
	MaxGasAmount uint64        `mapstructure:"max_gas_amount"`
	GasUnitPrice uint64        `mapstructure:"gas_unit_price"`
	Expiration   time.Duration `mapstructure:"expiration"`
	// Confirm asks on the terminal before each signature.
	Confirm bool `mapstructure:"confirm"`
}

type CacheSettings struct {
	PositiveTTL     time.Duration `mapstructure:"positive_ttl"`
	NegativeTTL     time.Duration `mapstructure:"negative_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	KnowledgeTTL    time.Duration `mapstructure:"knowledge_ttl"`
}

type ServerSettings struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// UIDir is a built storefront bundle served next to the API.
	UIDir string `mapstructure:"ui_dir"`
}

type Config struct {
	Ledger  LedgerSettings `mapstructure:"ledger"`
	Signer  SignerSettings `mapstructure:"signer"`
	Cache   CacheSettings  `mapstructure:"cache"`
	Server  ServerSettings `mapstructure:"server"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

var nodeURLs = map[string]string{
	"mainnet": "https://fullnode.mainnet.aptoslabs.com/v1",
	"testnet": "https://fullnode.testnet.aptoslabs.com/v1",
	"devnet":  "https://fullnode.devnet.aptoslabs.com/v1",
	"local":   "http://127.0.0.1:8080/v1",
}

// SearchPaths lists where a user config.yaml is looked up, in order.
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".config", "gamevault-client"),
		filepath.Join(home, "config"),
		".",
	}
}

// Load reads the embedded defaults, merges the first user config.yaml found
// (or cfgFile when set) and applies GAMEVAULT_* overrides.
func Load(cfgFile string) (*Config, error) {
	return load(cfgFile, SearchPaths())
}

func load(cfgFile string, paths []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, errors.Wrap(err, "read embedded config")
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfgFile)
		}
	} else {
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		v.SetConfigName("config")
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read user config")
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := cfg.ApplyNetworkFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyNetworkFromEnv lets GAMEVAULT_ENV pick the network. It uses the same
// names as the keystore folder selection.
func (c *Config) ApplyNetworkFromEnv() error {
	raw := strings.TrimSpace(os.Getenv(EnvNetwork))

	switch strings.ToLower(raw) {
	case "":
		// keep configured network
	case "mainnet", "prod", "production":
		c.Ledger.Network = "mainnet"
	case "test", "testnet":
		c.Ledger.Network = "testnet"
	case "dev", "devnet":
		c.Ledger.Network = "devnet"
	case "local", "localnet":
		c.Ledger.Network = "local"
	default:
		return fmt.Errorf("invalid %s %q (allowed: local, devnet, testnet, mainnet)", EnvNetwork, raw)
	}
	return nil
}

// Normalize resolves the node url from the network and canonicalizes
// addresses and origins.
func (c *Config) Normalize() error {
	c.Ledger.Network = strings.ToLower(strings.TrimSpace(c.Ledger.Network))
	if c.Ledger.Network == "" {
		c.Ledger.Network = "mainnet"
	}
	if strings.TrimSpace(c.Ledger.NodeURL) == "" {
		u, ok := nodeURLs[c.Ledger.Network]
		if !ok {
			return errors.Newf("unknown network %q and no node_url set", c.Ledger.Network)
		}
		c.Ledger.NodeURL = u
	}

	addr, err := codec.NormalizeAddress(c.Ledger.ModuleAddress)
	if err != nil {
		return errors.Wrap(err, "ledger.module_address")
	}
	c.Ledger.ModuleAddress = addr

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == "" {
		return errors.New("server.port is empty")
	}

	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, o := range c.Server.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return errors.Newf("server.allowed_origins: %q must include a scheme", o)
		}
		origins = append(origins, o)
	}
	c.Server.AllowedOrigins = origins
	return nil
}
