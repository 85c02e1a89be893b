package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultConfigPath = "config/config.toml"
	ConfigFileName    = "config.toml"
	ServiceName       = "wallet-core"
	ConfigExtension   = ".toml"
)

type WalletConfig struct {
	conf.Version
	Agent    AgentConfig    `toml:"agent"`
	Services ServicesConfig `toml:"services"`
}

// AgentConfig represents configurable properties for the agent process and
// its local HTTP surface
type AgentConfig struct {
	APIHost         string        `toml:"api_host" conf:"default:127.0.0.1:3010"`
	ReadTimeout     time.Duration `toml:"read_timeout" conf:"default:5s"`
	WriteTimeout    time.Duration `toml:"write_timeout" conf:"default:5s"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" conf:"default:5s"`
	LogLocation     string        `toml:"log_location" conf:"default:log"`
	LogLevel        string        `toml:"log_level" conf:"default:debug"`
}

// StorageOption carries provider-specific storage settings. Bolt reads
// FilePath, redis reads Address and Password.
type StorageOption struct {
	FilePath string `toml:"file_path,omitempty"`
	Address  string `toml:"address,omitempty"`
	Password string `toml:"password,omitempty"`
}

// ServicesConfig represents configurable properties for the wallet's services
type ServicesConfig struct {
	// a single storage provider backs all services
	StorageProvider string        `toml:"storage"`
	StorageOption   StorageOption `toml:"storage_option,omitempty"`

	KeyStoreConfig KeyStoreServiceConfig `toml:"keystore,omitempty"`
	WalletConfig   WalletServiceConfig   `toml:"wallet,omitempty"`
}

// BaseServiceConfig represents configurable properties common to all services
type BaseServiceConfig struct {
	Name string `toml:"name"`
}

type KeyStoreServiceConfig struct {
	*BaseServiceConfig
	// Service key password. Used by a KDF whose key is used by a symmetric cypher for key encryption.
	// The password is salted before usage.
	ServiceKeyPassword string `toml:"password"`
}

func (k *KeyStoreServiceConfig) IsEmpty() bool {
	if k == nil {
		return true
	}
	return reflect.DeepEqual(k, &KeyStoreServiceConfig{})
}

type WalletServiceConfig struct {
	*BaseServiceConfig
	// When true the holder must always confirm which credentials are shared,
	// even when every input descriptor has exactly one candidate.
	RequireSelection bool `toml:"require_selection"`
	// Attempts made by the network capability before a request is declared
	// unreachable.
	NetworkRetries uint64 `toml:"network_retries"`
	// Attempts made to persist an issued credential before the flow fails.
	StoreRetries int `toml:"store_retries"`
}

func (w *WalletServiceConfig) IsEmpty() bool {
	if w == nil {
		return true
	}
	return reflect.DeepEqual(w, &WalletServiceConfig{})
}

// LoadConfig attempts to load a TOML config file from the given path, and coerce it into our object model.
// Before loading, defaults are applied on certain properties, which are overwritten if specified in the TOML file.
func LoadConfig(path string) (*WalletConfig, error) {
	// no path, load default config
	defaultConfig := false
	if path == "" {
		logrus.Info("no config path provided, loading default config...")
		defaultConfig = true
	} else if filepath.Ext(path) != ConfigExtension {
		return nil, fmt.Errorf("path<%s> did not match the expected TOML format", path)
	}

	var config WalletConfig

	// parse and apply defaults
	if err := conf.Parse(os.Args[1:], ServiceName, &config); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "parsing config")
			}
			fmt.Println(usage)

			return nil, nil

		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "generating config version")
			}

			fmt.Println(version)
			return nil, nil
		}

		return nil, errors.Wrap(err, "parsing config")
	}

	if defaultConfig {
		config.Services = defaultServicesConfig()
	} else {
		// load from TOML file
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, errors.Wrapf(err, "could not load config: %s", path)
		}

		applyServiceDefaults(&config.Services)
	}

	return &config, nil
}

func defaultServicesConfig() ServicesConfig {
	return ServicesConfig{
		StorageProvider: "bolt",
		KeyStoreConfig: KeyStoreServiceConfig{
			BaseServiceConfig:  &BaseServiceConfig{Name: "keystore"},
			ServiceKeyPassword: "default-password",
		},
		WalletConfig: WalletServiceConfig{
			BaseServiceConfig: &BaseServiceConfig{Name: "wallet"},
			NetworkRetries:    3,
			StoreRetries:      3,
		},
	}
}

func applyServiceDefaults(services *ServicesConfig) {
	if services.KeyStoreConfig.IsEmpty() {
		services.KeyStoreConfig = KeyStoreServiceConfig{
			BaseServiceConfig:  &BaseServiceConfig{Name: "keystore"},
			ServiceKeyPassword: "default-password",
		}
	}
	if services.WalletConfig.IsEmpty() {
		services.WalletConfig = WalletServiceConfig{
			BaseServiceConfig: &BaseServiceConfig{Name: "wallet"},
		}
	}
	if services.WalletConfig.NetworkRetries == 0 {
		services.WalletConfig.NetworkRetries = 3
	}
	if services.WalletConfig.StoreRetries == 0 {
		services.WalletConfig.StoreRetries = 3
	}
}
