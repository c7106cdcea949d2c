package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "sessionkeeper.yaml"

type Config interface {
	EnvConfig
	RefreshConfig
	StoreConfig
	EndpointConfig
	DevServerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFolder() string
}

type mainConfig struct {
	EnvVars   `yaml:",inline"`
	Refresh   Refresh   `yaml:"refresh"`
	Store     Store     `yaml:"store"`
	Endpoint  Endpoint  `yaml:"endpoint"`
	DevServer DevServer `yaml:"devserver"`
}

// Load reads the configuration. Sources, first match wins:
//  1. the explicit path;
//  2. the file named by CONFIG_PATH;
//  3. ./sessionkeeper.yaml;
//  4. environment variables only.
//
// Environment variables override file values in every case.
func Load(path string) (Config, error) {
	var cfg mainConfig

	readFile := func(p string) error {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return fmt.Errorf("failed to read config %s: %w", p, err)
		}
		return nil
	}

	switch {
	case path != "":
		if err := readFile(path); err != nil {
			return nil, err
		}
	case os.Getenv("CONFIG_PATH") != "":
		if err := readFile(os.Getenv("CONFIG_PATH")); err != nil {
			return nil, err
		}
	default:
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			if err := readFile(DefaultConfigFile); err != nil {
				return nil, err
			}
		} else if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c mainConfig) validate() error {
	if c.Refresh.Buffer < 0 {
		return fmt.Errorf("refresh.buffer must not be negative")
	}
	if c.Refresh.Heartbeat <= 0 {
		return fmt.Errorf("refresh.heartbeat must be positive")
	}
	if c.Refresh.Timeout < 0 {
		return fmt.Errorf("refresh.timeout must not be negative")
	}
	if c.DevServer.AccessTokenExpiry <= 0 {
		return fmt.Errorf("devserver.access_token_expiry must be positive")
	}
	return nil
}
