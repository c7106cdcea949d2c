package config

import (
	"path/filepath"
	"time"
)

type StoreConfig interface {
	GetStorePath() string
	GetStoreOpenTimeout() time.Duration
}

type Store struct {
	// Path of the shared bolt file. Empty means <data folder>/sessionkeeper.db.
	Path        string        `yaml:"path"         env:"STORE_PATH"`
	OpenTimeout time.Duration `yaml:"open_timeout" env:"STORE_OPEN_TIMEOUT" env-default:"2s"`
}

var _ StoreConfig = mainConfig{}

func (c mainConfig) GetStorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.GetDataFolder(), "sessionkeeper.db")
}

func (c mainConfig) GetStoreOpenTimeout() time.Duration {
	return c.Store.OpenTimeout
}
