package config

import (
	"path/filepath"
	"strings"
)

type EnvVars struct {
	AppName    string `yaml:"app_name"    env:"APP_NAME"  env-default:"Session Keeper"`
	Env        string `yaml:"env"         env:"ENV"       env-default:"DEV"`
	LogLevel   string `yaml:"log_level"   env:"LOG_LEVEL" env-default:"info"`
	DataFolder string `yaml:"data_folder" env:"FOLDER"    env-default:"./data"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

// GetEnv returns the deployment environment, upper cased. DEV enables console
// logging and route logging.
func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetDataFolder() string {
	return filepath.Clean(e.DataFolder)
}
