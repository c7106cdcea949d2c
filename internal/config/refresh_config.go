package config

import "time"

type RefreshConfig interface {
	GetRefreshBuffer() time.Duration
	GetHeartbeatInterval() time.Duration
	GetRefreshTimeout() time.Duration
}

type Refresh struct {
	Buffer    time.Duration `yaml:"buffer"    env:"REFRESH_BUFFER"     env-default:"2m"`
	Heartbeat time.Duration `yaml:"heartbeat" env:"HEARTBEAT_INTERVAL" env-default:"30s"`
	Timeout   time.Duration `yaml:"timeout"   env:"REFRESH_TIMEOUT"    env-default:"15s"`
}

var _ RefreshConfig = mainConfig{}

// GetRefreshBuffer is the lead time before expiry at which the proactive
// refresh runs.
func (c mainConfig) GetRefreshBuffer() time.Duration {
	return c.Refresh.Buffer
}

func (c mainConfig) GetHeartbeatInterval() time.Duration {
	return c.Refresh.Heartbeat
}

func (c mainConfig) GetRefreshTimeout() time.Duration {
	return c.Refresh.Timeout
}
