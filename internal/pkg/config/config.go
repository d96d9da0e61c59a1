package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	SorelCfg    *SorelConfig `envPrefix:"SOREL_"`
	MqttCfg     *MqttConfig  `envPrefix:"MQTT_"`
	StorePath   string       `env:"STORE_PATH" envDefault:"sorel_connect.json"`
	DatabaseURL string       `env:"DATABASE_URL"`
	HTTPAddr    string       `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	LogLevel    string       `env:"LOG_LEVEL" envDefault:"INFO"`
}

type SorelConfig struct {
	ID             string        `env:"ID,required,notEmpty"`
	Email          string        `env:"EMAIL,required,notEmpty"`
	Password       string        `env:"PASSWORD,required,notEmpty"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	// HostFormat is a fmt format taking the installation id.
	HostFormat string `env:"HOST_FORMAT" envDefault:"https://%s.sorel-connect.net"`
}

type MqttConfig struct {
	Host      string `env:"HOST"`
	Username  string `env:"USER"`
	Password  string `env:"PASS"`
	BaseTopic string `env:"BASE_TOPIC" envDefault:"sorel_connect"`
	// DiscoveryPrefix is the Home Assistant discovery topic prefix.
	DiscoveryPrefix string `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
}

// Enabled reports whether an MQTT broker is configured.
func (c *MqttConfig) Enabled() bool {
	return c != nil && c.Host != ""
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		SorelCfg: &SorelConfig{},
		MqttCfg:  &MqttConfig{},
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
