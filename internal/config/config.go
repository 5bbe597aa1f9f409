// Package config loads go-steady configuration from defaults, an optional
// YAML file and STEADY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: telemetry.url is read
// from STEADY_TELEMETRY_URL.
const EnvPrefix = "STEADY"

// Config holds application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Session   SessionConfig   `mapstructure:"session"`
	Stability StabilityConfig `mapstructure:"stability"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TelemetryConfig holds telemetry stream settings.
type TelemetryConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

// BackendConfig holds sensor backend API settings.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DashboardConfig holds the local HTTP surface settings.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// SessionConfig holds training session settings.
type SessionConfig struct {
	CalibrationSeconds int     `mapstructure:"calibration_seconds"`
	MinScoringWeightKg float64 `mapstructure:"min_scoring_weight_kg"`
	MaxDurationSeconds int     `mapstructure:"max_duration_seconds"`
}

// StabilityConfig holds the local classifier thresholds.
type StabilityConfig struct {
	MinLoadKg    float64 `mapstructure:"min_load_kg"`
	GreenRadius  float64 `mapstructure:"green_radius"`
	YellowRadius float64 `mapstructure:"yellow_radius"`
}

// MQTTConfig holds event publishing settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// ErrInvalid indicates a configuration value that cannot be used.
var ErrInvalid = errors.New("config: invalid value")

// Load reads configuration. The file is taken from STEADY_CONFIG when set,
// otherwise steady.yaml is looked up in the working directory and in
// ~/.config/steady. A missing file is not an error.
func Load() (Config, error) {
	return LoadFile(os.Getenv(EnvPrefix + "_CONFIG"))
}

// LoadFile reads configuration from path, which must exist. An empty path
// searches the default locations instead.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("steady")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "steady"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("telemetry.url", "ws://localhost:8000/ws")
	v.SetDefault("telemetry.reconnect_delay", time.Second)
	v.SetDefault("telemetry.read_timeout", 5*time.Second)

	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 10*time.Second)

	v.SetDefault("dashboard.port", 8080)

	v.SetDefault("session.calibration_seconds", 3)
	v.SetDefault("session.min_scoring_weight_kg", 0.5)
	v.SetDefault("session.max_duration_seconds", 3600)

	v.SetDefault("stability.min_load_kg", 5.0)
	v.SetDefault("stability.green_radius", 0.2)
	v.SetDefault("stability.yellow_radius", 0.5)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "steady-client")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "steady")
}

// Validate checks values that the packages consuming them would only
// reject later.
func (c Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	if c.Telemetry.URL == "" {
		return fmt.Errorf("%w: telemetry.url is empty", ErrInvalid)
	}
	if c.Telemetry.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: telemetry.reconnect_delay must be positive", ErrInvalid)
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("%w: backend.url is empty", ErrInvalid)
	}
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("%w: dashboard.port %d", ErrInvalid, c.Dashboard.Port)
	}
	if c.Session.CalibrationSeconds <= 0 {
		return fmt.Errorf("%w: session.calibration_seconds must be positive", ErrInvalid)
	}
	return nil
}
