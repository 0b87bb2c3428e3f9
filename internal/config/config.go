package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"location-spoof-guard/internal/geo"
	"location-spoof-guard/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Territory TerritoryConfig `mapstructure:"territory"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the audit store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MQTTConfig covers the telemetry broker connection.
type MQTTConfig struct {
	BrokerURL      string        `mapstructure:"broker_url"`
	ClientID       string        `mapstructure:"client_id"`
	FixTopic       string        `mapstructure:"fix_topic"`
	AccelTopic     string        `mapstructure:"accel_topic"`
	NMEATopic      string        `mapstructure:"nmea_topic"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// GuardConfig carries every detection threshold. All values are calibration
// inputs tuned against real device data, not physical constants.
type GuardConfig struct {
	MaxPlausibleSpeed     float64       `mapstructure:"max_plausible_speed"`     // m/s
	StaticCoordinateRun   int           `mapstructure:"static_coordinate_run"`   // identical fixes before firing
	StaticAccuracyRun     int           `mapstructure:"static_accuracy_run"`     // identical accuracies before firing
	WalkSpeed             float64       `mapstructure:"walk_speed"`              // m/s
	WalkVariance          float64       `mapstructure:"walk_variance"`           // magnitude variance floor
	MinMotionSamples      int           `mapstructure:"min_motion_samples"`
	MotionWindowCapacity  int           `mapstructure:"motion_window_capacity"`
	MockPollInterval      time.Duration `mapstructure:"mock_poll_interval"`
	TerritoryPollInterval time.Duration `mapstructure:"territory_poll_interval"`
}

// TerritoryConfig is the permitted boundary polygon, a closed vertex ring.
type TerritoryConfig struct {
	Vertices []geo.Point `mapstructure:"vertices"`
}

// Polygon builds the boundary polygon, or an empty one when unconfigured.
func (t TerritoryConfig) Polygon() (geo.Polygon, error) {
	if len(t.Vertices) == 0 {
		return geo.Polygon{}, nil
	}
	return geo.NewPolygon(t.Vertices)
}

// OracleConfig points at the external mock-detection endpoint.
type OracleConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines fraud alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOCGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "locguard")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "locguard")
	v.SetDefault("mqtt.fix_topic", "telemetry/fix")
	v.SetDefault("mqtt.accel_topic", "telemetry/accel")
	v.SetDefault("mqtt.nmea_topic", "")
	v.SetDefault("mqtt.connect_timeout", "10s")

	v.SetDefault("guard.max_plausible_speed", 200.0)
	v.SetDefault("guard.static_coordinate_run", 5)
	v.SetDefault("guard.static_accuracy_run", 8)
	v.SetDefault("guard.walk_speed", 0.4)
	v.SetDefault("guard.walk_variance", 0.02)
	v.SetDefault("guard.min_motion_samples", 10)
	v.SetDefault("guard.motion_window_capacity", 50)
	v.SetDefault("guard.mock_poll_interval", "5s")
	v.SetDefault("guard.territory_poll_interval", "30s")

	v.SetDefault("oracle.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Guard.MaxPlausibleSpeed <= 0 {
		return fmt.Errorf("guard.max_plausible_speed must be greater than zero")
	}
	if c.Guard.StaticCoordinateRun <= 0 || c.Guard.StaticAccuracyRun <= 0 {
		return fmt.Errorf("guard streak limits must be greater than zero")
	}
	if c.Guard.MinMotionSamples <= 0 || c.Guard.MotionWindowCapacity <= 0 {
		return fmt.Errorf("guard motion window settings must be greater than zero")
	}
	if c.Guard.MinMotionSamples > c.Guard.MotionWindowCapacity {
		return fmt.Errorf("guard.min_motion_samples cannot exceed guard.motion_window_capacity")
	}
	if c.Guard.MockPollInterval <= 0 || c.Guard.TerritoryPollInterval <= 0 {
		return fmt.Errorf("guard poll intervals must be greater than zero")
	}
	if _, err := c.Territory.Polygon(); err != nil {
		return fmt.Errorf("territory.vertices: %w", err)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
