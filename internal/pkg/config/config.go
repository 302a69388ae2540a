package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Geocoder  GeocoderConfig  `mapstructure:"geocoder"`
	Maps      MapsConfig      `mapstructure:"maps"`
	Icons     IconsConfig     `mapstructure:"icons"`
	Themers   ThemersConfig   `mapstructure:"themers"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	AllowOrigins string `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig points at the host's database. It is only read, and only
// when enabled: listing maps can always be rendered from inline GeoJSON.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type GeocoderConfig struct {
	Provider  string          `mapstructure:"provider"` // nominatim | google
	CacheTTL  int             `mapstructure:"cache_ttl"`
	Nominatim NominatimConfig `mapstructure:"nominatim"`
	Google    GoogleConfig    `mapstructure:"google"`
}

type NominatimConfig struct {
	URL       string  `mapstructure:"url"`
	UserAgent string  `mapstructure:"user_agent"`
	Email     string  `mapstructure:"email"`
	Language  string  `mapstructure:"language"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second
	Timeout   int     `mapstructure:"timeout"`
}

type GoogleConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type MapsConfig struct {
	DefaultLibrary  string `mapstructure:"default_library"`
	GoogleAPIKey    string `mapstructure:"google_api_key"`
	TileURL         string `mapstructure:"tile_url"`
	TileAttribution string `mapstructure:"tile_attribution"`
}

type IconsConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	HeadTimeout int    `mapstructure:"head_timeout"`
	CacheTTL    int    `mapstructure:"cache_ttl"`
}

type ThemersConfig struct {
	PresetsFile string `mapstructure:"presets_file"`
}

type TemporalConfig struct {
	HostPort      string `mapstructure:"host_port"`
	Namespace     string `mapstructure:"namespace"`
	TaskQueue     string `mapstructure:"task_queue"`
	AuditInterval int    `mapstructure:"audit_interval"` // minutes
}

// NominatimTimeout is the per-request timeout of the Nominatim client.
func (g GeocoderConfig) NominatimTimeout() time.Duration {
	return time.Duration(g.Nominatim.Timeout) * time.Second
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.allow_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "geofield")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "geofield")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("geocoder.provider", "nominatim")
	v.SetDefault("geocoder.cache_ttl", 86400)
	v.SetDefault("geocoder.nominatim.url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.nominatim.user_agent", "geofield/1.0")
	v.SetDefault("geocoder.nominatim.rate_limit", 1.0)
	v.SetDefault("geocoder.nominatim.timeout", 10)
	v.SetDefault("geocoder.nominatim.email", "")
	v.SetDefault("geocoder.nominatim.language", "")
	v.SetDefault("geocoder.google.api_key", "")
	v.SetDefault("maps.default_library", "leaflet")
	v.SetDefault("maps.google_api_key", "")
	v.SetDefault("maps.tile_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("maps.tile_attribution", "&copy; OpenStreetMap contributors")
	v.SetDefault("icons.base_url", "")
	v.SetDefault("icons.head_timeout", 5)
	v.SetDefault("icons.cache_ttl", 3600)
	v.SetDefault("themers.presets_file", "")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "geofield-icon-audit")
	v.SetDefault("temporal.audit_interval", 60)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: GEOFIELD_GEOCODER_NOMINATIM_EMAIL → geocoder.nominatim.email.
	// AutomaticEnv only reaches keys that have a default or a file value.
	v.SetEnvPrefix("GEOFIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	switch c.Geocoder.Provider {
	case "nominatim":
		if c.Geocoder.Nominatim.URL == "" {
			errs = append(errs, "geocoder.nominatim.url is required")
		}
		if c.Geocoder.Nominatim.UserAgent == "" {
			errs = append(errs, "geocoder.nominatim.user_agent is required by the Nominatim usage policy")
		}
	case "google":
		if c.Geocoder.Google.APIKey == "" {
			errs = append(errs, "geocoder.google.api_key is required for the google provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("geocoder.provider must be nominatim or google, got %q", c.Geocoder.Provider))
	}
	if c.Geocoder.CacheTTL < 0 {
		errs = append(errs, "geocoder.cache_ttl must not be negative")
	}

	switch c.Maps.DefaultLibrary {
	case "google", "leaflet":
	default:
		errs = append(errs, fmt.Sprintf("maps.default_library must be google or leaflet, got %q", c.Maps.DefaultLibrary))
	}
	if c.Icons.HeadTimeout <= 0 {
		errs = append(errs, "icons.head_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
