package config

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/viper"

	"roundtrip-router/internal/oracle"
	"roundtrip-router/internal/routing"
)

// Config holds service and CLI settings
type Config struct {
	ServerAddr            string        `mapstructure:"SERVER_ADDR"`
	OracleURL             string        `mapstructure:"ORACLE_URL"`
	OracleProfile         string        `mapstructure:"ORACLE_PROFILE"`
	OracleTimeout         time.Duration `mapstructure:"ORACLE_TIMEOUT"`
	OracleDisableFallback bool          `mapstructure:"ORACLE_DISABLE_FALLBACK"`
	GeocoderURL           string        `mapstructure:"GEOCODER_URL"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBPath                string        `mapstructure:"DB_PATH"`
	DefaultPace           float64       `mapstructure:"DEFAULT_PACE"`
	DefaultTolerance      float64       `mapstructure:"DEFAULT_TOLERANCE"`
	AcceptCap             int           `mapstructure:"ACCEPT_CAP"`
	FanOut                int           `mapstructure:"FAN_OUT"`
}

// SetDefaults registers every key so AutomaticEnv can override it
func SetDefaults(v *viper.Viper) {
	defaults := routing.DefaultOptions()

	v.SetDefault("SERVER_ADDR", "127.0.0.1:8080")
	v.SetDefault("ORACLE_URL", oracle.DefaultBaseURL)
	v.SetDefault("ORACLE_PROFILE", oracle.DefaultProfile)
	v.SetDefault("ORACLE_TIMEOUT", oracle.DefaultTimeout)
	v.SetDefault("ORACLE_DISABLE_FALLBACK", false)
	v.SetDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_PATH", "")
	v.SetDefault("DEFAULT_PACE", defaults.PaceMinutesPerKm)
	v.SetDefault("DEFAULT_TOLERANCE", defaults.ToleranceMinutes)
	v.SetDefault("ACCEPT_CAP", defaults.AcceptCap)
	v.SetDefault("FAN_OUT", defaults.FanOut)
}

// LoadConfig reads an optional .env file from path, then the environment
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Println("[CONFIG] No .env file found, using environment and defaults")
	}

	return FromViper(v)
}

// FromViper decodes an already populated viper instance. The CLI uses this
// after binding its flags.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// OracleConfig returns the routing oracle client settings
func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		BaseURL:              c.OracleURL,
		Profile:              c.OracleProfile,
		Timeout:              c.OracleTimeout,
		FallbackPaceMinPerKm: c.DefaultPace,
		DisableFallback:      c.OracleDisableFallback,
	}
}

// SearchOptions returns engine options seeded with the configured defaults
func (c *Config) SearchOptions() routing.Options {
	opts := routing.DefaultOptions()
	opts.PaceMinutesPerKm = c.DefaultPace
	opts.ToleranceMinutes = c.DefaultTolerance
	opts.AcceptCap = c.AcceptCap
	opts.FanOut = c.FanOut
	return opts
}
