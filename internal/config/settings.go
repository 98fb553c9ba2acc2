package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QSYNC"

// Settings are the runtime knobs of the qsync command.
type Settings struct {
	// DB is the SQLite trace database path. Empty disables persistence.
	DB string `mapstructure:"db"`

	// Profile is the CUE device profile path. Empty uses DefaultProfile.
	Profile string `mapstructure:"profile"`

	// Timeout overrides the profile's waitTimeout when non-zero.
	Timeout time.Duration `mapstructure:"timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// NewViper returns a viper instance with qsync defaults, QSYNC_* environment
// overrides, and the config file named by QSYNC_CONFIG (YAML) if set.
// Callers bind flags onto it before calling LoadSettings.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("db", "")
	v.SetDefault("profile", "")
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("log_level", "warn")

	v.SetConfigType("yaml")
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return v
}

// LoadSettings reads the config file (if one was named) and decodes v.
func LoadSettings(v *viper.Viper) (Settings, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Settings{}, fmt.Errorf("invalid log_level %q", s.LogLevel)
	}
	return s, nil
}

// ResolveProfile loads the profile named by s (or the default) and applies
// the timeout override.
func (s Settings) ResolveProfile() (Profile, error) {
	p := DefaultProfile()
	if s.Profile != "" {
		var err error
		if p, err = LoadProfile(s.Profile); err != nil {
			return Profile{}, err
		}
	}
	if s.Timeout != 0 {
		p.WaitTimeout = s.Timeout
	}
	return p, nil
}
