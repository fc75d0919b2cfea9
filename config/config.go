// Package config loads hostdom settings from defaults, an optional config
// file and HOSTDOM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Script ScriptConfig `mapstructure:"script" yaml:"script"`
	Host   HostConfig   `mapstructure:"host" yaml:"host"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ScriptConfig configures the scripts run against a page.
type ScriptConfig struct {
	// LengthLimit is exposed to scripts as LENGTH_LIMIT.
	LengthLimit int `mapstructure:"length_limit" yaml:"length_limit"`
	// Builtin runs the bundled length check script before page scripts.
	Builtin bool `mapstructure:"builtin" yaml:"builtin"`
}

// HostConfig selects the document host.
type HostConfig struct {
	// Command, when set, is run as a child process speaking the stream
	// protocol on its stdin/stdout instead of using the in-process host.
	Command string `mapstructure:"command" yaml:"command"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "hostdom")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", false)

	v.SetDefault("script.length_limit", 100)
	v.SetDefault("script.builtin", true)

	v.SetDefault("host.command", "")
}

// New returns a viper instance with defaults and environment binding set
// up. If file is non-empty it is read; otherwise ./hostdom.yaml is read
// when present.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("hostdom")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("HOSTDOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Script.LengthLimit < 0 {
		return nil, fmt.Errorf("script.length_limit must not be negative, got %d", cfg.Script.LengthLimit)
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}
