package main

import (
	"strings"
	"time"

	"github.com/MrEthical07/goMFA"
	"github.com/samber/oops"
	"github.com/spf13/viper"
)

// cliConfig is read from the optional --config file, then GOMFA_* env vars,
// then flags.
type cliConfig struct {
	DatabaseURL     string        `mapstructure:"database_url"`
	ChallengeWindow time.Duration `mapstructure:"challenge_window"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("GOMFA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_url", "")
	v.SetDefault("challenge_window", goMFA.DefaultChallengeWindow)
	v.SetDefault("sweep_interval", time.Minute)
	v.SetDefault("metrics_addr", "127.0.0.1:9109")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	return v
}

func loadConfig(v *viper.Viper, path string) (*cliConfig, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *cliConfig) validate() error {
	if c.ChallengeWindow <= 0 || c.ChallengeWindow%time.Second != 0 {
		return oops.Code("CONFIG_INVALID").With("challenge_window", c.ChallengeWindow).
			Errorf("challenge_window must be a positive whole number of seconds")
	}
	if c.SweepInterval < 0 {
		return oops.Code("CONFIG_INVALID").With("sweep_interval", c.SweepInterval).
			Errorf("sweep_interval must not be negative")
	}
	return nil
}

func (c *cliConfig) requireDatabase() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required (flag --database-url or GOMFA_DATABASE_URL)")
	}
	return nil
}

// engineConfig maps CLI settings onto the engine defaults.
func (c *cliConfig) engineConfig() goMFA.Config {
	cfg := goMFA.DefaultConfig()
	cfg.Challenge.Window = c.ChallengeWindow
	cfg.Challenge.SweepInterval = c.SweepInterval
	return cfg
}
