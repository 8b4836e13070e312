package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Address string `mapstructure:"address"`
	// Provider is written as the local active provider at startup.
	Provider       string `mapstructure:"provider"`
	StorePath      string `mapstructure:"store_path"`
	LocalStorePath string `mapstructure:"local_store_path"`
	ClaudeBaseURL  string `mapstructure:"claude_base_url"`
	Timezone       string `mapstructure:"timezone"`
	TelemetryURL   string `mapstructure:"telemetry_url"`
	Verbose        bool   `mapstructure:"verbose"`
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatgw/config.yaml"
	}
	return filepath.Join(home, ".chatgw", "config.yaml")
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("address", ":8080")
	v.SetDefault("provider", "claude.ai")
	v.SetDefault("store_path", defaultStorePath())
	v.SetDefault("local_store_path", ".chatgw.yaml")
	v.SetDefault("claude_base_url", "https://claude.ai")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("telemetry_url", "")
	v.SetDefault("verbose", false)

	// allow environment variables like CHATGW_ADDRESS
	v.SetEnvPrefix("CHATGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// don't fail if config file is missing, allow env-only config
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
