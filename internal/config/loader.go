package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "DOG_TRACKER"

var defaults = map[string]any{
	"api_base_url":      "https://web3.okx.com",
	"api_key":           "",
	"api_secret":        "",
	"api_passphrase":    "",
	"chain_short_name":  "XLAYER",
	"request_timeout":   15 * time.Second,
	"use_proxy":         false,
	"proxy_url":         "socks5://127.0.0.1:10808",
	"token_contract":    "0x903358faf7c6304afbd560e9e29b12ab1b8fddc5",
	"pool_address":      "0x41027D3CaCc14F35Abd387B7350c05247e9Ac646",
	"lp_token_address":  "",
	"rpc_urls":          []string{},
	"users_file":        "users.json",
	"snapshot_file":     "balance-data.json",
	"transfers_file":    "pool-transfer-stats.json",
	"include_transfers": false,
	"page_size":         100,
	"max_attempts":      3,
	"page_delay":        500 * time.Millisecond,
	"retry_delay":       1500 * time.Millisecond,
	"address_delay":     500 * time.Millisecond,
	"user_delay":        time.Second,
	"interval":          "", // Run once by default
	"timezone":          "UTC",
	"run_immediately":   true,
	"log_level":         "info",
	"log_file":          "",
	"http_port":         8080,
}

// Unprefixed variables kept for compatibility with existing deployments
var legacyEnv = map[string]string{
	"api_key":        "OKX_API_KEY",
	"api_secret":     "OKX_API_SECRET",
	"api_passphrase": "OKX_API_PASSPHRASE",
	"use_proxy":      "USE_PROXY",
	"proxy_url":      "PROXY_URL",
	"log_level":      "LOG_LEVEL",
	"http_port":      "HTTP_PORT",
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. Configure config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	// DOG_TRACKER_API_KEY -> api_key
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key), env)
	}

	// 4. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 5. Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Normalize derived values
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("config normalization failed: %w", err)
	}

	// 7. Validate with validator
	validate := NewValidator()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithUsers loads the config and the users file it points to
func LoadWithUsers(configPath string) (*Config, []User, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	users, err := LoadUsers(cfg.UsersFile)
	if err != nil {
		return nil, nil, err
	}

	return cfg, users, nil
}
