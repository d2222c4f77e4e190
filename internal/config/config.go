package config

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/matrixise/dog-tracker/internal/scheduler"
)

// Config represents the application configuration
type Config struct {
	// OKX Web3 API
	APIBaseURL     string        `mapstructure:"api_base_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key" validate:"required"`
	APISecret      string        `mapstructure:"api_secret" validate:"required"`
	APIPassphrase  string        `mapstructure:"api_passphrase" validate:"required"`
	ChainShortName string        `mapstructure:"chain_short_name" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UseProxy       bool          `mapstructure:"use_proxy"`
	ProxyURL       string        `mapstructure:"proxy_url" validate:"required_if=UseProxy true,omitempty,proxy_url"`

	// Tracked contracts
	TokenContract  string `mapstructure:"token_contract" validate:"required,eth_addr"`
	PoolAddress    string `mapstructure:"pool_address" validate:"omitempty,eth_addr"`
	LPTokenAddress string `mapstructure:"lp_token_address" validate:"omitempty,eth_addr"`

	// Optional X Layer RPC endpoints, read the pool state on chain when set
	RPCURLs []string `mapstructure:"rpc_urls" validate:"omitempty,dive,url"`

	// Files
	UsersFile        string `mapstructure:"users_file" validate:"required"`
	SnapshotFile     string `mapstructure:"snapshot_file" validate:"required"`
	TransfersFile    string `mapstructure:"transfers_file"`
	IncludeTransfers bool   `mapstructure:"include_transfers"`

	// Polling pace
	PageSize     int           `mapstructure:"page_size" validate:"min=1,max=100"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	PageDelay    time.Duration `mapstructure:"page_delay"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	AddressDelay time.Duration `mapstructure:"address_delay"`
	UserDelay    time.Duration `mapstructure:"user_delay"`

	// Daemon
	Interval       string `mapstructure:"interval" validate:"omitempty,schedule"`
	Timezone       string `mapstructure:"timezone" validate:"omitempty,timezone"`
	RunImmediately *bool  `mapstructure:"run_immediately"`
	LogLevel       string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile        string `mapstructure:"log_file"`
	HTTPPort       int    `mapstructure:"http_port" validate:"omitempty,min=1024,max=65535"`
}

// Normalize fills derived values. A Uniswap V2 pair is its own LP token, so
// the LP token defaults to the pool address.
func (c *Config) Normalize() error {
	if c.TokenContract == "" {
		return errors.New("token_contract is required")
	}
	if c.LPTokenAddress == "" {
		c.LPTokenAddress = c.PoolAddress
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	return nil
}

// PoolEnabled reports whether pool share tracking is configured
func (c *Config) PoolEnabled() bool {
	return c.PoolAddress != "" && c.LPTokenAddress != ""
}

// GetTimezone returns the configured location, UTC when unset or invalid
func (c *Config) GetTimezone() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ShouldRunImmediately defaults to true
func (c *Config) ShouldRunImmediately() bool {
	if c.RunImmediately == nil {
		return true
	}
	return *c.RunImmediately
}

// IsCronExpression reports whether Interval is a cron expression rather than a duration
func (c *Config) IsCronExpression() bool {
	return scheduler.IsCronExpression(c.Interval)
}

// ethAddressValidator validates EVM addresses
func ethAddressValidator(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// scheduleValidator accepts clock-aligned durations and cron expressions
func scheduleValidator(fl validator.FieldLevel) bool {
	return scheduler.ValidateScheduleInterval(fl.Field().String()) == nil
}

// proxyURLValidator accepts socks5, http and https proxy URLs
func proxyURLValidator(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	for _, scheme := range []string{"socks5://", "socks5h://", "http://", "https://"} {
		if strings.HasPrefix(v, scheme) && len(v) > len(scheme) {
			return true
		}
	}
	return false
}

// NewValidator creates a validator with custom validation rules
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterValidation("eth_addr", ethAddressValidator)
	validate.RegisterValidation("schedule", scheduleValidator)
	validate.RegisterValidation("proxy_url", proxyURLValidator)
	return validate
}
