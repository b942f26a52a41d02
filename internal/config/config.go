// Package config loads the wager engine configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

var ErrInvalidAddress = errors.New("config: invalid account address")

// Config is the full service configuration. Empty DATABASE_URL selects the
// in-memory store; empty NATS_URL disables the NATS publisher; empty
// JWT_SECRET trusts the X-Account header (development only).
type Config struct {
	Port        string        `env:"PORT"         envDefault:"8080"`
	DatabaseURL string        `env:"DATABASE_URL"`
	RedisURL    string        `env:"REDIS_URL"`
	CacheTTL    time.Duration `env:"CACHE_TTL"    envDefault:"30s"`
	NATSURL     string        `env:"NATS_URL"`
	NATSSubject string        `env:"NATS_SUBJECT" envDefault:"wager"`
	JWTSecret   string        `env:"JWT_SECRET"`

	AdminAccounts   []string `env:"ADMIN_ACCOUNTS"   envSeparator:","`
	RegistryAddress string   `env:"REGISTRY_ADDRESS" envDefault:"0x000000000000000000000000000000000000a11c"`
	HouseAddress    string   `env:"HOUSE_ADDRESS"    envDefault:"0x000000000000000000000000000000000000b0a7"`
	AssetAddress    string   `env:"ASSET_ADDRESS"    envDefault:"0x000000000000000000000000000000000000c0de"`
	AssetDecimals   int32    `env:"ASSET_DECIMALS"   envDefault:"18"`
	Commission      int64    `env:"COMMISSION_PERCENTAGE" envDefault:"10"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load() // .env is optional

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every configured account address.
func (c Config) Validate() error {
	for name, v := range map[string]string{
		"REGISTRY_ADDRESS": c.RegistryAddress,
		"HOUSE_ADDRESS":    c.HouseAddress,
		"ASSET_ADDRESS":    c.AssetAddress,
	} {
		if !common.IsHexAddress(v) {
			return fmt.Errorf("%w: %s=%q", ErrInvalidAddress, name, v)
		}
	}
	for _, v := range c.AdminAccounts {
		if !common.IsHexAddress(v) {
			return fmt.Errorf("%w: ADMIN_ACCOUNTS entry %q", ErrInvalidAddress, v)
		}
	}
	if c.AssetDecimals < 0 || c.AssetDecimals > 36 {
		return fmt.Errorf("config: ASSET_DECIMALS out of range: %d", c.AssetDecimals)
	}
	return nil
}

func (c Config) Registry() common.Address { return common.HexToAddress(c.RegistryAddress) }
func (c Config) House() common.Address    { return common.HexToAddress(c.HouseAddress) }
func (c Config) Asset() common.Address    { return common.HexToAddress(c.AssetAddress) }

// Admins returns the accounts granted the admin role at startup.
func (c Config) Admins() []common.Address {
	out := make([]common.Address, 0, len(c.AdminAccounts))
	for _, v := range c.AdminAccounts {
		out = append(out, common.HexToAddress(v))
	}
	return out
}
