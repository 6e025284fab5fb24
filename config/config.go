// Package config describes how a provider instance is wired: which chain it
// speaks for, where the signer service lives, and which origin its
// notifications must carry.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when a field is absent from the file.
const (
	DefaultChainID  = "mainnet"
	DefaultEndpoint = "https://ethereum-rpc.publicnode.com"

	defaultRequestTimeoutSeconds = 30
)

type Config struct {
	ChainID               string `toml:"ChainID"`
	DefaultEndpoint       string `toml:"DefaultEndpoint"`
	SignerURL             string `toml:"SignerURL"`
	Origin                string `toml:"Origin"`
	RequestTimeoutSeconds int    `toml:"RequestTimeoutSeconds"`
}

// Load loads the configuration from the given path. A missing file yields the
// defaults; partial files are backfilled.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a configuration pointing at the public unauthenticated
// endpoint. Origin and SignerURL must still be supplied by the embedder.
func Default() *Config {
	return &Config{
		ChainID:               DefaultChainID,
		DefaultEndpoint:       DefaultEndpoint,
		RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ChainID) == "" {
		c.ChainID = DefaultChainID
	}
	if strings.TrimSpace(c.DefaultEndpoint) == "" {
		c.DefaultEndpoint = DefaultEndpoint
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
}

// Validate checks the fields an embedder must provide before the provider can
// be constructed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Origin) == "" {
		return fmt.Errorf("config: Origin is required")
	}
	if strings.TrimSpace(c.SignerURL) == "" {
		return fmt.Errorf("config: SignerURL is required")
	}
	if _, err := url.ParseRequestURI(c.SignerURL); err != nil {
		return fmt.Errorf("config: invalid SignerURL: %w", err)
	}
	if _, err := url.ParseRequestURI(c.DefaultEndpoint); err != nil {
		return fmt.Errorf("config: invalid DefaultEndpoint: %w", err)
	}
	return nil
}

// RequestTimeout is the per-operation deadline applied to signer round trips.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
