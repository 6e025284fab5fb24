package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walletbridge.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != DefaultChainID {
		t.Fatalf("chain id: %q", cfg.ChainID)
	}
	if cfg.DefaultEndpoint != DefaultEndpoint {
		t.Fatalf("endpoint: %q", cfg.DefaultEndpoint)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("timeout: %v", cfg.RequestTimeout())
	}
}

func TestLoadBackfillsPartialFile(t *testing.T) {
	path := writeConfig(t, `
Origin = "https://wallet.example.com"
SignerURL = "wss://signer.example.com/bridge"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != DefaultChainID {
		t.Fatalf("chain id not backfilled: %q", cfg.ChainID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRequiresOriginAndSignerURL(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without origin")
	}

	cfg.Origin = "https://wallet.example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without signer url")
	}

	cfg.SignerURL = "::not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for malformed signer url")
	}

	cfg.SignerURL = "wss://signer.example.com/bridge"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
ChainID = "sepolia"
DefaultEndpoint = "https://ethereum-sepolia-rpc.publicnode.com"
Origin = "https://wallet.example.com"
SignerURL = "wss://signer.example.com/bridge"
RequestTimeoutSeconds = 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != "sepolia" {
		t.Fatalf("chain id: %q", cfg.ChainID)
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Fatalf("timeout: %v", cfg.RequestTimeout())
	}
}
