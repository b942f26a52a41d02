package config

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("expected 30s cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.Commission != 10 {
		t.Errorf("expected default commission 10, got %d", cfg.Commission)
	}
	if len(cfg.Admins()) != 0 {
		t.Errorf("expected no admins, got %v", cfg.Admins())
	}
}

func TestLoad_FromEnv(t *testing.T) {
	admin := "0x00000000000000000000000000000000000000d1"
	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_ACCOUNTS", admin+",0x00000000000000000000000000000000000000d2")
	t.Setenv("ASSET_DECIMALS", "6")
	t.Setenv("NATS_SUBJECT", "bets")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.AssetDecimals != 6 || cfg.NATSSubject != "bets" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	admins := cfg.Admins()
	if len(admins) != 2 || admins[0] != common.HexToAddress(admin) {
		t.Errorf("unexpected admins: %v", admins)
	}
}

func TestLoad_RejectsBadAddress(t *testing.T) {
	t.Setenv("HOUSE_ADDRESS", "house")

	if _, err := Load(); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}
