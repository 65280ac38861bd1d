package config

import (
	"bytes"
	"encoding/base64"
	"testing"

	"spot-trader/pkg/crypto"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "BTCUSDT" {
		t.Errorf("Symbols = %v", cfg.Symbols)
	}
	if cfg.RiskPerTrade != 0.02 {
		t.Errorf("RiskPerTrade = %v, want 0.02", cfg.RiskPerTrade)
	}
}

func TestLoadSealedCredentials(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, crypto.KeySize)
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := sealer.Seal("real-secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	t.Setenv("CREDENTIALS_KEY", base64.StdEncoding.EncodeToString(key))
	t.Setenv("BINANCE_API_SECRET", sealed)
	t.Setenv("BINANCE_API_KEY", "plain-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BinanceAPISecret != "real-secret" {
		t.Errorf("BinanceAPISecret = %q, want decrypted value", cfg.BinanceAPISecret)
	}
	if cfg.BinanceAPIKey != "plain-key" {
		t.Errorf("BinanceAPIKey = %q, plain values must pass through", cfg.BinanceAPIKey)
	}
}

func TestLoadSealedWithoutKeyFails(t *testing.T) {
	t.Setenv("BINANCE_API_SECRET", "enc:AAAA")

	if _, err := Load(); err == nil {
		t.Fatal("sealed credential without CREDENTIALS_KEY must fail")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" BTCUSDT, ETHUSDT ,,SOLUSDT")
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
