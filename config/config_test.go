// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bitfsorg/libtreasury-go/revshare"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------------------------------------------------------------------------
// DefaultConfig / SaveConfig / LoadConfig
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if filepath.Base(cfg.DataDir) != ".treasury" {
		t.Errorf("DataDir = %q, want a .treasury directory", cfg.DataDir)
	}
	if !slices.Equal(cfg.Streams, []string{"deposits"}) {
		t.Errorf("Streams = %v, want [deposits]", cfg.Streams)
	}
	if cfg.Admins != nil {
		t.Errorf("Admins = %v, want none", cfg.Admins)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig(DefaultConfig()) = %v, want nil", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")
	original := Config{
		DataDir:     "/tmp/test-treasury",
		Network:     "testnet",
		LogLevel:    "debug",
		LogFile:     "/tmp/treasury.log",
		MetricsAddr: ":9000",
		Streams:     []string{"deposits", "rewards"},
		Admins:      []string{strings.Repeat("ab", 20), strings.Repeat("cd", 20)},
	}

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.DataDir != original.DataDir || loaded.Network != original.Network ||
		loaded.LogLevel != original.LogLevel || loaded.LogFile != original.LogFile ||
		loaded.MetricsAddr != original.MetricsAddr {
		t.Errorf("scalar fields: got %+v, want %+v", loaded, original)
	}
	if !slices.Equal(loaded.Streams, original.Streams) {
		t.Errorf("Streams = %v, want %v", loaded.Streams, original.Streams)
	}
	if !slices.Equal(loaded.Admins, original.Admins) {
		t.Errorf("Admins = %v, want %v", loaded.Admins, original.Admins)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config")
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadConfig nonexistent: got %v, want ErrConfigNotFound", err)
	}

	_, err = LoadConfig(writeConfig(t, "streams deposits\n"))
	if !errors.Is(err, ErrInvalidConfigLine) {
		t.Errorf("LoadConfig bad line: got %v, want ErrInvalidConfigLine", err)
	}
}

// ---------------------------------------------------------------------------
// List values
// ---------------------------------------------------------------------------

func TestLoadConfigLists(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantStreams []string
		wantAdmins  []string
	}{
		{
			name:        "defaults_kept",
			content:     "# only a comment\nfuturekey = ignored\n",
			wantStreams: []string{"deposits"},
		},
		{
			name:        "trimmed_items",
			content:     "streams =  deposits , rewards ,fees\n",
			wantStreams: []string{"deposits", "rewards", "fees"},
		},
		{
			name:        "empty_items_dropped",
			content:     "streams = ,deposits,,\nadmins = ,\n",
			wantStreams: []string{"deposits"},
		},
		{
			name:    "empty_value_clears",
			content: "streams =\n",
		},
		{
			name:        "later_line_wins",
			content:     "streams = a\nstreams = b,c\nadmins = " + strings.Repeat("01", 20) + "\n",
			wantStreams: []string{"b", "c"},
			wantAdmins:  []string{strings.Repeat("01", 20)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tc.content))
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if !slices.Equal(cfg.Streams, tc.wantStreams) {
				t.Errorf("Streams = %q, want %q", cfg.Streams, tc.wantStreams)
			}
			if !slices.Equal(cfg.Admins, tc.wantAdmins) {
				t.Errorf("Admins = %q, want %q", cfg.Admins, tc.wantAdmins)
			}
		})
	}
}

func TestLoadConfigEmptyStreamsFailsValidation(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "streams = , ,\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := ValidateConfig(cfg); !errors.Is(err, ErrNoStreams) {
		t.Errorf("ValidateConfig: got %v, want ErrNoStreams", err)
	}
}

// ---------------------------------------------------------------------------
// ValidateConfig
// ---------------------------------------------------------------------------

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"empty_datadir", func(c *Config) { c.DataDir = "" }, ErrEmptyDataDir},
		{"bad_network", func(c *Config) { c.Network = "devnet" }, ErrInvalidNetwork},
		{"bad_metrics_addr", func(c *Config) { c.MetricsAddr = "not-a-valid-addr" }, ErrInvalidMetricsAddr},
		{"bad_loglevel", func(c *Config) { c.LogLevel = "verbose" }, ErrInvalidLogLevel},
		{"no_streams", func(c *Config) { c.Streams = nil }, ErrNoStreams},
		{"empty_stream", func(c *Config) { c.Streams = []string{"deposits", ""} }, ErrInvalidStream},
		{"duplicate_stream", func(c *Config) { c.Streams = []string{"deposits", "deposits"} }, ErrInvalidStream},
		{"bad_admin", func(c *Config) { c.Admins = []string{"nobody"} }, ErrInvalidAdmin},
		{"short_hex_admin", func(c *Config) { c.Admins = []string{strings.Repeat("ab", 19)} }, ErrInvalidAdmin},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if err := ValidateConfig(cfg); !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateConfig: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

func TestAdminIdentities(t *testing.T) {
	want := revshare.Identity{0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b,
		0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b}
	addr, err := want.Address(true)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Admins = []string{strings.Repeat("0a", 20), addr}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig with hex and address admins: %v", err)
	}

	ids, err := cfg.AdminIdentities()
	if err != nil {
		t.Fatalf("AdminIdentities: %v", err)
	}
	if len(ids) != 2 || ids[0][0] != 0x0a || ids[1] != want {
		t.Errorf("AdminIdentities = %v", ids)
	}
}

// ---------------------------------------------------------------------------
// ApplyEnv
// ---------------------------------------------------------------------------

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("TREASURY_NETWORK", "regtest")
	t.Setenv("TREASURY_STREAMS", "deposits,rewards")
	t.Setenv("TREASURY_METRICS_ADDR", "127.0.0.1:9100")

	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Network != "regtest" {
		t.Errorf("Network = %q, want %q", cfg.Network, "regtest")
	}
	if !slices.Equal(cfg.Streams, []string{"deposits", "rewards"}) {
		t.Errorf("Streams = %v, want [deposits rewards]", cfg.Streams)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, "127.0.0.1:9100")
	}
	// Unset variables leave the value alone.
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig after ApplyEnv: %v", err)
	}
}
