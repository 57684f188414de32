// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/bitfsorg/libtreasury-go/revshare"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" && cfg.Network != "regtest" {
		return ErrInvalidNetwork
	}

	// An empty metrics address disables the metrics endpoint.
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMetricsAddr, err)
		}
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	if len(cfg.Streams) == 0 {
		return ErrNoStreams
	}
	seen := make(map[string]bool, len(cfg.Streams))
	for _, s := range cfg.Streams {
		if s == "" || seen[s] {
			return fmt.Errorf("%w: %q", ErrInvalidStream, s)
		}
		seen[s] = true
	}

	if _, err := cfg.AdminIdentities(); err != nil {
		return err
	}

	return nil
}

// AdminIdentities parses the configured admins.
func (cfg Config) AdminIdentities() ([]revshare.Identity, error) {
	ids := make([]revshare.Identity, 0, len(cfg.Admins))
	for _, a := range cfg.Admins {
		id, err := revshare.ParseIdentity(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAdmin, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
