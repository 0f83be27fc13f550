// Package config loads ServerConfig from a YAML document, overlaid
// with .env-supplied environment overrides, grounded on
// orbas1-Synnergy's wallet server bootstrap (godotenv.Load then
// os.Getenv) and its devnet CLI's yaml.Unmarshal config loading,
// combined into the single decode pass §10.2 describes.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nictuku/voxelserver/internal/protocol"
)

// TransportKind selects which Transport variant Server::bind uses.
type TransportKind string

const (
	TransportTCP  TransportKind = "tcp"
	TransportQUIC TransportKind = "quic"
)

// StatsKind selects the StatsRecorder variant (§4.4).
type StatsKind string

const (
	StatsNoOp   StatsKind = "noop"
	StatsAtomic StatsKind = "atomic"
)

// ServerConfig covers the Server::bind fields named in §6 plus the
// TLS, world-path and asset-root fields a complete bootstrap needs.
type ServerConfig struct {
	Transport            TransportKind `yaml:"transport"`
	Address              string        `yaml:"address"`
	Workers              int           `yaml:"workers"`
	CompressionThreshold int           `yaml:"compression_threshold"`
	Stats                StatsKind     `yaml:"stats"`

	TLSCertPath string `yaml:"tls_cert_path"`
	TLSKeyPath  string `yaml:"tls_key_path"`

	WorldPaths []string `yaml:"world_paths"`
	AssetRoots []string `yaml:"asset_roots"`

	TickInterval time.Duration `yaml:"tick_interval"`
}

// Default returns a ServerConfig with every field the bootstrap
// relies on at a safe non-zero value, so a minimal YAML document only
// needs to override what it cares about.
func Default() ServerConfig {
	return ServerConfig{
		Transport:            TransportTCP,
		Address:              ":25565",
		Workers:              4,
		CompressionThreshold: 256,
		Stats:                StatsNoOp,
		TickInterval:         50 * time.Millisecond,
	}
}

// Load reads envPath (a .env file; a missing file is not an error —
// godotenv.Load's own error is swallowed here exactly as the wallet
// server bootstrap does not treat a missing .env as fatal in
// development), then decodes yamlPath into a ServerConfig seeded from
// Default. Environment variables already present in the process are
// not overwritten by the .env file's values (godotenv.Load's default
// behavior), matching "a .env file can supply secrets without
// committing them" rather than silently overriding deployment-set env
// vars.
func Load(yamlPath, envPath string) (ServerConfig, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := Default()

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return ServerConfig{}, protocol.ErrAssetDecode(yamlPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ServerConfig{}, protocol.ErrAssetDecode(yamlPath, fmt.Errorf("parsing yaml: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Validate rejects a ServerConfig the bootstrap cannot act on. Config
// validation failures are startup-fatal (§7), using the same error
// taxonomy as AssetDecodeError.
func (c ServerConfig) Validate() error {
	switch c.Transport {
	case TransportTCP, TransportQUIC:
	default:
		return protocol.ErrAssetDecode("config", fmt.Errorf("unknown transport %q", c.Transport))
	}
	switch c.Stats {
	case StatsNoOp, StatsAtomic:
	default:
		return protocol.ErrAssetDecode("config", fmt.Errorf("unknown stats kind %q", c.Stats))
	}
	if c.Address == "" {
		return protocol.ErrAssetDecode("config", fmt.Errorf("address must not be empty"))
	}
	if c.Workers <= 0 {
		return protocol.ErrAssetDecode("config", fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Transport == TransportQUIC && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return protocol.ErrAssetDecode("config", fmt.Errorf("quic transport requires tls_cert_path and tls_key_path"))
	}
	if c.TickInterval <= 0 {
		return protocol.ErrAssetDecode("config", fmt.Errorf("tick_interval must be positive"))
	}
	return nil
}
