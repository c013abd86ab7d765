// Package config loads and validates the backend's TOML configuration file.
// The one secret it carries is the operator-token signing key
// (admin.operator_token_secret), which lives here rather than in code.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DataDir string `toml:"data_dir"`

	Location LocationConfig `toml:"location"`
	Limits   LimitsConfig   `toml:"limits"`
	Admin    AdminConfig    `toml:"admin"`
	Server   ServerConfig   `toml:"server"`
}

// ServerConfig binds the REST (fasthttp) and WebSocket (gorilla) listeners
// plus the periodic housekeeping intervals cmd/backend's RunGroup starts.
type ServerConfig struct {
	HTTPAddr          string        `toml:"http_addr"`
	WSAddr            string        `toml:"ws_addr"`
	LocationSweepEvery time.Duration `toml:"location_sweep_interval"`
	StatsFlushEvery   time.Duration `toml:"stats_flush_interval"`
	WriteQueueDepth   int           `toml:"write_queue_depth"`
}

// LocationConfig bounds the geospatial grid (C6).
type LocationConfig struct {
	MinLat     float64 `toml:"min_lat"`
	MaxLat     float64 `toml:"max_lat"`
	MinLon     float64 `toml:"min_lon"`
	MaxLon     float64 `toml:"max_lon"`
	CellSizeKm float64 `toml:"cell_size_km"`
	// LastSeenHorizon: accounts with no activity for longer than this are
	// dropped from the index (invariant 6).
	LastSeenHorizon time.Duration `toml:"last_seen_horizon"`
}

type LimitsConfig struct {
	MaxSenderAckMissing   int `toml:"max_sender_ack_missing"`
	MaxReceiverAckMissing int `toml:"max_receiver_ack_missing"`
	MaxPublicKeyCount     int `toml:"max_public_key_count"`
	ModerationPageSize    int `toml:"moderation_page_size"`
	// MinEphemeralWaitSeconds gates typing/online events per sender-pair:
	// a frame arriving before the gate elapses is dropped
	// silently rather than queued or rejected.
	MinEphemeralWaitSeconds int64 `toml:"min_ephemeral_wait_seconds"`
}

type AdminConfig struct {
	DeletionWait time.Duration `toml:"deletion_wait"`
	// OperatorTokenSecret signs the JWTs internal tooling presents to
	// authn.Gate before a ban, account destruction, or moderation override.
	OperatorTokenSecret string        `toml:"operator_token_secret"`
	OperatorTokenTTL    time.Duration `toml:"operator_token_ttl"`
}

func Default() Config {
	return Config{
		DataDir: "./data",
		Location: LocationConfig{
			MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180,
			CellSizeKm:      25,
			LastSeenHorizon: 24 * time.Hour,
		},
		Limits: LimitsConfig{
			MaxSenderAckMissing:     10,
			MaxReceiverAckMissing:   50,
			MaxPublicKeyCount:       5,
			ModerationPageSize:      25,
			MinEphemeralWaitSeconds: 3,
		},
		Admin: AdminConfig{DeletionWait: 30 * 24 * time.Hour, OperatorTokenTTL: time.Hour},
		Server: ServerConfig{
			HTTPAddr:           ":8080",
			WSAddr:             ":8081",
			LocationSweepEvery: 5 * time.Minute,
			StatsFlushEvery:    time.Minute,
			WriteQueueDepth:    256,
		},
	}
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.Location.MinLat >= c.Location.MaxLat || c.Location.MinLon >= c.Location.MaxLon {
		return fmt.Errorf("invalid location bounding box: %+v", c.Location)
	}
	if c.Location.CellSizeKm <= 0 {
		return errors.New("cell_size_km must be positive")
	}
	if c.Limits.MaxSenderAckMissing <= 0 || c.Limits.MaxReceiverAckMissing <= 0 {
		return errors.New("ack-missing limits must be positive")
	}
	if c.Limits.MaxPublicKeyCount <= 0 {
		return errors.New("max_public_key_count must be positive")
	}
	if c.Limits.MinEphemeralWaitSeconds < 0 {
		return errors.New("min_ephemeral_wait_seconds must not be negative")
	}
	if c.Admin.OperatorTokenSecret == "" {
		return errors.New("admin.operator_token_secret must not be empty")
	}
	if c.Server.HTTPAddr == "" || c.Server.WSAddr == "" {
		return errors.New("server.http_addr and server.ws_addr must not be empty")
	}
	if c.Server.WriteQueueDepth <= 0 {
		return errors.New("server.write_queue_depth must be positive")
	}
	return nil
}

// Load reads and validates a TOML config file, falling back to defaults for
// any field the file doesn't set.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}
