// Package config loads the worker's startup configuration (§6 of the
// specification) from a YAML file, following the teacher's use of
// gopkg.in/yaml.v3 for structured on-disk configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is read once at worker startup and never mutated afterward.
type Config struct {
	ClusterName string `yaml:"cluster_name"`
	NodeID      uint64 `yaml:"node_id"`
	// ListenEndpoint is the transport bind address, host:port.
	ListenEndpoint string `yaml:"listen_endpoint"`
	// InitialCluster is an ordered list of "name=host:port" entries.
	// NodeId is derived from 1-based position when bootstrapping.
	InitialCluster []string `yaml:"initial_cluster"`
	DataDir        string   `yaml:"data_dir"`

	ElectionTimeoutMS   int `yaml:"election_timeout_ms"`
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
	SnapshotThreshold   int `yaml:"snapshot_threshold"`
	MaxLogEntries       int `yaml:"max_log_entries"`
	TickIntervalMS      int `yaml:"tick_interval_ms"`

	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`
	MetricsAddr string `yaml:"metrics_addr"`
	// AdminAddr serves the control surface (§6) over HTTP for cmd/raftd's
	// status/kv/node subcommands to dial, since no host SQL engine is
	// actually embedding this binary in this exercise.
	AdminAddr string `yaml:"admin_addr"`
}

// Defaults matching the §6 configuration table.
const (
	DefaultElectionTimeoutMS   = 1000
	DefaultHeartbeatIntervalMS = 100
	DefaultSnapshotThreshold   = 10000
	DefaultMaxLogEntries       = 1000
	DefaultTickIntervalMS      = 100
)

// Load reads and validates a configuration file, applying defaults for
// any unset optional field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ElectionTimeoutMS == 0 {
		c.ElectionTimeoutMS = DefaultElectionTimeoutMS
	}
	if c.HeartbeatIntervalMS == 0 {
		c.HeartbeatIntervalMS = DefaultHeartbeatIntervalMS
	}
	if c.SnapshotThreshold == 0 {
		c.SnapshotThreshold = DefaultSnapshotThreshold
	}
	if c.MaxLogEntries == 0 {
		c.MaxLogEntries = DefaultMaxLogEntries
	}
	if c.TickIntervalMS == 0 {
		c.TickIntervalMS = DefaultTickIntervalMS
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AdminAddr == "" {
		c.AdminAddr = "127.0.0.1:7400"
	}
}

// Validate checks the required fields named in §6: cluster_name, node_id,
// listen_endpoint, and data_dir are required unconditionally.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("config: cluster_name is required")
	}
	if c.NodeID == 0 {
		return fmt.Errorf("config: node_id is required and must be nonzero")
	}
	if c.ListenEndpoint == "" {
		return fmt.Errorf("config: listen_endpoint is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	return nil
}

// InitialClusterEntry is one parsed member of InitialCluster.
type InitialClusterEntry struct {
	Name string
	Host string
	Port uint16
	ID   uint64 // 1-based position
}

// ParseInitialCluster parses the "name=host:port" list, deriving each
// node's id from its 1-based position, per §6.
func ParseInitialCluster(entries []string) ([]InitialClusterEntry, error) {
	out := make([]InitialClusterEntry, 0, len(entries))
	for i, raw := range entries {
		nameAndAddr := strings.SplitN(raw, "=", 2)
		if len(nameAndAddr) != 2 {
			return nil, fmt.Errorf("config: malformed initial_cluster entry %q", raw)
		}
		hostPort := strings.SplitN(nameAndAddr[1], ":", 2)
		if len(hostPort) != 2 {
			return nil, fmt.Errorf("config: malformed initial_cluster address %q", nameAndAddr[1])
		}
		port, err := strconv.ParseUint(hostPort[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("config: malformed port in %q: %w", raw, err)
		}
		out = append(out, InitialClusterEntry{
			Name: nameAndAddr[0],
			Host: hostPort[0],
			Port: uint16(port),
			ID:   uint64(i + 1),
		})
	}
	return out, nil
}
