// Package config holds the mesh configuration: relay location, ICE servers,
// data-channel parameters and negotiation limits.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Default and by Load for fields left empty.
const (
	DefaultRelayURL             = "ws://127.0.0.1:8080/ws"
	DefaultChannelLabel         = "mesh"
	DefaultMaxPendingCandidates = 64
	DefaultNegotiationTimeout   = 30 * time.Second
	DefaultStatsInterval        = 10 * time.Second
)

// STUN servers used when ice_servers is not set. No TURN by default.
var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// ICEServer mirrors webrtc.ICEServer in a YAML friendly form.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// Config stores every tunable of a mesh participant.
type Config struct {
	RelayURL   string      `yaml:"relay_url"`
	ICEServers []ICEServer `yaml:"ice_servers"`

	ChannelLabel string `yaml:"channel_label"`
	Unordered    bool   `yaml:"unordered"`

	// IncludeLoopback gathers loopback candidates, needed when every
	// participant runs on the same host.
	IncludeLoopback bool `yaml:"include_loopback"`

	MaxPendingCandidates int      `yaml:"max_pending_candidates"`
	NegotiationTimeout   Duration `yaml:"negotiation_timeout"`
	StatsInterval        Duration `yaml:"stats_interval"`

	Debug bool `yaml:"debug"`
}

// Duration is a time.Duration that unmarshals from strings such as "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", value.Kind)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a configuration suitable for a public relay and Google STUN.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML configuration file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a Config and fills unset fields with
// defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RelayURL == "" {
		c.RelayURL = DefaultRelayURL
	}
	if c.ICEServers == nil {
		c.ICEServers = []ICEServer{{URLs: append([]string(nil), defaultSTUNServers...)}}
	}
	if c.ChannelLabel == "" {
		c.ChannelLabel = DefaultChannelLabel
	}
	if c.MaxPendingCandidates == 0 {
		c.MaxPendingCandidates = DefaultMaxPendingCandidates
	}
	if c.NegotiationTimeout == 0 {
		c.NegotiationTimeout = Duration(DefaultNegotiationTimeout)
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = Duration(DefaultStatsInterval)
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.RelayURL == "" {
		return fmt.Errorf("relay_url is required")
	}
	if c.ChannelLabel == "" {
		return fmt.Errorf("channel_label is required")
	}
	if c.MaxPendingCandidates < 0 {
		return fmt.Errorf("max_pending_candidates must not be negative, got %d", c.MaxPendingCandidates)
	}
	if c.NegotiationTimeout < 0 {
		return fmt.Errorf("negotiation_timeout must not be negative, got %s", c.NegotiationTimeout.Std())
	}
	for i, server := range c.ICEServers {
		if len(server.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d]: at least one url is required", i)
		}
	}
	return nil
}
