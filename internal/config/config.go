// Package config loads the static replica list and timing parameters
// named by spec §6 ("Replica configuration"), grounded in the pack's
// viper-backed config.Load pattern
// (_examples/KartikBazzad-bunbase/pkg/config/config.go): a YAML file plus
// environment-variable overrides, unmarshalled into a typed struct.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ReplicaAddr names one consensus replica's two listen addresses: the
// peer-facing port used for append_entries/request_vote, and the
// client-facing port the Platform facade listens on.
type ReplicaAddr struct {
	ID         int    `mapstructure:"id"`
	Host       string `mapstructure:"host"`
	ClientPort int    `mapstructure:"client_port"`
	PeerPort   int    `mapstructure:"peer_port"`
}

func (r ReplicaAddr) ClientAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.ClientPort)
}

func (r ReplicaAddr) PeerAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.PeerPort)
}

// Config is the top-level typed configuration shared by every process
// kind. Seller and buyer processes only read Replicas and RPCTimeoutMS; platform
// replicas additionally read the timing and storage fields.
type Config struct {
	Replicas []ReplicaAddr `mapstructure:"replicas"`

	HeartbeatIntervalMS  int `mapstructure:"heartbeat_interval_ms"`
	ElectionTimeoutMinMS int `mapstructure:"election_timeout_min_ms"`
	ElectionTimeoutMaxMS int `mapstructure:"election_timeout_max_ms"`

	DataDir string `mapstructure:"data_dir"`

	DefaultBasePrice            int `mapstructure:"default_base_price"`
	DefaultPriceIncrementPeriod int `mapstructure:"default_price_increment_period_ms"`
	DefaultIncrement            int `mapstructure:"default_increment"`

	UIPort int `mapstructure:"ui_port"`

	RPCTimeoutMS int `mapstructure:"rpc_timeout_ms"`
}

// defaults mirrors spec §4.1's 40ms/200-400ms windows and a conservative
// 500ms RPC timeout (spec §5's concrete realization of the transport's own
// timeout requirement).
func defaults(v *viper.Viper) {
	v.SetDefault("heartbeat_interval_ms", 40)
	v.SetDefault("election_timeout_min_ms", 200)
	v.SetDefault("election_timeout_max_ms", 400)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("default_base_price", 1000)
	v.SetDefault("default_price_increment_period_ms", 1000)
	v.SetDefault("default_increment", 100)
	v.SetDefault("ui_port", 8080)
	v.SetDefault("rpc_timeout_ms", 500)
}

// Load reads path (YAML) if non-empty, applies AUCTION_-prefixed
// environment overrides, and unmarshals into a Config. A missing path is
// not an error: callers can run entirely off defaults + env for local
// demos, matching the pack's "env vars optional, config file optional"
// stance.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("AUCTION")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Timing converts the millisecond fields into a raft.Timing-shaped triple.
// Returned as plain durations (rather than importing internal/raft here)
// to keep config free of a dependency on the consensus package.
func (c *Config) Timing() (heartbeat, electionMin, electionMax time.Duration) {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond,
		time.Duration(c.ElectionTimeoutMinMS) * time.Millisecond,
		time.Duration(c.ElectionTimeoutMaxMS) * time.Millisecond
}

// RPCTimeout is the per-call deadline internal/transport applies to
// outbound seller/buyer RPCs.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutMS) * time.Millisecond
}

// ReplicaByID returns the configured address for id, or (zero, false).
func (c *Config) ReplicaByID(id int) (ReplicaAddr, bool) {
	for _, r := range c.Replicas {
		if r.ID == id {
			return r, true
		}
	}
	return ReplicaAddr{}, false
}

// PeerIDs returns every configured replica id other than self.
func (c *Config) PeerIDs(self int) []int {
	out := make([]int, 0, len(c.Replicas)-1)
	for _, r := range c.Replicas {
		if r.ID != self {
			out = append(out, r.ID)
		}
	}
	return out
}
