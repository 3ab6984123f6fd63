package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/hedge/pkg/logger"
)

// Config represents the persistent hedge configuration stored as config.toml
// in the .hedge/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Agent       AgentConfig       `toml:"agent"`
	Proxy       ProxyConfig       `toml:"proxy"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Stream      StreamConfig      `toml:"stream"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Log         LogConfig         `toml:"log"`
}

// StorageConfig holds shared storage settings used by both the relay and the API.
// When PostgresDSN is set it takes precedence over SQLitePath. When neither is
// set, transcripts are kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// AgentConfig points at the upstream agent that produces the chat stream.
type AgentConfig struct {
	Target  string   `toml:"target,omitempty"`
	Path    string   `toml:"path,omitempty"`
	Timeout Duration `toml:"timeout,omitempty"`
}

// ProxyConfig holds relay settings.
type ProxyConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// APIConfig holds read API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// relay (e.g. hedge chat). Values are full URLs (scheme + host + port).
type ClientConfig struct {
	ProxyTarget string `toml:"proxy_target,omitempty"`
}

// StreamConfig tunes stream decoding and completion persistence.
type StreamConfig struct {
	FlushIntervalMS uint `toml:"flush_interval_ms,omitempty"`
	QueueSize       uint `toml:"queue_size,omitempty"`
	Workers         uint `toml:"workers,omitempty"`
}

// EventStreamConfig configures the optional Kafka publisher for
// message-persisted events. An empty broker list disables publishing.
type EventStreamConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// LogConfig holds logging settings. "hedge serve --watch-config" applies
// changes to Level without a restart.
type LogConfig struct {
	Level string `toml:"level,omitempty"`
}

// Duration wraps time.Duration so it round-trips through TOML as a
// human-readable string such as "5m" or "30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string) (uint, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return uint(n), nil
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"agent.target": {
		get: func(c *Config) string { return c.Agent.Target },
		set: func(c *Config, v string) error { c.Agent.Target = v; return nil },
	},
	"agent.path": {
		get: func(c *Config) string { return c.Agent.Path },
		set: func(c *Config, v string) error { c.Agent.Path = v; return nil },
	},
	"agent.timeout": {
		get: func(c *Config) string {
			if c.Agent.Timeout.Duration == 0 {
				return ""
			}
			return c.Agent.Timeout.String()
		},
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for agent.timeout: %w", err)
			}
			c.Agent.Timeout = Duration{d}
			return nil
		},
	},
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.proxy_target": {
		get: func(c *Config) string { return c.Client.ProxyTarget },
		set: func(c *Config, v string) error { c.Client.ProxyTarget = v; return nil },
	},
	"stream.flush_interval_ms": {
		get: func(c *Config) string { return formatUint(c.Stream.FlushIntervalMS) },
		set: func(c *Config, v string) error {
			n, err := parseUint("stream.flush_interval_ms", v)
			if err != nil {
				return err
			}
			c.Stream.FlushIntervalMS = n
			return nil
		},
	},
	"stream.queue_size": {
		get: func(c *Config) string { return formatUint(c.Stream.QueueSize) },
		set: func(c *Config, v string) error {
			n, err := parseUint("stream.queue_size", v)
			if err != nil {
				return err
			}
			c.Stream.QueueSize = n
			return nil
		},
	},
	"stream.workers": {
		get: func(c *Config) string { return formatUint(c.Stream.Workers) },
		set: func(c *Config, v string) error {
			n, err := parseUint("stream.workers", v)
			if err != nil {
				return err
			}
			c.Stream.Workers = n
			return nil
		},
	},
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.KafkaBrokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.KafkaBrokers = splitList(v)
			return nil
		},
	},
	"eventstream.kafka_topic": {
		get: func(c *Config) string { return c.EventStream.KafkaTopic },
		set: func(c *Config, v string) error { c.EventStream.KafkaTopic = v; return nil },
	},
	"log.level": {
		get: func(c *Config) string { return c.Log.Level },
		set: func(c *Config, v string) error {
			if _, err := logger.ParseLevel(v); err != nil {
				return fmt.Errorf("invalid value for log.level: %w", err)
			}
			c.Log.Level = strings.ToLower(v)
			return nil
		},
	},
}

// splitList parses a comma separated list, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
