package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/papercomputeco/hedge/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the HEDGE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (HEDGE_PROXY_LISTEN, HEDGE_AGENT_TARGET, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("HEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Agent
	v.SetDefault("agent.target", d.Agent.Target)
	v.SetDefault("agent.path", d.Agent.Path)
	v.SetDefault("agent.timeout", d.Agent.Timeout.String())

	// Listeners
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.proxy_target", d.Client.ProxyTarget)

	// Stream
	v.SetDefault("stream.flush_interval_ms", d.Stream.FlushIntervalMS)
	v.SetDefault("stream.queue_size", d.Stream.QueueSize)
	v.SetDefault("stream.workers", d.Stream.Workers)

	// Event stream
	v.SetDefault("eventstream.kafka_brokers", "")
	v.SetDefault("eventstream.kafka_topic", d.EventStream.KafkaTopic)

	// Log
	v.SetDefault("log.level", d.Log.Level)
}

// FromViper materializes a Config from the layered viper values. Broker lists
// accept either a TOML array or a comma separated string (the env var form).
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Agent: AgentConfig{
			Target:  v.GetString("agent.target"),
			Path:    v.GetString("agent.path"),
			Timeout: Duration{v.GetDuration("agent.timeout")},
		},
		Proxy:  ProxyConfig{Listen: v.GetString("proxy.listen")},
		API:    APIConfig{Listen: v.GetString("api.listen")},
		Client: ClientConfig{ProxyTarget: v.GetString("client.proxy_target")},
		Stream: StreamConfig{
			FlushIntervalMS: v.GetUint("stream.flush_interval_ms"),
			QueueSize:       v.GetUint("stream.queue_size"),
			Workers:         v.GetUint("stream.workers"),
		},
		EventStream: EventStreamConfig{
			KafkaBrokers: splitList(strings.Join(v.GetStringSlice("eventstream.kafka_brokers"), ",")),
			KafkaTopic:   v.GetString("eventstream.kafka_topic"),
		},
		Log: LogConfig{Level: v.GetString("log.level")},
	}
	applyDefaults(cfg)
	return cfg
}

// FlushInterval returns the display flush period as a time.Duration.
func (s StreamConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalMS) * time.Millisecond
}
