package config

import "time"

const (
	defaultAgentTarget  = "http://localhost:8000"
	defaultAgentPath    = "/api/chat"
	defaultAgentTimeout = 5 * time.Minute

	defaultProxyListen = ":8080"
	defaultAPIListen   = ":8081"

	defaultClientProxyTarget = "http://localhost:8080"

	defaultFlushIntervalMS = 50
	defaultQueueSize       = 256
	defaultWorkers         = 3

	defaultKafkaTopic = "hedge.messages"

	defaultLogLevel = "info"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Agent: AgentConfig{
			Target:  defaultAgentTarget,
			Path:    defaultAgentPath,
			Timeout: Duration{defaultAgentTimeout},
		},
		Proxy: ProxyConfig{
			Listen: defaultProxyListen,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			ProxyTarget: defaultClientProxyTarget,
		},
		Stream: StreamConfig{
			FlushIntervalMS: defaultFlushIntervalMS,
			QueueSize:       defaultQueueSize,
			Workers:         defaultWorkers,
		},
		EventStream: EventStreamConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}
