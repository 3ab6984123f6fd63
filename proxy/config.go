package proxy

import (
	"time"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// AgentURL is the upstream agent base URL (e.g., "http://localhost:8000")
	AgentURL string

	// AgentPath is the agent's chat endpoint. Defaults to "/api/chat".
	AgentPath string

	// AgentTimeout bounds one relayed stream end to end.
	AgentTimeout time.Duration

	// NumWorkers is the number of persistence workers.
	NumWorkers uint

	// QueueSize is the capacity of the persistence queue.
	QueueSize uint
}
