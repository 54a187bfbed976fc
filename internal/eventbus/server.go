// Package eventbus embeds a local NATS server and a thin client so the
// Executor, Recovery Supervisor, and HTTP layer can broadcast node and
// blueprint lifecycle deltas to anyone live-tailing them (the UI's
// websocket hub, the agent's own progress probes), without any of those
// subscribers participating in the Store's transactional writes.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// defaultPort is used when ServerConfig.Port is unset, mirroring the
// teacher's embedded-server default.
const defaultPort = 4222

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Port          int // <=0 uses defaultPort
	WebSocketPort int // 0 disables the websocket listener
}

// Server wraps an embedded, localhost-only NATS server.
type Server struct {
	srv     *server.Server
	config  ServerConfig
	mu      sync.RWMutex
	running bool
}

// NewServer constructs a Server. It does not bind any socket until Start.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = defaultPort
	}
	return &Server{config: config}
}

// Start binds and starts the embedded server, blocking until it is ready
// to accept connections or 10s elapses.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("eventbus: server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       s.config.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if s.config.WebSocketPort > 0 {
		opts.Websocket = server.WebsocketOpts{
			Host: "127.0.0.1", Port: s.config.WebSocketPort, NoTLS: true,
		}
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("eventbus: new server: %w", err)
	}
	s.srv = ns
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("eventbus: server not ready for connections")
	}
	s.running = true
	return nil
}

// Shutdown stops the embedded server, waiting for it to fully drain.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.srv == nil {
		return
	}
	s.srv.Shutdown()
	s.srv.WaitForShutdown()
	s.running = false
	s.srv = nil
}

// URL returns this server's client connection URL.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", s.config.Port)
}

// IsRunning reports whether Start has succeeded and Shutdown hasn't run.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
