// Package events wires an embedded NATS server and client into the
// memory subsystem, adapted from the teacher's internal/nats package:
// the same embedded-server/reconnecting-client split, generalized so
// the facade can publish write/usage events for the learning modules
// to consume without a direct import dependency on them.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"
)

// Subjects published by the facade and consumed by learning-module
// dispatchers.
const (
	SubjectPatternWritten  = "aml.write.pattern"
	SubjectSolutionWritten = "aml.write.solution"
	SubjectDecisionWritten = "aml.write.decision"
	SubjectUsageFeedback   = "aml.usage.feedback"
	SubjectAnomalyDetected = "aml.trend.anomaly"
)

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Port          int
	WebSocketPort int
}

// Server wraps an embedded NATS server the same way the teacher's
// EmbeddedServer does, minus JetStream (the memory subsystem persists
// through the storage engine, not NATS streams).
type Server struct {
	inner   *server.Server
	cfg     ServerConfig
	mu      sync.RWMutex
	running bool
}

// NewServer builds an embedded NATS server; Port defaults to 4222 when
// unset.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Port <= 0 {
		cfg.Port = 4222
	}
	return &Server{cfg: cfg}, nil
}

// Start launches the embedded server and blocks until it is ready for
// connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("events server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       s.cfg.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if s.cfg.WebSocketPort > 0 {
		opts.Websocket = server.WebsocketOpts{Host: "127.0.0.1", Port: s.cfg.WebSocketPort, NoTLS: true}
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create embedded events server: %w", err)
	}
	s.inner = ns
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("events server not ready for connections")
	}
	s.running = true
	return nil
}

// Shutdown gracefully stops the embedded server.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.inner == nil {
		return
	}
	s.inner.Shutdown()
	s.inner.WaitForShutdown()
	s.running = false
	s.inner = nil
}

// URL returns the connection URL for the embedded server.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", s.cfg.Port)
}

// IsRunning reports whether the embedded server is up.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Message is a received event: subject plus raw payload.
type Message struct {
	Subject string
	Data    []byte
}

// Client wraps a NATS connection with the JSON publish/subscribe
// convenience methods the facade and learning dispatchers use.
type Client struct {
	conn *nc.Conn
}

// Connect dials the embedded server with indefinite reconnects, as
// the teacher's client does.
func Connect(url string) (*Client, error) {
	opts := []nc.Option{
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1),
	}
	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to events server: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// PublishJSON marshals v and publishes it to subject.
func (c *Client) PublishJSON(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers an asynchronous handler for subject.
func (c *Client) Subscribe(subject string, handler func(Message)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(Message{Subject: msg.Subject, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// IsConnected reports whether the client's connection is live.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// WriteEvent is published on SubjectPattern/Solution/DecisionWritten
// whenever the facade commits a new entity, for the learning-module
// dispatch to pick up.
type WriteEvent struct {
	Agent        string    `json:"agent"`
	ResourceID   string    `json:"resourceId"`
	ResourceType string    `json:"resourceType"`
	Timestamp    time.Time `json:"timestamp"`
}

// UsageFeedbackEvent reports an outcome (success/failure, time saved)
// observed when an agent acted on a recommended pattern, feeding
// reinforcement learning's reward shaping.
type UsageFeedbackEvent struct {
	Agent       string    `json:"agent"`
	PatternID   string    `json:"patternId"`
	Success     bool      `json:"success"`
	TimeSavedMs float64   `json:"timeSavedMs"`
	Timestamp   time.Time `json:"timestamp"`
}
