// Package api exposes the read-only operator HTTP/WS surface from
// SPEC_FULL.md §7: process liveness, per-agent metrics, backup
// listing, and a live audit tail. It is adapted from the teacher's
// internal/server package — the same mux.Router route registration
// style (server.go) and the same websocket broadcast hub (hub.go) —
// generalized from dashboard state broadcast to audit-event tail.
// This surface is operator convenience only; it never schedules
// agents or mutates memory, per spec §1's scope boundary.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/aml-core/agentmemory/internal/aml/audit"
	"github.com/aml-core/agentmemory/internal/aml/backup"
	"github.com/aml-core/agentmemory/internal/aml/metrics"
	"github.com/aml-core/agentmemory/internal/aml/notify"
	"github.com/aml-core/agentmemory/internal/aml/types"
)

// Server is the operator-facing HTTP/WS surface in front of a running
// AML core. It holds no write path to storage: every handler reads
// from the metrics collector, backup manager, or audit hub.
type Server struct {
	router   *mux.Router
	http     *http.Server
	hub      *Hub
	metrics  *metrics.Collector
	backups  *backup.Manager
	notifier *notify.Notifier
	auditLog *audit.Logger
	logger   *log.Logger
	start    time.Time
}

// Config wires the Server's dependencies, mirroring the teacher's
// Server struct's dependency block in internal/server/server.go.
type Config struct {
	Addr     string
	Metrics  *metrics.Collector
	Backups  *backup.Manager
	Notifier *notify.Notifier
	AuditLog *audit.Logger
	Logger   *log.Logger
}

// New builds the Server and registers routes; it does not start
// listening until Start is called.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	s := &Server{
		hub:      NewHub(),
		metrics:  cfg.Metrics,
		backups:  cfg.Backups,
		notifier: cfg.Notifier,
		auditLog: cfg.AuditLog,
		logger:   cfg.Logger,
		start:    time.Now(),
	}

	s.router = mux.NewRouter()
	api := s.router.PathPrefix("/").Subrouter()
	api.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	api.HandleFunc("/agents/{agent}/metrics", s.handleAgentMetrics).Methods("GET")
	api.HandleFunc("/agents/stale", s.handleStaleAgents).Methods("GET")
	api.HandleFunc("/backups", s.handleListBackups).Methods("GET")
	api.HandleFunc("/alerts/latest", s.handleLatestAlert).Methods("GET")
	api.HandleFunc("/ws/audit", s.handleAuditWS)

	s.http = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.router,
	}

	go s.hub.Run()
	if cfg.AuditLog != nil {
		cfg.AuditLog.Subscribe(func(e types.AuditEvent) {
			s.hub.BroadcastJSON(e)
		})
	}

	return s
}

// Start begins serving HTTP requests; it blocks until the listener
// errors or Shutdown is called, matching http.Server.ListenAndServe's
// contract.
func (s *Server) Start() error {
	s.logger.Printf("[AML-API] listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func (s *Server) handleAgentMetrics(w http.ResponseWriter, r *http.Request) {
	agent := mux.Vars(r)["agent"]
	snap, ok := s.metrics.Snapshot(agent, time.Now())
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no metrics for agent"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStaleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stale": s.metrics.StaleAgents(time.Now()),
	})
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	list, err := s.backups.ListBackups()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleLatestAlert(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"alert": nil})
		return
	}
	alert, ok := s.notifier.LastAlert()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"alert": nil})
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleAuditWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[AML-API] websocket upgrade failed: %v", err)
		return
	}
	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, WebSocketBufferSize)}
	s.hub.Register(client)
	go client.writePump()
	go client.readPump()
}
