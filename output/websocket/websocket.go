// Package websocket provides the WebSocket notification sink. It runs a
// WebSocket server and broadcasts every notification from the event bus
// to all connected clients, so external UIs can watch trigger fires live.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/triggerkit/component"
	"github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/eventbus"
	"github.com/c360/triggerkit/metric"
	"github.com/c360/triggerkit/trigger"
)

// Defaults for the notification sink
const (
	DefaultPort = 8081
	DefaultPath = "/ws/notifications"

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Metrics holds Prometheus metrics for the notification sink
type Metrics struct {
	clientsConnected  prometheus.Gauge
	connectionsTotal  prometheus.Counter
	notificationsSent prometheus.Counter
	sendErrors        prometheus.Counter
}

// newMetrics creates and registers sink metrics.
// Returns nil if no registry provided (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "triggerkit",
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Currently connected WebSocket clients",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "websocket",
			Name:      "client_connections_total",
			Help:      "Client connections accepted since start",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "websocket",
			Name:      "notifications_sent_total",
			Help:      "Notifications written to WebSocket clients",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "websocket",
			Name:      "send_errors_total",
			Help:      "Failed writes to WebSocket clients",
		}),
	}

	registry.RegisterGauge("websocket_sink", "clients_connected", metrics.clientsConnected)
	registry.RegisterCounter("websocket_sink", "connections", metrics.connectionsTotal)
	registry.RegisterCounter("websocket_sink", "notifications_sent", metrics.notificationsSent)
	registry.RegisterCounter("websocket_sink", "send_errors", metrics.sendErrors)

	return metrics
}

// sinkSchema is generated once from Config struct tags
var sinkSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the notification sink
type Config struct {
	Port int    `json:"port" schema:"type:int,description:WebSocket server port,default:8081"`
	Path string `json:"path" schema:"type:string,description:WebSocket endpoint path,default:/ws/notifications"`
}

// Validate implements component.Validatable
func (c *Config) Validate() error {
	if c.Port != 0 && (c.Port < 1024 || c.Port > 65535) {
		return errors.WrapInvalid(
			fmt.Errorf("port %d out of range 1024-65535", c.Port),
			"Config", "Validate", "port validation")
	}
	return nil
}

// DefaultConfig returns defaults for the notification sink
func DefaultConfig() Config {
	return Config{Port: DefaultPort, Path: DefaultPath}
}

// SinkDeps holds runtime dependencies for the notification sink
type SinkDeps struct {
	Name            string
	Config          Config
	Bus             *eventbus.Bus
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// client is one connected WebSocket peer
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// writeMessage serializes writes to the connection
func (c *client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// Sink is a WebSocket server broadcasting bus notifications to all
// connected clients. Delivery is best-effort: a failing client is
// dropped, never retried.
type Sink struct {
	name   string
	port   int
	path   string
	bus    *eventbus.Bus
	logger *slog.Logger

	upgrader  websocket.Upgrader
	server    *http.Server
	clients   map[*websocket.Conn]*client
	clientsMu sync.RWMutex

	busSubID  string
	shutdown  chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.Mutex
	wg        sync.WaitGroup

	sent       atomic.Int64
	errorCount atomic.Int64
	lastSent   atomic.Value // stores time.Time

	metrics *Metrics
}

var _ component.Discoverable = (*Sink)(nil)
var _ component.LifecycleComponent = (*Sink)(nil)

// NewSink creates a notification sink component
func NewSink(deps SinkDeps) *Sink {
	port := deps.Config.Port
	if port == 0 {
		port = DefaultPort
	}
	path := deps.Config.Path
	if path == "" {
		path = DefaultPath
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "websocket-sink")
	}

	s := &Sink{
		name:   deps.Name,
		port:   port,
		path:   path,
		bus:    deps.Bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The sink serves local UIs; origin policy belongs to a
			// fronting proxy in real deployments
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]*client),
		startTime: time.Now(),
		metrics:   newMetrics(deps.MetricsRegistry),
	}
	s.lastSent.Store(time.Time{})
	return s
}

// Meta returns the component metadata
func (s *Sink) Meta() component.Metadata {
	name := s.name
	if name == "" {
		name = fmt.Sprintf("websocket-sink-%d", s.port)
	}

	return component.Metadata{
		Name:        name,
		Type:        "output",
		Description: fmt.Sprintf("WebSocket notification sink at ws://localhost:%d%s", s.port, s.path),
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (s *Sink) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "notifications",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Notification feed from the event bus",
			Config:      component.NATSPort{Subject: eventbus.SubjectNotification},
		},
	}
}

// OutputPorts returns the output ports for this component
func (s *Sink) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "websocket_endpoint",
			Direction:   component.DirectionOutput,
			Required:    false,
			Description: fmt.Sprintf("WebSocket endpoint at ws://localhost:%d%s", s.port, s.path),
			Config: component.NetworkPort{
				Protocol: "websocket",
				Host:     "localhost",
				Port:     s.port,
			},
		},
	}
}

// ConfigSchema returns the configuration schema for this component
func (s *Sink) ConfigSchema() component.ConfigSchema {
	return sinkSchema
}

// Health returns the current health status of the component
func (s *Sink) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    s.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(s.errorCount.Load()),
		Uptime:     time.Since(s.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (s *Sink) DataFlow() component.FlowMetrics {
	sent := s.sent.Load()
	errorCount := s.errorCount.Load()
	lastSent, _ := s.lastSent.Load().(time.Time)

	var perSecond, errorRate float64
	if uptime := time.Since(s.startTime).Seconds(); uptime > 0 {
		perSecond = float64(sent) / uptime
	}
	if sent > 0 {
		errorRate = float64(errorCount) / float64(sent)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastSent,
	}
}

// Initialize validates the configuration
func (s *Sink) Initialize() error {
	if s.port < 1024 || s.port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("invalid port %d", s.port),
			"websocket-sink", "Initialize", "port validation")
	}
	if s.path == "" {
		return errors.WrapInvalid(fmt.Errorf("empty path"),
			"websocket-sink", "Initialize", "path validation")
	}
	if s.bus == nil {
		return errors.WrapInvalid(fmt.Errorf("nil event bus"),
			"websocket-sink", "Initialize", "bus validation")
	}
	return nil
}

// Start runs the WebSocket server and subscribes to the bus
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.shutdown = make(chan struct{})
	s.busSubID = s.bus.SubscribeNotifications(s.broadcast)
	s.running.Store(true)
	s.startTime = time.Now()

	s.wg.Add(2)
	srv := s.server
	go func() {
		defer s.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.errorCount.Add(1)
			s.logger.Error("WebSocket server failed", "port", s.port, "error", err)
			s.running.Store(false)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.pingClients(ctx)
	}()

	return nil
}

// Stop unsubscribes from the bus, closes all clients, and shuts the
// server down
func (s *Sink) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	s.bus.Unsubscribe(s.busSubID)
	close(s.shutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("WebSocket server shutdown error", "error", err)
	}

	s.closeAllClients()
	s.server = nil

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"websocket-sink", "Stop", "graceful shutdown")
	}

	return nil
}

// ClientCount returns the number of connected clients
func (s *Sink) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// handleWebSocket upgrades an HTTP request and tracks the client
func (s *Sink) handleWebSocket(rw http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		s.errorCount.Add(1)
		s.logger.Warn("WebSocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn}
	s.clientsMu.Lock()
	s.clients[conn] = c
	count := len(s.clients)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.connectionsTotal.Inc()
		s.metrics.clientsConnected.Set(float64(count))
	}
	s.logger.Info("WebSocket client connected", "remote", req.RemoteAddr, "clients", count)

	// Read loop exists only to notice the peer closing
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.removeClient(conn)
				return
			}
		}
	}()
}

// removeClient drops a client connection
func (s *Sink) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close()
	if s.metrics != nil {
		s.metrics.clientsConnected.Set(float64(count))
	}
}

// closeAllClients closes every connection
func (s *Sink) closeAllClients() {
	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]*client)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.clientsConnected.Set(0)
	}
}

// broadcast sends one notification to every connected client
func (s *Sink) broadcast(n trigger.Notification) {
	if !s.running.Load() {
		return
	}

	data, err := json.Marshal(n)
	if err != nil {
		s.errorCount.Add(1)
		s.logger.Error("failed to encode notification", "notification_id", n.ID, "error", err)
		return
	}

	s.clientsMu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range targets {
		if err := c.writeMessage(websocket.TextMessage, data); err != nil {
			s.errorCount.Add(1)
			if s.metrics != nil {
				s.metrics.sendErrors.Inc()
			}
			s.removeClient(c.conn)
			continue
		}
		s.sent.Add(1)
		if s.metrics != nil {
			s.metrics.notificationsSent.Inc()
		}
	}
	s.lastSent.Store(time.Now())
}

// pingClients keeps connections alive and reaps dead peers
func (s *Sink) pingClients(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.clientsMu.RLock()
			targets := make([]*client, 0, len(s.clients))
			for _, c := range s.clients {
				targets = append(targets, c)
			}
			s.clientsMu.RUnlock()

			for _, c := range targets {
				if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
					s.removeClient(c.conn)
				}
			}
		}
	}
}

// CreateSink creates a notification sink from raw config
func CreateSink(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.Wrap(err, "websocket-sink-factory", "create", "config parsing")
		}
		if userConfig.Port != 0 {
			cfg.Port = userConfig.Port
		}
		if userConfig.Path != "" {
			cfg.Path = userConfig.Path
		}
	}

	bus, _ := deps.Bus.(*eventbus.Bus)
	if bus == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("event bus is required"),
			"websocket-sink-factory", "create", "bus validation")
	}

	return NewSink(SinkDeps{
		Name:            "websocket-sink",
		Config:          cfg,
		Bus:             bus,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          deps.GetLoggerWithComponent("websocket-sink"),
	}), nil
}

// Register registers the notification sink factory with the given
// registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "websocket",
		Factory:     CreateSink,
		Schema:      sinkSchema,
		Type:        "output",
		Protocol:    "websocket",
		Domain:      "notifications",
		Description: "WebSocket sink broadcasting notifications to connected clients",
		Version:     "1.0.0",
	})
}
