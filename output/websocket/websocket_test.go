package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/triggerkit/component"
	"github.com/c360/triggerkit/eventbus"
	"github.com/c360/triggerkit/trigger"
)

func testSink(t *testing.T) *Sink {
	t.Helper()
	return NewSink(SinkDeps{
		Name:   "test-sink",
		Config: DefaultConfig(),
		Bus:    eventbus.New(eventbus.Deps{}),
	})
}

// dialTestSink serves the sink's upgrade handler on an httptest server and
// returns a connected client
func dialTestSink(t *testing.T, s *Sink) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)
	return conn
}

func TestNewSink_Defaults(t *testing.T) {
	s := NewSink(SinkDeps{Bus: eventbus.New(eventbus.Deps{})})

	assert.Equal(t, DefaultPort, s.port)
	assert.Equal(t, DefaultPath, s.path)
	assert.NotNil(t, s.logger)
	assert.False(t, s.running.Load())
	assert.Equal(t, 0, s.ClientCount())
}

func TestSink_Meta(t *testing.T) {
	s := testSink(t)
	meta := s.Meta()

	assert.Equal(t, "test-sink", meta.Name)
	assert.Equal(t, "output", meta.Type)
	assert.Contains(t, meta.Description, "ws://localhost:8081/ws/notifications")

	unnamed := NewSink(SinkDeps{Config: Config{Port: 9100}, Bus: eventbus.New(eventbus.Deps{})})
	assert.Equal(t, "websocket-sink-9100", unnamed.Meta().Name)
}

func TestSink_Ports(t *testing.T) {
	s := testSink(t)

	inputs := s.InputPorts()
	require.Len(t, inputs, 1)
	assert.Equal(t, component.DirectionInput, inputs[0].Direction)
	natsPort, ok := inputs[0].Config.(component.NATSPort)
	require.True(t, ok)
	assert.Equal(t, eventbus.SubjectNotification, natsPort.Subject)

	outputs := s.OutputPorts()
	require.Len(t, outputs, 1)
	netPort, ok := outputs[0].Config.(component.NetworkPort)
	require.True(t, ok)
	assert.Equal(t, "websocket", netPort.Protocol)
	assert.Equal(t, DefaultPort, netPort.Port)
	assert.True(t, netPort.IsExclusive())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero port falls back to default", Config{Path: "/ws"}, false},
		{"privileged port", Config{Port: 80}, true},
		{"port too large", Config{Port: 70000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSink_Initialize(t *testing.T) {
	s := testSink(t)
	assert.NoError(t, s.Initialize())

	noBus := NewSink(SinkDeps{Config: DefaultConfig()})
	err := noBus.Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus")

	badPort := testSink(t)
	badPort.port = 80
	assert.Error(t, badPort.Initialize())

	badPath := testSink(t)
	badPath.path = ""
	assert.Error(t, badPath.Initialize())
}

func TestSink_BroadcastDeliversToClient(t *testing.T) {
	s := testSink(t)
	conn := dialTestSink(t, s)
	s.running.Store(true)

	s.broadcast(trigger.Notification{
		ID:        "n-1",
		TriggerID: "trig-1",
		Title:     "You're near Brooklyn Bridge",
		Type:      "memory_trigger",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got trigger.Notification
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "n-1", got.ID)
	assert.Equal(t, "trig-1", got.TriggerID)
	assert.Equal(t, "You're near Brooklyn Bridge", got.Title)
	assert.Equal(t, int64(1), s.sent.Load())
}

func TestSink_BroadcastIgnoredWhenStopped(t *testing.T) {
	s := testSink(t)
	conn := dialTestSink(t, s)

	s.broadcast(trigger.Notification{ID: "n-1"})
	assert.Equal(t, int64(0), s.sent.Load())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no message should arrive while stopped")
}

func TestSink_DeadClientRemoved(t *testing.T) {
	s := testSink(t)
	conn := dialTestSink(t, s)
	s.running.Store(true)

	require.NoError(t, conn.Close())

	// First write may land in OS buffers; keep broadcasting until the
	// failed write reaps the client
	require.Eventually(t, func() bool {
		s.broadcast(trigger.Notification{ID: "n-dead"})
		return s.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSink_StartStop(t *testing.T) {
	s := NewSink(SinkDeps{
		Name:   "lifecycle-sink",
		Config: Config{Port: 18944, Path: "/ws/notifications"},
		Bus:    eventbus.New(eventbus.Deps{}),
	})
	require.NoError(t, s.Initialize())

	require.NoError(t, s.Start(testContext(t)))
	assert.True(t, s.running.Load())
	assert.True(t, s.Health().Healthy)

	// Second Start is a no-op
	require.NoError(t, s.Start(testContext(t)))

	require.NoError(t, s.Stop(2*time.Second))
	assert.False(t, s.running.Load())
	assert.False(t, s.Health().Healthy)

	// Stop is idempotent
	require.NoError(t, s.Stop(time.Second))
}

func TestSink_StopClosesClients(t *testing.T) {
	bus := eventbus.New(eventbus.Deps{})
	s := NewSink(SinkDeps{
		Config: Config{Port: 18945, Path: "/ws/notifications"},
		Bus:    bus,
	})
	require.NoError(t, s.Start(testContext(t)))

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, _, err = websocket.DefaultDialer.Dial("ws://localhost:18945/ws/notifications", nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, bus.SubscriberCount())

	require.NoError(t, s.Stop(2*time.Second))
	assert.Equal(t, 0, s.ClientCount())
	assert.Equal(t, 0, bus.SubscriberCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed by the server")
}

func TestSink_BusNotificationReachesClient(t *testing.T) {
	bus := eventbus.New(eventbus.Deps{})
	s := NewSink(SinkDeps{
		Config: Config{Port: 18946, Path: "/ws/notifications"},
		Bus:    bus,
	})
	require.NoError(t, s.Start(testContext(t)))
	defer func() { _ = s.Stop(2 * time.Second) }()

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, _, err = websocket.DefaultDialer.Dial("ws://localhost:18946/ws/notifications", nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	bus.PublishNotification(testContext(t), trigger.Notification{
		ID:    "bus-n-1",
		Title: "Remembering our first date",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got trigger.Notification
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "bus-n-1", got.ID)
}

func TestCreateSink(t *testing.T) {
	bus := eventbus.New(eventbus.Deps{})

	comp, err := CreateSink(nil, component.Dependencies{Bus: bus})
	require.NoError(t, err)
	sink, ok := comp.(*Sink)
	require.True(t, ok)
	assert.Equal(t, DefaultPort, sink.port)
	assert.Equal(t, DefaultPath, sink.path)

	comp, err = CreateSink(json.RawMessage(`{"port": 9200, "path": "/ws/live"}`), component.Dependencies{Bus: bus})
	require.NoError(t, err)
	sink = comp.(*Sink)
	assert.Equal(t, 9200, sink.port)
	assert.Equal(t, "/ws/live", sink.path)
}

func TestCreateSink_Errors(t *testing.T) {
	bus := eventbus.New(eventbus.Deps{})

	_, err := CreateSink(nil, component.Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event bus is required")

	_, err = CreateSink(json.RawMessage(`{"port": 80}`), component.Dependencies{Bus: bus})
	require.Error(t, err)

	_, err = CreateSink(json.RawMessage(`not json`), component.Dependencies{Bus: bus})
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	info, ok := registry.ListAvailable()["websocket"]
	require.True(t, ok)
	assert.Equal(t, "output", info.Type)
	assert.Equal(t, "websocket", info.Protocol)
}
