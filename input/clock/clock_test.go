package clock

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/triggerkit/component"
	"github.com/c360/triggerkit/natsclient"
	"github.com/c360/triggerkit/pkg/retry"
)

func testClock(cfg Config) *Clock {
	c := New(Deps{
		Name:       "clock",
		Config:     cfg,
		NATSClient: &natsclient.Client{},
	})
	// Single attempt keeps failing publishes fast in tests
	c.retryConfig = retry.Config{MaxAttempts: 1}
	return c
}

func TestNew_Defaults(t *testing.T) {
	c := testClock(Config{})

	assert.Equal(t, DefaultSubject, c.subject)
	assert.Equal(t, time.Duration(DefaultIntervalSeconds)*time.Second, c.interval)
	assert.NotNil(t, c.logger)
	assert.Nil(t, c.metrics)
}

func TestClock_Meta(t *testing.T) {
	c := testClock(Config{Subject: "custom.clock", IntervalSeconds: 30})

	meta := c.Meta()
	assert.Equal(t, "clock", meta.Name)
	assert.Equal(t, "input", meta.Type)
	assert.Contains(t, meta.Description, "custom.clock")
	assert.Contains(t, meta.Description, "30s")
}

func TestClock_Ports(t *testing.T) {
	c := testClock(DefaultConfig())

	inputs := c.InputPorts()
	require.Len(t, inputs, 1)
	timerPort, ok := inputs[0].Config.(component.TimerPort)
	require.True(t, ok)
	assert.Equal(t, "1m0s", timerPort.Interval)

	outputs := c.OutputPorts()
	require.Len(t, outputs, 1)
	natsPort, ok := outputs[0].Config.(component.NATSPort)
	require.True(t, ok)
	assert.Equal(t, DefaultSubject, natsPort.Subject)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{IntervalSeconds: -1}
	assert.Error(t, cfg.Validate())

	cfg = Config{IntervalSeconds: 30}
	assert.NoError(t, cfg.Validate())
}

func TestClock_Initialize(t *testing.T) {
	c := testClock(DefaultConfig())
	assert.NoError(t, c.Initialize())

	noNATS := New(Deps{Config: DefaultConfig()})
	assert.Error(t, noNATS.Initialize())
}

func TestClock_PublishTickErrorCounted(t *testing.T) {
	// Zero-value client is never connected
	c := testClock(DefaultConfig())

	c.publishTick(testContext(t), time.Now())

	assert.Equal(t, int64(0), c.ticksPublished.Load())
	assert.Equal(t, int64(1), c.errorCount.Load())
	assert.NotEmpty(t, c.Health().LastError)
}

func TestClock_TicksAtInterval(t *testing.T) {
	c := testClock(DefaultConfig())
	c.interval = 10 * time.Millisecond

	require.NoError(t, c.Start(testContext(t)))
	defer func() { _ = c.Stop(time.Second) }()

	// Every attempted tick fails against the disconnected client, so the
	// error count tracks tick cadence: immediate tick plus interval ticks
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.errorCount.Load() >= 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least 3 tick attempts, got %d", c.errorCount.Load())
}

func TestClock_StartStop(t *testing.T) {
	c := testClock(DefaultConfig())
	c.interval = time.Hour

	require.NoError(t, c.Start(testContext(t)))
	assert.True(t, c.Health().Healthy)

	// Second start is a no-op
	require.NoError(t, c.Start(testContext(t)))

	require.NoError(t, c.Stop(time.Second))
	assert.False(t, c.Health().Healthy)

	// Stop is idempotent
	require.NoError(t, c.Stop(time.Second))
}

func TestCreate(t *testing.T) {
	deps := component.Dependencies{NATSClient: &natsclient.Client{}}

	comp, err := Create(json.RawMessage(`{"subject":"custom.clock","interval_seconds":5}`), deps)
	require.NoError(t, err)

	c, ok := comp.(*Clock)
	require.True(t, ok)
	assert.Equal(t, "custom.clock", c.subject)
	assert.Equal(t, 5*time.Second, c.interval)
}

func TestCreate_MissingNATSClient(t *testing.T) {
	_, err := Create(nil, component.Dependencies{})
	assert.Error(t, err)
}

func TestCreate_InvalidConfig(t *testing.T) {
	deps := component.Dependencies{NATSClient: &natsclient.Client{}}
	_, err := Create(json.RawMessage(`{"interval_seconds":-10}`), deps)
	assert.Error(t, err)
}
