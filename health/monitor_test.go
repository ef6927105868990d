package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/triggerkit/component"
)

// subStatus pulls one component's status out of an aggregate rollup
func subStatus(t *testing.T, aggregate Status, name string) Status {
	t.Helper()
	for _, s := range aggregate.SubStatuses {
		if s.Component == name {
			return s
		}
	}
	t.Fatalf("component %q not present in aggregate", name)
	return Status{}
}

func TestMonitor_UpdateStampsNameAndTime(t *testing.T) {
	monitor := NewMonitor()

	// Status carries a different component name than the key
	monitor.Update("evaluator", NewHealthy("wrong-name", "ok"))

	status := subStatus(t, monitor.AggregateHealth("engine"), "evaluator")
	assert.Equal(t, "evaluator", status.Component)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "ok", status.Message)
	assert.False(t, status.Timestamp.IsZero())
}

func TestMonitor_ConvenienceUpdates(t *testing.T) {
	monitor := NewMonitor()

	monitor.UpdateHealthy("a", "fine")
	monitor.UpdateDegraded("b", "slow provider")
	monitor.Update("c", NewUnhealthy("c", "nats down"))

	aggregate := monitor.AggregateHealth("engine")
	assert.True(t, subStatus(t, aggregate, "a").IsHealthy())
	assert.True(t, subStatus(t, aggregate, "b").IsDegraded())
	assert.True(t, subStatus(t, aggregate, "c").IsUnhealthy())
}

func TestMonitor_AggregateHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(m *Monitor)
		wantStatus string
		wantSubs   int
	}{
		{
			name:       "empty monitor is healthy",
			setup:      func(_ *Monitor) {},
			wantStatus: "healthy",
			wantSubs:   0,
		},
		{
			name: "all healthy",
			setup: func(m *Monitor) {
				m.UpdateHealthy("location", "ok")
				m.UpdateHealthy("clock", "ok")
			},
			wantStatus: "healthy",
			wantSubs:   2,
		},
		{
			name: "one degraded",
			setup: func(m *Monitor) {
				m.UpdateHealthy("location", "ok")
				m.UpdateDegraded("clock", "timer drift")
			},
			wantStatus: "degraded",
			wantSubs:   2,
		},
		{
			name: "unhealthy wins over degraded",
			setup: func(m *Monitor) {
				m.UpdateDegraded("location", "slow")
				m.Update("evaluator", NewUnhealthy("evaluator", "crashed"))
			},
			wantStatus: "unhealthy",
			wantSubs:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := NewMonitor()
			tt.setup(monitor)

			aggregate := monitor.AggregateHealth("engine")
			assert.Equal(t, "engine", aggregate.Component)
			assert.Equal(t, tt.wantStatus, aggregate.Status)
			assert.Len(t, aggregate.SubStatuses, tt.wantSubs)
		})
	}
}

func TestMonitor_Clear(t *testing.T) {
	monitor := NewMonitor()

	monitor.UpdateDegraded("location", "slow")
	monitor.UpdateHealthy("clock", "ok")
	require.Len(t, monitor.AggregateHealth("engine").SubStatuses, 2)

	monitor.Clear()

	aggregate := monitor.AggregateHealth("engine")
	assert.Empty(t, aggregate.SubStatuses)
	assert.True(t, aggregate.IsHealthy())
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			monitor.UpdateHealthy("shared", "ok")
		}()
		go func() {
			defer wg.Done()
			_ = monitor.AggregateHealth("engine")
		}()
	}
	wg.Wait()

	status := subStatus(t, monitor.AggregateHealth("engine"), "shared")
	assert.True(t, status.IsHealthy())
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("a", "ok")}

	aggregate := Aggregate("system", subs)
	subs[0].Status = "unhealthy"

	assert.Equal(t, "healthy", aggregate.SubStatuses[0].Status)
}

func TestStatus_WithSubStatus(t *testing.T) {
	base := NewHealthy("engine", "ok")

	extended := base.WithSubStatus(NewDegraded("clock", "drift"))

	assert.Empty(t, base.SubStatuses)
	require.Len(t, extended.SubStatuses, 1)
	assert.Equal(t, "clock", extended.SubStatuses[0].Component)
}

func TestFromComponentHealth(t *testing.T) {
	now := time.Now()

	healthy := FromComponentHealth("location", component.HealthStatus{
		Healthy:   true,
		LastCheck: now,
		Uptime:    time.Minute,
	})
	assert.True(t, healthy.IsHealthy())
	assert.Equal(t, "location", healthy.Component)
	assert.Equal(t, "Component healthy", healthy.Message)
	require.NotNil(t, healthy.Metrics)
	assert.Equal(t, time.Minute, healthy.Metrics.Uptime)

	unhealthy := FromComponentHealth("clock", component.HealthStatus{
		Healthy:    false,
		ErrorCount: 3,
		LastError:  "ticker stalled",
	})
	assert.True(t, unhealthy.IsUnhealthy())
	assert.Equal(t, "ticker stalled", unhealthy.Message)
	assert.Equal(t, 3, unhealthy.Metrics.ErrorCount)
}
