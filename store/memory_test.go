package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/triggerkit/pkg/geo"
	"github.com/c360/triggerkit/trigger"
)

func sampleTrigger(id string) trigger.MemoryTrigger {
	return trigger.MemoryTrigger{
		ID:      id,
		OwnerID: "user-1",
		Name:    "home",
		Conditions: []trigger.Condition{{
			Type: trigger.ConditionLocation,
			Location: &trigger.LocationCondition{
				Anchor:       geo.Coordinate{Latitude: 51.5, Longitude: -0.12},
				RadiusMeters: 50,
			},
		}},
		Actions:  []trigger.Action{{ID: "a1", Type: trigger.ActionNotify}},
		IsActive: true,
		Settings: trigger.DefaultSettings(),
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.Save(testContext(t), sampleTrigger("t1")))
	require.NoError(t, s.Save(testContext(t), sampleTrigger("t2")))
	assert.Equal(t, 2, s.Count())

	loaded, err := s.Load(testContext(t))
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestMemoryStore_SaveOverwrites(t *testing.T) {
	s := NewMemoryStore()

	first := sampleTrigger("t1")
	require.NoError(t, s.Save(testContext(t), first))

	second := sampleTrigger("t1")
	second.Name = "office"
	require.NoError(t, s.Save(testContext(t), second))

	loaded, err := s.Load(testContext(t))
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "office", loaded[0].Name)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.Save(testContext(t), sampleTrigger("t1")))
	require.NoError(t, s.Delete(testContext(t), "t1"))
	assert.Equal(t, 0, s.Count())

	// Missing id is not an error
	require.NoError(t, s.Delete(testContext(t), "t1"))
}

func TestMemoryStore_LoadReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Save(testContext(t), sampleTrigger("t1")))

	loaded, err := s.Load(testContext(t))
	require.NoError(t, err)
	loaded[0].Name = "mutated"

	fresh, err := s.Load(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "home", fresh[0].Name)
}
