package positions

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeYaw(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"in range", 90, 90},
		{"wraps", 360, 0},
		{"over", 450, 90},
		{"negative", -90, 270},
		{"large negative", -810, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizeYaw(tt.in), 1e-9)
		})
	}
}

func TestDistanceTo(t *testing.T) {
	a := Position{X: 0, Y: 0, Z: 0}
	b := Position{X: 3, Y: 4, Z: 0}
	assert.InDelta(t, 5, a.DistanceTo(b), 1e-9)
	assert.InDelta(t, 5, b.DistanceTo(a), 1e-9)
	assert.Zero(t, a.DistanceTo(a))
}

func TestSameWorld(t *testing.T) {
	w1 := uuid.New()
	w2 := uuid.New()
	tests := []struct {
		name string
		a, b *uuid.UUID
		want bool
	}{
		{"both same", &w1, &w1, true},
		{"different", &w1, &w2, false},
		{"one nil", &w1, nil, false},
		{"both nil", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Position{World: tt.a}
			b := Position{World: tt.b}
			assert.Equal(t, tt.want, a.SameWorld(b))
		})
	}
}

func TestPlayerLifecycle(t *testing.T) {
	s := NewStore()
	identity := uuid.New()

	assert.False(t, s.IsOnline("Alice"))

	s.PlayerJoined(identity, "Alice")
	assert.True(t, s.IsOnline("Alice"))
	assert.True(t, s.IsOnline("alice"), "name lookup is case-insensitive")

	got, ok := s.IdentityByName("ALICE")
	require.True(t, ok)
	assert.Equal(t, identity, got)

	name, ok := s.NameByIdentity(identity)
	require.True(t, ok)
	assert.Equal(t, "Alice", name)

	pos, ok := s.Get(identity)
	require.True(t, ok)
	assert.Zero(t, pos.X)
	assert.Nil(t, pos.World)

	s.PlayerLeft(identity)
	assert.False(t, s.IsOnline("Alice"))
	_, ok = s.Get(identity)
	assert.False(t, ok, "absent entry means offline")
}

func TestUpdatePosition(t *testing.T) {
	s := NewStore()
	identity := uuid.New()
	world := uuid.New()

	s.UpdatePosition(identity, 1, 2, 3, 725, &world)

	pos, ok := s.Get(identity)
	require.True(t, ok)
	assert.Equal(t, 1.0, pos.X)
	assert.Equal(t, 2.0, pos.Y)
	assert.Equal(t, 3.0, pos.Z)
	assert.InDelta(t, 5, pos.Yaw, 1e-9, "yaw is normalized to [0,360)")
	require.NotNil(t, pos.World)
	assert.Equal(t, world, *pos.World)
}

func TestConsumeChanged(t *testing.T) {
	s := NewStore()
	identity := uuid.New()
	world := uuid.New()
	s.PlayerJoined(identity, "Alice")

	s.UpdatePosition(identity, 1, 0, 0, 0, &world)
	assert.True(t, s.ConsumeChanged(identity))
	assert.False(t, s.ConsumeChanged(identity), "flag is consumed exactly once")

	// An identical sample does not re-arm the flag.
	s.UpdatePosition(identity, 1, 0, 0, 0, &world)
	assert.False(t, s.ConsumeChanged(identity))

	// Any component change re-arms it, including leaving the world.
	s.UpdatePosition(identity, 1, 0, 0, 0, nil)
	assert.True(t, s.ConsumeChanged(identity))

	assert.False(t, s.ConsumeChanged(uuid.New()), "unknown identity is a no-op")
}

func TestIdentities(t *testing.T) {
	s := NewStore()
	a := uuid.New()
	b := uuid.New()
	s.PlayerJoined(a, "Alice")
	s.PlayerJoined(b, "Bob")

	ids := s.Identities()
	assert.ElementsMatch(t, []uuid.UUID{a, b}, ids)
	assert.True(t, s.Contains(a))

	s.PlayerLeft(a)
	assert.False(t, s.Contains(a))
}

func TestDistanceToIsFinite(t *testing.T) {
	a := Position{X: 1e8, Y: -1e8, Z: 1e8}
	b := Position{X: -1e8, Y: 1e8, Z: -1e8}
	assert.False(t, math.IsInf(a.DistanceTo(b), 0))
}
