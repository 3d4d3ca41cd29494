// Package positions tracks last-known player positions and the online
// identity directory, written by the host's movement feed and read by the
// snapshot broadcaster and the audio router.
package positions

import (
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Position is a player's last-known location. World is nil when the player
// is not currently in a trackable world.
type Position struct {
	X, Y, Z float64
	// Yaw is in degrees, normalized to [0,360). Carried for client-side
	// spatialization only; never used for distance filtering.
	Yaw   float64
	World *uuid.UUID
}

// SameWorld reports whether both positions are in the same known world.
func (p Position) SameWorld(o Position) bool {
	return p.World != nil && o.World != nil && *p.World == *o.World
}

// DistanceTo returns the 3D Euclidean distance to another position.
func (p Position) DistanceTo(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// NormalizeYaw maps an angle in degrees onto [0,360).
func NormalizeYaw(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

type entry struct {
	pos     Position
	changed bool
}

// Store is the authoritative map from player identity to last-known position
// plus the online identity directory. At most one entry exists per identity;
// an absent entry means the player is offline.
type Store struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	names   map[uuid.UUID]string
	byName  map[string]uuid.UUID // keyed by lowercased display name
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[uuid.UUID]*entry),
		names:   make(map[uuid.UUID]string),
		byName:  make(map[string]uuid.UUID),
	}
}

// PlayerJoined registers an online player at the origin.
func (s *Store) PlayerJoined(identity uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[identity] = name
	s.byName[strings.ToLower(name)] = identity
	if _, ok := s.entries[identity]; !ok {
		s.entries[identity] = &entry{}
	}
}

// PlayerLeft removes a player from the store entirely.
func (s *Store) PlayerLeft(identity uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.names[identity]; ok {
		delete(s.byName, strings.ToLower(name))
	}
	delete(s.names, identity)
	delete(s.entries, identity)
}

// UpdatePosition records a movement feed sample, creating the entry if the
// player is not yet tracked. The changed flag is set only when the sample
// differs from the stored position.
func (s *Store) UpdatePosition(identity uuid.UUID, x, y, z, yawDeg float64, world *uuid.UUID) {
	yawDeg = NormalizeYaw(yawDeg)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identity]
	if !ok {
		e = &entry{}
		s.entries[identity] = e
	}

	next := Position{X: x, Y: y, Z: z, Yaw: yawDeg}
	if world != nil {
		w := *world
		next.World = &w
	}

	if e.pos.X != next.X || e.pos.Y != next.Y || e.pos.Z != next.Z ||
		e.pos.Yaw != next.Yaw || !sameWorldRef(e.pos.World, next.World) {
		e.pos = next
		e.changed = true
	}
}

func sameWorldRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Get returns the player's last-known position.
func (s *Store) Get(identity uuid.UUID) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[identity]
	if !ok {
		return Position{}, false
	}
	return e.pos, true
}

// ConsumeChanged reports whether the position moved since the last call and
// clears the flag. Consumed once per routing tick.
func (s *Store) ConsumeChanged(identity uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identity]
	if !ok || !e.changed {
		return false
	}
	e.changed = false
	return true
}

// Identities returns a snapshot of all currently tracked identities.
func (s *Store) Identities() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether the identity is currently tracked.
func (s *Store) Contains(identity uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[identity]
	return ok
}

// NameByIdentity resolves an identity to its display name.
func (s *Store) NameByIdentity(identity uuid.UUID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[identity]
	return name, ok
}

// IdentityByName resolves a display name (case-insensitive) to an identity.
func (s *Store) IdentityByName(name string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[strings.ToLower(name)]
	return id, ok
}

// IsOnline reports whether a display name is currently online.
func (s *Store) IsOnline(name string) bool {
	_, ok := s.IdentityByName(name)
	return ok
}
