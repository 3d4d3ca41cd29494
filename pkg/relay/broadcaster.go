// Package relay implements the spatial snapshot broadcaster and the audio
// packet router.
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proximityvoice/relay/pkg/config"
	"github.com/proximityvoice/relay/pkg/messages"
	"github.com/proximityvoice/relay/pkg/positions"
	"github.com/proximityvoice/relay/pkg/presence"
	"github.com/proximityvoice/relay/pkg/sessions"
)

// presenceMissLimit is how many consecutive sweeps an identity may be absent
// from the movement feed before its session is evicted. Two sweeps absorb
// transient gaps in the feed.
const presenceMissLimit = 2

// KickReasonPlayerLeft is sent when a linked player stops appearing in the
// movement feed.
const KickReasonPlayerLeft = "Player left the game server."

// SpeakingHook receives, per listener and tick, the display names of
// in-range players currently speaking. Consumed by presentation
// collaborators; may be nil.
type SpeakingHook func(listener uuid.UUID, speakingNames []string)

// Broadcaster recomputes each listener's in-range set once per tick and
// pushes a personalized, stateless snapshot.
type Broadcaster struct {
	sessions     *sessions.Registry
	positions    *positions.Store
	presence     *presence.Tracker
	cfg          *config.Store
	logger       *zap.SugaredLogger
	speakingHook SpeakingHook

	// missedSweeps counts consecutive ticks an identity was absent from
	// the position store. Only touched by the tick goroutine.
	missedSweeps map[uuid.UUID]int
}

// NewBroadcasterOptions contains options for creating a new Broadcaster.
type NewBroadcasterOptions struct {
	Sessions     *sessions.Registry
	Positions    *positions.Store
	Presence     *presence.Tracker
	Config       *config.Store
	Logger       *zap.SugaredLogger
	SpeakingHook SpeakingHook
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(opts NewBroadcasterOptions) *Broadcaster {
	return &Broadcaster{
		sessions:     opts.Sessions,
		positions:    opts.Positions,
		presence:     opts.Presence,
		cfg:          opts.Config,
		logger:       opts.Logger,
		speakingHook: opts.SpeakingHook,
		missedSweeps: make(map[uuid.UUID]int),
	}
}

// Start runs the broadcast loop until the context is cancelled. The tick
// interval follows the active configuration across reloads.
func (b *Broadcaster) Start(ctx context.Context) {
	interval := b.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick()
			if next := b.interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (b *Broadcaster) interval() time.Duration {
	return b.cfg.Get().General.UpdateInterval()
}

// tick runs one sweep: presence timeout, dirty-flag consumption, snapshots.
func (b *Broadcaster) tick() {
	live := b.sessions.AllSessions()

	b.sweepPresence(live)

	moved := 0
	for _, s := range live {
		identity, ok := s.Identity()
		if !ok {
			continue
		}
		if b.positions.ConsumeChanged(identity) {
			moved++
		}
	}
	if moved > 0 {
		b.logger.Debugf("tick: %d players moved", moved)
	}

	b.broadcastSnapshots(live)
}

// sweepPresence evicts sessions whose identity has been absent from the
// movement feed for presenceMissLimit consecutive sweeps.
func (b *Broadcaster) sweepPresence(live []*sessions.Session) {
	linked := make(map[uuid.UUID]*sessions.Session, len(live))
	for _, s := range live {
		identity, ok := s.Identity()
		if !ok {
			continue
		}
		linked[identity] = s

		if b.positions.Contains(identity) {
			delete(b.missedSweeps, identity)
			continue
		}
		b.missedSweeps[identity]++
		if b.missedSweeps[identity] < presenceMissLimit {
			continue
		}
		delete(b.missedSweeps, identity)
		b.evict(s, identity)
	}

	for identity := range b.missedSweeps {
		if _, ok := linked[identity]; !ok {
			delete(b.missedSweeps, identity)
		}
	}
}

func (b *Broadcaster) evict(s *sessions.Session, identity uuid.UUID) {
	b.logger.Infow("evicting session, player left the host server",
		"session", s.ID, "name", s.Name())

	if err := s.Transport.SendJSON(messages.Kicked{
		Type:   messages.MessageTypeKicked,
		Reason: KickReasonPlayerLeft,
	}); err != nil {
		b.logger.Debugf("kicked notice to session %d failed: %v", s.ID, err)
	}
	b.presence.MarkDisconnected(identity)
	b.sessions.Release(s.ID)
	if err := s.Transport.Close(); err != nil {
		b.logger.Debugf("closing session %d: %v", s.ID, err)
	}
}

// broadcastSnapshots sends each linked listener its own position plus every
// other linked session in the same world within the cutoff distance. The
// cutoff exceeds the perceptual max-audible distance so client-side
// attenuation can fade smoothly instead of hard-cutting.
func (b *Broadcaster) broadcastSnapshots(live []*sessions.Session) {
	cutoff := b.cfg.Get().Audio.CutoffDistance()

	for _, target := range live {
		identity, ok := target.Identity()
		if !ok {
			continue
		}
		selfPos, ok := b.positions.Get(identity)
		if !ok {
			continue
		}

		snapshot := messages.PlayersSnapshot{
			Type:    messages.MessageTypePlayersSnapshot,
			Self:    playerInfo(target, selfPos),
			Players: []messages.PlayerInfo{},
		}

		var speakingNames []string
		if b.presence.IsSpeaking(identity) {
			speakingNames = append(speakingNames, target.Name())
		}

		for _, other := range live {
			if other.ID == target.ID {
				continue
			}
			otherIdentity, ok := other.Identity()
			if !ok {
				continue
			}
			otherPos, ok := b.positions.Get(otherIdentity)
			if !ok {
				continue
			}
			if !selfPos.SameWorld(otherPos) {
				continue
			}
			if selfPos.DistanceTo(otherPos) > cutoff {
				continue
			}

			snapshot.Players = append(snapshot.Players, playerInfo(other, otherPos))
			if b.presence.IsSpeaking(otherIdentity) {
				speakingNames = append(speakingNames, other.Name())
			}
		}

		if b.speakingHook != nil {
			b.speakingHook(identity, speakingNames)
		}

		if err := target.Transport.SendJSON(snapshot); err != nil {
			b.logger.Debugf("snapshot to session %d failed: %v", target.ID, err)
		}
	}
}

func playerInfo(s *sessions.Session, pos positions.Position) messages.PlayerInfo {
	return messages.PlayerInfo{
		ID:   s.ID,
		Name: s.Name(),
		X:    pos.X,
		Y:    pos.Y,
		Z:    pos.Z,
		Yaw:  pos.Yaw,
	}
}
