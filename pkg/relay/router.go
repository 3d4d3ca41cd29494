package relay

import (
	"go.uber.org/zap"

	"github.com/proximityvoice/relay/pkg/config"
	"github.com/proximityvoice/relay/pkg/messages"
	"github.com/proximityvoice/relay/pkg/positions"
	"github.com/proximityvoice/relay/pkg/presence"
	"github.com/proximityvoice/relay/pkg/sessions"
)

// Router fans inbound audio frames out to every other linked session within
// the cutoff distance, using live position reads rather than the last
// snapshot. Frames are opaque; no payload inspection occurs.
type Router struct {
	sessions  *sessions.Registry
	positions *positions.Store
	presence  *presence.Tracker
	cfg       *config.Store
	logger    *zap.SugaredLogger
}

// NewRouterOptions contains options for creating a new Router.
type NewRouterOptions struct {
	Sessions  *sessions.Registry
	Positions *positions.Store
	Presence  *presence.Tracker
	Config    *config.Store
	Logger    *zap.SugaredLogger
}

// NewRouter creates a new Router.
func NewRouter(opts NewRouterOptions) *Router {
	return &Router{
		sessions:  opts.Sessions,
		positions: opts.Positions,
		presence:  opts.Presence,
		cfg:       opts.Config,
		logger:    opts.Logger,
	}
}

// Route forwards one inbound audio frame from a linked session. Frames from
// unlinked sessions are dropped. A failed write to one recipient is logged
// and never affects delivery to the others; there is no buffering or retry.
func (r *Router) Route(sender *sessions.Session, payload []byte) {
	identity, ok := sender.Identity()
	if !ok {
		return
	}

	r.presence.MarkTalking(identity)

	senderPos, ok := r.positions.Get(identity)
	if !ok {
		return
	}

	cutoff := r.cfg.Get().Audio.CutoffDistance()
	frame := messages.TagAudioFrame(sender.ID, payload)

	for _, recipient := range r.sessions.AllSessions() {
		if recipient.ID == sender.ID {
			continue
		}
		recipientIdentity, ok := recipient.Identity()
		if !ok {
			continue
		}
		recipientPos, ok := r.positions.Get(recipientIdentity)
		if !ok {
			continue
		}
		if !senderPos.SameWorld(recipientPos) {
			continue
		}
		if senderPos.DistanceTo(recipientPos) > cutoff {
			continue
		}

		if err := recipient.Transport.SendBinary(frame); err != nil {
			r.logger.Debugf("audio frame to session %d failed: %v", recipient.ID, err)
		}
	}
}
