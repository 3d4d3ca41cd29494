// Package host is the integration surface the game host drives: the movement
// feed, player join/leave notifications, the trusted-channel verify command,
// the config reload hook, and the presentation queries.
package host

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proximityvoice/relay/pkg/config"
	"github.com/proximityvoice/relay/pkg/network"
	"github.com/proximityvoice/relay/pkg/positions"
	"github.com/proximityvoice/relay/pkg/presence"
	"github.com/proximityvoice/relay/pkg/sessions"
	"github.com/proximityvoice/relay/pkg/verification"
)

// VerifyOutcome is the result of a pairing code submitted through the
// trusted command channel.
type VerifyOutcome int

const (
	// VerifyInvalid means the code is unknown or expired.
	VerifyInvalid VerifyOutcome = iota
	// VerifyAlreadyDone means the code was already confirmed.
	VerifyAlreadyDone
	// VerifySuccess means the code is now bound to the player.
	VerifySuccess
)

// Service exposes the relay core to the embedding game host.
type Service struct {
	cfg          *config.Store
	sessions     *sessions.Registry
	verification *verification.Registry
	positions    *positions.Store
	presence     *presence.Tracker
	logger       *zap.SugaredLogger
}

// NewServiceOptions contains options for creating a new Service.
type NewServiceOptions struct {
	Config       *config.Store
	Sessions     *sessions.Registry
	Verification *verification.Registry
	Positions    *positions.Store
	Presence     *presence.Tracker
	Logger       *zap.SugaredLogger
}

// NewService creates a new Service.
func NewService(opts NewServiceOptions) *Service {
	return &Service{
		cfg:          opts.Config,
		sessions:     opts.Sessions,
		verification: opts.Verification,
		positions:    opts.Positions,
		presence:     opts.Presence,
		logger:       opts.Logger,
	}
}

// HandleVerifyCommand resolves a pairing code for a player already
// authenticated by the host. The caller maps the outcome to chat feedback.
func (s *Service) HandleVerifyCommand(identity uuid.UUID, name, code string) VerifyOutcome {
	if s.verification.IsResolved(code) {
		return VerifyAlreadyDone
	}
	if !s.verification.Resolve(code, identity, name) {
		return VerifyInvalid
	}
	s.logger.Infow("pairing code confirmed", "name", name)
	return VerifySuccess
}

// PlayerJoined registers a player arriving on the host server.
func (s *Service) PlayerJoined(identity uuid.UUID, name string) {
	s.positions.PlayerJoined(identity, name)
}

// JoinMessage returns the chat line the host shows a player when they join,
// with the {url} placeholder replaced by the web client URL.
func (s *Service) JoinMessage(clientURL string) string {
	return strings.ReplaceAll(s.cfg.Get().General.JoinMessage, "{url}", clientURL)
}

// PlayerLeft removes a player from the position store. The broadcaster's
// presence sweep closes any linked voice session on a later tick.
func (s *Service) PlayerLeft(identity uuid.UUID) {
	s.positions.PlayerLeft(identity)
}

// UpdatePosition records one movement feed sample. Yaw is in degrees; it is
// normalized into [0,360).
func (s *Service) UpdatePosition(identity uuid.UUID, x, y, z, yawDeg float64, world *uuid.UUID) {
	s.positions.UpdatePosition(identity, x, y, z, yawDeg, world)
}

// Reload swaps the active configuration and re-pushes the config message to
// every open session.
func (s *Service) Reload(cfg config.Config) {
	s.cfg.Swap(cfg)
	s.presence.SetWindow(cfg.General.TalkingWindow())

	msg := network.ConfigMessage(cfg)
	for _, sess := range s.sessions.AllSessions() {
		if err := sess.Transport.SendJSON(msg); err != nil {
			s.logger.Debugf("config push to session %d failed: %v", sess.ID, err)
		}
	}
	s.logger.Infow("configuration reloaded", "sessions", s.sessions.Len())
}

// IsSpeaking reports whether the player sent audio within the talking window.
func (s *Service) IsSpeaking(identity uuid.UUID) bool {
	return s.presence.IsSpeaking(identity)
}

// IsConnectedToVoice reports whether the player has a live voice session.
func (s *Service) IsConnectedToVoice(identity uuid.UUID) bool {
	return s.presence.IsConnected(identity)
}
