package network

import (
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proximityvoice/relay/pkg/config"
	"github.com/proximityvoice/relay/pkg/messages"
	"github.com/proximityvoice/relay/pkg/positions"
	"github.com/proximityvoice/relay/pkg/presence"
	"github.com/proximityvoice/relay/pkg/relay"
	"github.com/proximityvoice/relay/pkg/sessions"
	"github.com/proximityvoice/relay/pkg/verification"
)

// KickReasonSuperseded is sent to a session evicted by a newer pairing with
// the same account.
const KickReasonSuperseded = "Another session connected with this account."

// Join error reasons surfaced to the client. The connection stays open so
// the client can retry.
const (
	joinErrNotVerified   = "Please verify first by typing the command in game chat."
	joinErrExpired       = "Verification expired. Please refresh and try again."
	joinErrPlayerOffline = "Player is no longer online."
	joinErrNameClaimed   = "This player is already in voice chat."
)

// Conn drives the voice protocol for one client connection. It is
// transport-agnostic: the websocket read loop feeds HandleText and
// HandleBinary, and calls HandleClose when the connection ends.
type Conn struct {
	deps      Deps
	transport sessions.Transport
	session   *sessions.Session
	// bindingKey identifies this connection attempt for idempotent code
	// issuance; an opaque token rather than the client IP, so shared-IP
	// clients never collide.
	bindingKey string
	code       string
	logger     *zap.SugaredLogger
}

// Deps are the registries and services a connection operates on.
type Deps struct {
	Sessions     *sessions.Registry
	Verification *verification.Registry
	Positions    *positions.Store
	Presence     *presence.Tracker
	Router       *relay.Router
	Config       *config.Store
	Logger       *zap.SugaredLogger
}

// NewConn allocates a session for the transport and runs the connect
// sequence: session ID, current config, then the pairing code.
func NewConn(deps Deps, transport sessions.Transport) (*Conn, error) {
	session := deps.Sessions.Allocate(transport, transport.RemoteAddr())

	c := &Conn{
		deps:       deps,
		transport:  transport,
		session:    session,
		bindingKey: uuid.NewString(),
		logger:     deps.Logger.With("session", session.ID, "remote", transport.RemoteAddr()),
	}

	code, err := deps.Verification.IssueOrReuse(c.bindingKey)
	if err != nil {
		deps.Sessions.Release(session.ID)
		return nil, err
	}
	c.code = code

	c.send(messages.SessionID{Type: messages.MessageTypeID, ID: session.ID})
	c.send(ConfigMessage(deps.Config.Get()))
	c.send(messages.VerificationCode{
		Type:    messages.MessageTypeVerificationCode,
		Code:    code,
		Command: "/voicechat " + code,
	})

	c.logger.Infow("client connected", "code", code)
	return c, nil
}

// Session returns the session backing this connection.
func (c *Conn) Session() *sessions.Session {
	return c.session
}

// HandleText dispatches one inbound control message. Malformed or unknown
// messages are logged and dropped; the connection stays open.
func (c *Conn) HandleText(data []byte) {
	env, err := messages.ParseEnvelope(data)
	if err != nil {
		c.logger.Warnf("malformed control message: %v", err)
		return
	}

	switch env.Type {
	case messages.MessageTypeCheckVerification:
		c.sendVerificationStatus()
	case messages.MessageTypeJoin:
		c.handleJoin()
	case messages.MessageTypePing:
		c.handlePing(data)
	default:
		c.logger.Warnf("unknown control message type %q", env.Type)
	}
}

// HandleBinary forwards one opaque audio frame from a linked session.
func (c *Conn) HandleBinary(data []byte) {
	c.deps.Router.Route(c.session, data)
}

// HandleClose synchronously unwinds the connection's claims so a rapid
// reconnect with the same identity is never blocked by stale state.
func (c *Conn) HandleClose() {
	if identity, ok := c.session.Identity(); ok {
		// A superseding session may already hold this identity; its
		// presence state belongs to that session now.
		if cur, live := c.deps.Sessions.FindByIdentity(identity); !live || cur == c.session {
			c.deps.Presence.MarkDisconnected(identity)
		}
	} else {
		// Never consumed its ticket; don't let the code linger.
		c.deps.Verification.InvalidateKey(c.bindingKey)
	}
	c.deps.Sessions.Release(c.session.ID)
	c.logger.Info("client disconnected")
}

func (c *Conn) sendVerificationStatus() {
	status := messages.VerificationStatus{Type: messages.MessageTypeVerificationStatus}
	if res, ok := c.deps.Verification.PeekResolution(c.code); ok {
		status.Verified = true
		status.Username = res.Name
	}
	c.send(status)
}

func (c *Conn) handleJoin() {
	vr := c.deps.Verification

	if !vr.IsKnown(c.code) {
		c.sendJoinError(joinErrExpired)
		return
	}
	res, ok := vr.PeekResolution(c.code)
	if !ok {
		c.sendJoinError(joinErrNotVerified)
		return
	}

	if !c.deps.Positions.IsOnline(res.Name) {
		c.sendJoinError(joinErrPlayerOffline)
		vr.Consume(c.code)
		return
	}

	evicted, err := c.deps.Sessions.ClaimIdentity(c.session, res.Identity, res.Name)
	if err != nil {
		c.sendJoinError(joinErrNameClaimed)
		return
	}
	for _, old := range evicted {
		c.logger.Infow("superseding older session", "old_session", old.ID, "name", old.Name())
		if err := old.Transport.SendJSON(messages.Kicked{
			Type:   messages.MessageTypeKicked,
			Reason: KickReasonSuperseded,
		}); err != nil {
			c.logger.Debugf("kicked notice to session %d failed: %v", old.ID, err)
		}
		if identity, ok := old.Identity(); ok {
			c.deps.Presence.MarkDisconnected(identity)
		}
		if err := old.Transport.Close(); err != nil {
			c.logger.Debugf("closing superseded session %d: %v", old.ID, err)
		}
	}

	vr.Consume(c.code)
	c.deps.Presence.MarkConnected(res.Identity)

	c.send(messages.JoinSuccess{
		Type: messages.MessageTypeJoinSuccess,
		ID:   c.session.ID,
		Name: res.Name,
	})
	c.logger.Infow("player joined voice chat", "name", res.Name)
}

func (c *Conn) handlePing(data []byte) {
	var ping messages.Ping
	if err := json.Unmarshal(data, &ping); err != nil {
		c.logger.Warnf("malformed ping: %v", err)
		return
	}
	c.send(messages.Pong{Type: messages.MessageTypePong, Timestamp: ping.Timestamp})
}

func (c *Conn) sendJoinError(reason string) {
	c.send(messages.JoinError{Type: messages.MessageTypeJoinError, Error: reason})
}

func (c *Conn) send(v interface{}) {
	if err := c.transport.SendJSON(v); err != nil {
		c.logger.Debugf("send failed: %v", err)
	}
}

// ConfigMessage builds the client config message from the active
// configuration. Re-sent to every open session on reload.
func ConfigMessage(cfg config.Config) messages.Config {
	return messages.Config{
		Type:            messages.MessageTypeConfig,
		MaxDistance:     cfg.Audio.MaxDistance,
		DistanceFormula: string(cfg.Audio.DistanceFormula),
		VoiceDimension:  string(cfg.Audio.VoiceDimension),
		RolloffFactor:   cfg.Audio.RolloffFactor,
		RefDistance:     cfg.Audio.RefDistance,
		Blend2DDistance: cfg.Audio.Blend2DDistance,
		Full3DDistance:  cfg.Audio.Full3DDistance,
	}
}
