// Package messages defines the control messages exchanged with voice clients
// and the binary audio frame tagging scheme.
package messages

import "encoding/json"

// Client-to-server message types
const (
	MessageTypeCheckVerification = "check_verification"
	MessageTypeJoin              = "join"
	MessageTypePing              = "ping"
)

// Server-to-client message types
const (
	MessageTypeID                 = "id"
	MessageTypeConfig             = "config"
	MessageTypeVerificationCode   = "verification_code"
	MessageTypeVerificationStatus = "verification_status"
	MessageTypeJoinSuccess        = "join_success"
	MessageTypeJoinError          = "join_error"
	MessageTypePlayersSnapshot    = "players_snapshot"
	MessageTypeKicked             = "kicked"
	MessageTypePong               = "pong"
)

// Envelope is the minimal shape of an inbound control message, used to
// dispatch on the type tag before decoding the full payload.
type Envelope struct {
	Type string `json:"type"`
}

// ParseEnvelope decodes the type tag of an inbound control message.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Ping is sent by the client to measure latency.
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Pong echoes the client timestamp from a Ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// SessionID informs the client of its assigned session ID.
type SessionID struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
}

// Config carries the audible-range and attenuation parameters a client needs
// for local spatialization. Re-sent to every open session on reload.
type Config struct {
	Type            string  `json:"type"`
	MaxDistance     float64 `json:"maxDistance"`
	DistanceFormula string  `json:"distanceFormula"`
	VoiceDimension  string  `json:"voiceDimension"`
	RolloffFactor   float64 `json:"rolloffFactor"`
	RefDistance     float64 `json:"refDistance"`
	Blend2DDistance float64 `json:"blend2dDistance"`
	Full3DDistance  float64 `json:"full3dDistance"`
}

// VerificationCode delivers the pairing code together with the exact command
// the player must enter through the trusted in-game channel.
type VerificationCode struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Command string `json:"command"`
}

// VerificationStatus reports whether the session's pairing code has been
// confirmed, and for whom.
type VerificationStatus struct {
	Type     string `json:"type"`
	Verified bool   `json:"verified"`
	Username string `json:"username,omitempty"`
}

// JoinSuccess confirms a session has been linked to a player.
type JoinSuccess struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// JoinError reports why a join attempt failed. The connection stays open
// so the client can retry.
type JoinError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Kicked tells a client its session was closed by the server.
type Kicked struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// PlayerInfo describes one player's position within a snapshot.
type PlayerInfo struct {
	ID   uint32  `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Yaw  float64 `json:"yaw"`
}

// PlayersSnapshot is a stateless replacement of a listener's view: its own
// position plus every in-range player in the same world. Clients apply the
// latest snapshot wholesale.
type PlayersSnapshot struct {
	Type    string       `json:"type"`
	Self    PlayerInfo   `json:"self"`
	Players []PlayerInfo `json:"players"`
}
