// Package config provides Viper-based configuration loading for the voice relay server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// DistanceFormula selects the client-side attenuation curve. The server never
// evaluates it; it is forwarded to clients in the config message.
type DistanceFormula string

const (
	DistanceFormulaLinear        DistanceFormula = "linear"
	DistanceFormulaExponential   DistanceFormula = "exponential"
	DistanceFormulaInverseSquare DistanceFormula = "inverse_square"
)

// ParseDistanceFormula normalizes a formula string, falling back to linear
// for unknown values.
func ParseDistanceFormula(s string) DistanceFormula {
	switch DistanceFormula(strings.ToLower(s)) {
	case DistanceFormulaExponential:
		return DistanceFormulaExponential
	case DistanceFormulaInverseSquare:
		return DistanceFormulaInverseSquare
	default:
		return DistanceFormulaLinear
	}
}

// VoiceDimension is a client-side rendering hint ("2D" or "3D"). It never
// affects server-side distance computation.
type VoiceDimension string

const (
	VoiceDimension2D VoiceDimension = "2D"
	VoiceDimension3D VoiceDimension = "3D"
)

// ParseVoiceDimension normalizes a dimension string, falling back to 3D
// for unknown values.
func ParseVoiceDimension(s string) VoiceDimension {
	if strings.EqualFold(s, string(VoiceDimension2D)) {
		return VoiceDimension2D
	}
	return VoiceDimension3D
}

// ServerConfig holds WebSocket/HTTP listener settings.
type ServerConfig struct {
	// Host is the bind address for the listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
	// StaticDir is the directory of web client assets served at "/".
	// Empty disables static serving.
	StaticDir string `mapstructure:"static_dir"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AudioConfig holds the audible-range and attenuation parameters.
type AudioConfig struct {
	// MaxDistance is the perceptual maximum audible distance in world units.
	MaxDistance float64 `mapstructure:"max_distance"`
	// ServerCutoffMultiplier scales MaxDistance into the server-side relay
	// cutoff, leaving room for client-side fade curves.
	ServerCutoffMultiplier float64 `mapstructure:"server_cutoff_multiplier"`
	// DistanceFormula is the client attenuation curve.
	DistanceFormula DistanceFormula `mapstructure:"distance_formula"`
	// VoiceDimension is the client spatialization hint.
	VoiceDimension VoiceDimension `mapstructure:"voice_dimension"`
	RolloffFactor  float64        `mapstructure:"rolloff_factor"`
	RefDistance    float64        `mapstructure:"ref_distance"`
	// Blend2DDistance and Full3DDistance shape the client 2D/3D blend.
	Blend2DDistance float64 `mapstructure:"blend_2d_distance"`
	Full3DDistance  float64 `mapstructure:"full_3d_distance"`
}

// CutoffDistance returns the server-side relay cutoff.
func (a AudioConfig) CutoffDistance() float64 {
	return a.MaxDistance * a.ServerCutoffMultiplier
}

// GeneralConfig holds tick and presence settings.
type GeneralConfig struct {
	// UpdateIntervalMs is the snapshot broadcast interval in milliseconds.
	UpdateIntervalMs int `mapstructure:"update_interval_ms"`
	// TalkingWindowMs is how long after the last audio frame a player is
	// still reported as speaking.
	TalkingWindowMs int `mapstructure:"talking_window_ms"`
	// JoinMessage is shown to players when they join the host server.
	// The {url} placeholder is replaced with the client URL.
	JoinMessage string `mapstructure:"join_message"`
}

// UpdateInterval returns the snapshot broadcast interval.
func (g GeneralConfig) UpdateInterval() time.Duration {
	return time.Duration(g.UpdateIntervalMs) * time.Millisecond
}

// TalkingWindow returns the speaking-state window.
func (g GeneralConfig) TalkingWindow() time.Duration {
	return time.Duration(g.TalkingWindowMs) * time.Millisecond
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when set, writes rotated logs to the given path instead of stderr.
	File string `mapstructure:"file"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Audio   AudioConfig   `mapstructure:"audio"`
	General GeneralConfig `mapstructure:"general"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
func (c Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Audio.MaxDistance <= 0 {
		errs = append(errs, fmt.Sprintf("audio.max_distance must be > 0, got %g", c.Audio.MaxDistance))
	}
	if c.Audio.ServerCutoffMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("audio.server_cutoff_multiplier must be >= 1, got %g", c.Audio.ServerCutoffMultiplier))
	}
	if c.Audio.RefDistance <= 0 {
		errs = append(errs, fmt.Sprintf("audio.ref_distance must be > 0, got %g", c.Audio.RefDistance))
	}
	if c.General.UpdateIntervalMs < 1 {
		errs = append(errs, fmt.Sprintf("general.update_interval_ms must be >= 1, got %d", c.General.UpdateIntervalMs))
	}
	if c.General.TalkingWindowMs < 1 {
		errs = append(errs, fmt.Sprintf("general.talking_window_ms must be >= 1, got %d", c.General.TalkingWindowMs))
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads and validates configuration from the given file path.
// Environment variables with a VOICERELAY_ prefix override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("VOICERELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Audio.DistanceFormula = ParseDistanceFormula(string(cfg.Audio.DistanceFormula))
	cfg.Audio.VoiceDimension = ParseVoiceDimension(string(cfg.Audio.VoiceDimension))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8443)
	v.SetDefault("server.static_dir", "web")

	v.SetDefault("audio.max_distance", 75.0)
	v.SetDefault("audio.server_cutoff_multiplier", 1.1)
	v.SetDefault("audio.distance_formula", "exponential")
	v.SetDefault("audio.voice_dimension", "3D")
	v.SetDefault("audio.rolloff_factor", 1.5)
	v.SetDefault("audio.ref_distance", 10.0)
	v.SetDefault("audio.blend_2d_distance", 20.0)
	v.SetDefault("audio.full_3d_distance", 50.0)

	v.SetDefault("general.update_interval_ms", 50)
	v.SetDefault("general.talking_window_ms", 500)
	v.SetDefault("general.join_message", "This server has voice chat! Connect at: {url}")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Store holds the active configuration and supports atomic replacement on
// reload. Readers always see a complete, validated Config.
type Store struct {
	p atomic.Pointer[Config]
}

// NewStore creates a Store with the given initial configuration.
func NewStore(cfg Config) *Store {
	s := &Store{}
	s.p.Store(&cfg)
	return s
}

// Get returns the active configuration.
func (s *Store) Get() Config {
	return *s.p.Load()
}

// Swap replaces the active configuration.
func (s *Store) Swap(cfg Config) {
	s.p.Store(&cfg)
}
