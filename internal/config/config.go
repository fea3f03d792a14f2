package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds host configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	// RelayURL points at an optional NATS server used as a last-resort path
	// for state messages when a client's direct channel is down. Empty
	// disables the relay.
	RelayURL    string `mapstructure:"relay_url" yaml:"relay_url"`
	RelayPrefix string `mapstructure:"relay_prefix" yaml:"relay_prefix"`

	Game Game `mapstructure:"game" yaml:"game"`
}

// Game holds the session and buzzer timing knobs.
type Game struct {
	// LetterReadTime is the reading-phase duration charged per letter of
	// question text. Zero skips the reading phase entirely.
	LetterReadTime time.Duration `mapstructure:"letter_read_time" yaml:"letter_read_time"`
	ResponseWindow time.Duration `mapstructure:"response_window" yaml:"response_window"`

	HandicapEnabled bool          `mapstructure:"handicap_enabled" yaml:"handicap_enabled"`
	HandicapDelay   time.Duration `mapstructure:"handicap_delay" yaml:"handicap_delay"`

	// ClashWindow groups near-simultaneous presses for the tie-break
	// policy; zero freezes the first processed buzz immediately.
	ClashWindow       time.Duration `mapstructure:"clash_window" yaml:"clash_window"`
	ClashUnderdogWins bool          `mapstructure:"clash_underdog_wins" yaml:"clash_underdog_wins"`

	TickInterval    time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	BuzzFlashTTL    time.Duration `mapstructure:"buzz_flash_ttl" yaml:"buzz_flash_ttl"`
	PingInterval    time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	StaleAfter      time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
	SyncInterval    time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	EvictionSweep   time.Duration `mapstructure:"eviction_sweep" yaml:"eviction_sweep"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace" yaml:"disconnect_grace"`
	TeamSweep       time.Duration `mapstructure:"team_sweep" yaml:"team_sweep"`
	EmptyTeamTTL    time.Duration `mapstructure:"empty_team_ttl" yaml:"empty_team_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "buzzdeck.db",
		RelayPrefix:       "buzzdeck",
		Game: Game{
			LetterReadTime:  60 * time.Millisecond,
			ResponseWindow:  30 * time.Second,
			HandicapEnabled: false,
			HandicapDelay:   2 * time.Second,
			ClashWindow:     0,

			TickInterval:    100 * time.Millisecond,
			BuzzFlashTTL:    500 * time.Millisecond,
			PingInterval:    5 * time.Second,
			StaleAfter:      10 * time.Second,
			SyncInterval:    5 * time.Second,
			EvictionSweep:   10 * time.Second,
			DisconnectGrace: 30 * time.Second,
			TeamSweep:       60 * time.Second,
			EmptyTeamTTL:    5 * time.Minute,
		},
	}
}

// Validate rejects configurations the hub cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.Game.TickInterval <= 0 {
		return fmt.Errorf("game.tick_interval must be positive, got %s", c.Game.TickInterval)
	}
	if c.Game.ResponseWindow <= 0 {
		return fmt.Errorf("game.response_window must be positive, got %s", c.Game.ResponseWindow)
	}
	if c.Game.PingInterval <= 0 {
		return fmt.Errorf("game.ping_interval must be positive, got %s", c.Game.PingInterval)
	}
	if c.Game.StaleAfter <= c.Game.PingInterval {
		return fmt.Errorf("game.stale_after (%s) must exceed game.ping_interval (%s)",
			c.Game.StaleAfter, c.Game.PingInterval)
	}
	if c.RelayURL != "" && c.RelayPrefix == "" {
		return errors.New("relay_prefix must be set when relay_url is configured")
	}
	return nil
}
