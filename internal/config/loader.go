package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "BUZZDECK_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("relay_url", cfg.RelayURL)
	v.SetDefault("relay_prefix", cfg.RelayPrefix)
	v.SetDefault("game.letter_read_time", cfg.Game.LetterReadTime)
	v.SetDefault("game.response_window", cfg.Game.ResponseWindow)
	v.SetDefault("game.handicap_enabled", cfg.Game.HandicapEnabled)
	v.SetDefault("game.handicap_delay", cfg.Game.HandicapDelay)
	v.SetDefault("game.clash_window", cfg.Game.ClashWindow)
	v.SetDefault("game.clash_underdog_wins", cfg.Game.ClashUnderdogWins)
	v.SetDefault("game.tick_interval", cfg.Game.TickInterval)
	v.SetDefault("game.buzz_flash_ttl", cfg.Game.BuzzFlashTTL)
	v.SetDefault("game.ping_interval", cfg.Game.PingInterval)
	v.SetDefault("game.stale_after", cfg.Game.StaleAfter)
	v.SetDefault("game.sync_interval", cfg.Game.SyncInterval)
	v.SetDefault("game.eviction_sweep", cfg.Game.EvictionSweep)
	v.SetDefault("game.disconnect_grace", cfg.Game.DisconnectGrace)
	v.SetDefault("game.team_sweep", cfg.Game.TeamSweep)
	v.SetDefault("game.empty_team_ttl", cfg.Game.EmptyTeamTTL)

	v.SetEnvPrefix("BUZZDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
