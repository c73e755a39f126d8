// Package config loads phrasebook settings from defaults, an optional YAML
// file, PHRASEBOOK_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables before they are mapped to
// keys. A double underscore separates key levels: PHRASEBOOK_STORE__PATH.
const EnvPrefix = "PHRASEBOOK_"

// Config holds all phrasebook configuration.
type Config struct {
	Store    StoreConfig    `koanf:"store"`
	Log      LogConfig      `koanf:"log"`
	Sessions SessionsConfig `koanf:"sessions"`
	Playback PlaybackConfig `koanf:"playback"`
	Backup   BackupConfig   `koanf:"backup"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path        string        `koanf:"path" validate:"required"`
	BusyTimeout time.Duration `koanf:"busy_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// SessionsConfig bounds the session log embedded in each card. Sessions past
// MaxPerCard are moved to the archive, oldest first.
type SessionsConfig struct {
	MaxPerCard int `koanf:"max_per_card" validate:"min=1"`
}

type PlaybackConfig struct {
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
}

// BackupConfig configures the git export written by the backup command.
type BackupConfig struct {
	Dir         string `koanf:"dir" validate:"required"`
	AuthorName  string `koanf:"author_name" validate:"required"`
	AuthorEmail string `koanf:"author_email" validate:"required,email"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Path:        "phrasebook.db",
			BusyTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Sessions: SessionsConfig{
			MaxPerCard: 500,
		},
		Playback: PlaybackConfig{
			PollInterval: 250 * time.Millisecond,
		},
		Backup: BackupConfig{
			Dir:         "phrasebook-backup",
			AuthorName:  "phrasebook",
			AuthorEmail: "phrasebook@localhost",
		},
	}
}

// RegisterFlags adds a flag for every key to fs. Flag names are the koanf
// keys so posflag can map them without a callback.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML config file")
	fs.String("store.path", d.Store.Path, "Path to the SQLite database file")
	fs.Duration("store.busy_timeout", d.Store.BusyTimeout, "How long SQLite waits on a locked database")
	fs.String("log.level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log.format", d.Log.Format, "Log format: json or console")
	fs.Int("sessions.max_per_card", d.Sessions.MaxPerCard, "Sessions kept on a card before older ones are archived")
	fs.Duration("playback.poll_interval", d.Playback.PollInterval, "Position sampling interval for headless playback")
	fs.String("backup.dir", d.Backup.Dir, "Directory of the git repository backups are committed to")
	fs.String("backup.author_name", d.Backup.AuthorName, "Commit author name for backups")
	fs.String("backup.author_email", d.Backup.AuthorEmail, "Commit author email for backups")
}

// Load builds the configuration. fs may be nil, in which case only the file
// named by PHRASEBOOK_CONFIG and the environment are consulted.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path := os.Getenv(EnvPrefix + "CONFIG")
	if fs != nil {
		if p, err := fs.GetString("config"); err == nil && p != "" {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if fs != nil {
		// Unchanged flags only fill keys no earlier layer set.
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to read flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
