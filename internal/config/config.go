package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string // json or console

	MaxTeamSize    int
	MaxMoves       int
	RosterOptions  int
	TurnTimeout    time.Duration
	ReconnectGrace time.Duration
	FinishedGrace  time.Duration
	SweepInterval  time.Duration

	CatalogPath   string
	StrictRosters bool

	DevIdentity  bool
	ServiceToken string
	Origins      []string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	ArchiveBucket          string
	ArchiveEndpoint        string
	ArchiveRegion          string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
}

// Load reads .env files when present, then the environment. Missing files are not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup. All parse errors are reported together.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	p := parser{lookup: lookup}
	c := Config{
		Addr:      p.str("ADDR", ":8080"),
		LogLevel:  p.str("LOG_LEVEL", "info"),
		LogFormat: p.str("LOG_FORMAT", "json"),

		MaxTeamSize:    p.num("MAX_TEAM_SIZE", 4),
		MaxMoves:       p.num("MAX_MOVES", 4),
		RosterOptions:  p.num("ROSTER_OPTIONS", 0),
		TurnTimeout:    p.duration("TURN_TIMEOUT", 0),
		ReconnectGrace: p.duration("RECONNECT_GRACE", 0),
		FinishedGrace:  p.duration("FINISHED_GRACE", 5*time.Minute),
		SweepInterval:  p.duration("SWEEP_INTERVAL", time.Minute),

		CatalogPath:   p.str("CATALOG_PATH", ""),
		StrictRosters: p.flag("STRICT_ROSTERS", false),

		DevIdentity:  p.flag("DEV_IDENTITY", false),
		ServiceToken: p.str("SERVICE_TOKEN", ""),
		Origins:      p.list("ALLOWED_ORIGINS"),

		StoreDriver: p.str("STORE_DRIVER", "memory"),
		DatabaseURL: p.str("DATABASE_URL", ""),
		SQLitePath:  p.str("SQLITE_PATH", "duels.db"),

		ArchiveBucket:          p.str("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:        p.str("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:          p.str("ARCHIVE_REGION", "auto"),
		ArchiveAccessKeyID:     p.str("ARCHIVE_ACCESS_KEY_ID", ""),
		ArchiveSecretAccessKey: p.str("ARCHIVE_SECRET_ACCESS_KEY", ""),
	}

	err := p.err
	if c.MaxTeamSize < 1 {
		err = multierr.Append(err, errors.New("MAX_TEAM_SIZE must be at least 1"))
	}
	if c.MaxMoves < 1 {
		err = multierr.Append(err, errors.New("MAX_MOVES must be at least 1"))
	}
	if c.SweepInterval <= 0 {
		err = multierr.Append(err, errors.New("SWEEP_INTERVAL must be positive"))
	}
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			err = multierr.Append(err, errors.New("DATABASE_URL is required for STORE_DRIVER=postgres"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("STORE_DRIVER %q: want memory, sqlite or postgres", c.StoreDriver))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		err = multierr.Append(err, fmt.Errorf("LOG_FORMAT %q: want json or console", c.LogFormat))
	}
	return c, err
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) num(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) flag(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return def
	}
	if d < 0 {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: negative duration", key))
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
