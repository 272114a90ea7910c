// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Profile selects logging defaults.
type Profile string

const (
	ProfileRuntime Profile = "runtime"
	ProfileTest    Profile = "test"
)

const (
	EnvLevel     = "PKGSYNC_LOG_LEVEL"
	EnvTimestamp = "PKGSYNC_LOG_TIMESTAMP"
	EnvNoColor   = "PKGSYNC_LOG_NOCOLOR"
)

// Options controls logger construction. Zero values take the profile default.
type Options struct {
	Profile   Profile
	Level     string
	Timestamp *bool
	NoColor   bool
	Out       io.Writer
}

var once sync.Once

// Configure installs the global logger exactly once and returns it. Later
// calls return the installed logger unchanged.
func Configure(app string, opts Options) zerolog.Logger {
	once.Do(func() {
		log.Logger = New(app, opts)
		zerolog.SetGlobalLevel(log.Logger.GetLevel())
	})
	return log.Logger
}

// New builds a logger without touching global state.
func New(app string, opts Options) zerolog.Logger {
	opts = withEnv(withDefaults(opts))

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(writer(opts)).Level(level).With()
	if opts.Timestamp != nil && *opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger()
}

func withDefaults(opts Options) Options {
	if opts.Profile == "" {
		opts.Profile = ProfileRuntime
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	switch opts.Profile {
	case ProfileTest:
		if opts.Level == "" {
			opts.Level = "warn"
		}
		if opts.Timestamp == nil {
			opts.Timestamp = boolPtr(false)
		}
		opts.NoColor = true
	default:
		if opts.Level == "" {
			opts.Level = "info"
		}
		if opts.Timestamp == nil {
			opts.Timestamp = boolPtr(true)
		}
	}
	return opts
}

func withEnv(opts Options) Options {
	if v := strings.TrimSpace(os.Getenv(EnvLevel)); v != "" {
		opts.Level = v
	}
	if v, ok := envBool(EnvTimestamp); ok {
		opts.Timestamp = &v
	}
	if v, ok := envBool(EnvNoColor); ok {
		opts.NoColor = v
	}
	return opts
}

func writer(opts Options) io.Writer {
	f, ok := opts.Out.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return opts.Out
	}
	return zerolog.ConsoleWriter{
		Out:        opts.Out,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	}
}

func envBool(key string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func boolPtr(v bool) *bool { return &v }
