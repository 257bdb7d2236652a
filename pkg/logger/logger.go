// Package logger owns the process-wide zerolog logger.
//
// Call Init once from main; packages that cannot take a logger argument use Get.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
)

const defaultMaxAge = 7 * 24 * time.Hour

type Options struct {
	// Level is one of trace, debug, info, warn, error. Anything else means info.
	Level string
	// Pretty switches to coloured console output for local development.
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// FilePath also writes JSON lines to a daily rotated FilePath.YYYYMMDD,
	// with FilePath symlinked to the current file.
	FilePath string
	// MaxAge is how long rotated files are kept. Defaults to 7 days.
	MaxAge time.Duration
}

var (
	mu          sync.Mutex
	once        sync.Once
	instance    zerolog.Logger
	initialized bool
)

// Init builds the logger on first call and returns it; later calls return
// the existing logger unchanged.
func Init(opts Options) zerolog.Logger {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		lvl := parseLevel(opts.Level)
		zerolog.SetGlobalLevel(lvl)

		out, fileErr := writer(opts)
		l := zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger()
		if fileErr != nil {
			l.Warn().Err(fileErr).Str("path", opts.FilePath).Msg("file logging disabled")
		}

		mu.Lock()
		instance, initialized = l, true
		mu.Unlock()
	})
	return Get()
}

func writer(opts Options) (io.Writer, error) {
	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if opts.FilePath == "" {
		return out, nil
	}

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	file, err := rotatelogs.New(
		opts.FilePath+".%Y%m%d",
		rotatelogs.WithLinkName(opts.FilePath),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return out, err
	}
	return zerolog.MultiLevelWriter(out, file), nil
}

// Get returns the logger built by Init and panics before that.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		panic("logger: Get() called before Init()")
	}
	return instance
}

// Reset forgets the current logger so tests can Init again.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	once = sync.Once{}
	instance = zerolog.Logger{}
	initialized = false
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
