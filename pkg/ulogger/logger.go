// Package ulogger provides the structured logger used across coreledger,
// wrapping zerolog and taking its level and output mode from gocore config.
package ulogger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorBlue    = 34
	colorWhite   = 37
	colorBold    = 1
)

// Logger is the interface every coreledger component depends on. Tests can
// substitute a no-op or buffering implementation without pulling in zerolog.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Wrapper adapts a zerolog.Logger to Logger, tagging every line with the
// owning service/component name the way util/logger.go tags every line with
// the process's service name.
type Wrapper struct {
	zerolog.Logger
	service string
}

// New builds a logger for service, honoring the "logLevel" and "PRETTY_LOGS"
// gocore config keys.
func New(service string, logLevel ...string) *Wrapper {
	if service == "" {
		service = "coreledger"
	}

	var w *Wrapper
	if gocore.Config().GetBool("PRETTY_LOGS", true) {
		w = prettyLogger(service)
	} else {
		w = &Wrapper{
			zerolog.New(os.Stdout).With().
				CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2).
				Timestamp().
				Logger(),
			service,
		}
	}

	if len(logLevel) > 0 {
		setLevel(logLevel[0], w)
	}

	return w
}

func setLevel(level string, w *Wrapper) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		w.Logger = w.Logger.Level(zerolog.DebugLevel)
	case "WARN":
		w.Logger = w.Logger.Level(zerolog.WarnLevel)
	case "ERROR":
		w.Logger = w.Logger.Level(zerolog.ErrorLevel)
	case "FATAL":
		w.Logger = w.Logger.Level(zerolog.FatalLevel)
	default:
		w.Logger = w.Logger.Level(zerolog.InfoLevel)
	}
}

func prettyLogger(service string) *Wrapper {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	output.FormatTimestamp = func(i interface{}) string {
		parsed, _ := time.Parse(time.RFC3339, fmt.Sprintf("%v", i))
		return parsed.Format("15:04:05")
	}

	output.FormatLevel = func(i interface{}) string {
		l := strings.ToUpper(fmt.Sprintf("%-6s", i))
		switch i {
		case "debug":
			l = colorize(l, colorBlue)
		case "info":
			l = colorize(l, colorGreen)
		case "warn":
			l = colorize(l, colorYellow)
		case "error", "fatal", "panic":
			l = colorize(l, colorRed)
		default:
			l = colorize(l, colorWhite)
		}
		return fmt.Sprintf("| %s|", l)
	}

	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-6s| %s", service, i)
	}

	output.FormatCaller = func(i interface{}) string {
		c, _ := i.(string)
		if c == "" {
			return c
		}
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, c); err == nil {
				c = rel
			}
		}
		return colorize(fmt.Sprintf("%-32s", c), colorBold)
	}

	return &Wrapper{
		zerolog.New(output).With().
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).
			Timestamp().
			Logger(),
		service,
	}
}

func (w *Wrapper) Debugf(format string, args ...interface{}) { w.Logger.Debug().Msgf(format, args...) }
func (w *Wrapper) Infof(format string, args ...interface{})  { w.Logger.Info().Msgf(format, args...) }
func (w *Wrapper) Warnf(format string, args ...interface{})  { w.Logger.Warn().Msgf(format, args...) }
func (w *Wrapper) Errorf(format string, args ...interface{}) { w.Logger.Error().Msgf(format, args...) }
func (w *Wrapper) Fatalf(format string, args ...interface{}) { w.Logger.Fatal().Msgf(format, args...) }

// With returns a child logger carrying an extra "component" field, mirroring
// how each BS/CM/KHI component identifies its own log lines.
func (w *Wrapper) With(component string) *Wrapper {
	return &Wrapper{w.Logger.With().Str("component", component).Logger(), w.service}
}

func colorize(s interface{}, c int) string {
	if os.Getenv("NO_COLOR") != "" || c == 0 {
		return fmt.Sprintf("%s", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
