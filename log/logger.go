// Package log sets up the zerolog loggers shared by the command-line tools.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerType selects the output format of the root logger.
type LoggerType uint8

// Logger types.
const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

// Component loggers. They discard everything until Init is called.
var (
	Root    = zerolog.Nop()
	Alloc   = zerolog.Nop()
	EncTree = zerolog.Nop()
	Loader  = zerolog.Nop()
	CLI     = zerolog.Nop()
)

// Options for Init.
type Options struct {
	// Minimum level, default Info
	LogLevel zerolog.Level
	Type     LoggerType
	// Output defaults to stderr so reports on stdout stay clean.
	Output io.Writer
}

// ParseLogLevel converts a level name such as "debug" to a zerolog level.
func ParseLogLevel(loglevel string) (zerolog.Level, error) {
	return zerolog.ParseLevel(loglevel)
}

// ParseLoggerType accepts "console" and "json".
func ParseLoggerType(name string) (LoggerType, error) {
	switch strings.ToLower(name) {
	case "console", "":
		return ConsoleLogger, nil
	case "json":
		return JSONLogger, nil
	}
	return ConsoleLogger, fmt.Errorf("unknown log format %q", name)
}

// Init creates the root logger and the component loggers derived from it.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch opts.Type {
	case ConsoleLogger:
		Root = zerolog.New(newConsoleWriter(out)).Level(opts.LogLevel).
			With().Timestamp().Logger()
	default:
		Root = zerolog.New(out).Level(opts.LogLevel).
			With().Timestamp().Logger()
	}

	Alloc = Root.With().Str("component", "alloc").Logger()
	EncTree = Root.With().Str("component", "enctree").Logger()
	Loader = Root.With().Str("component", "loader").Logger()
	CLI = Root.With().Str("component", "cli").Logger()
}

// Configure parses a level and a format name and calls Init.
func Configure(level, format string, out io.Writer) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	t, err := ParseLoggerType(format)
	if err != nil {
		return err
	}
	Init(Options{LogLevel: lvl, Type: t, Output: out})
	return nil
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}

	cw.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s |", i)
	}

	cw.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s=", i)
	}

	cw.FormatErrFieldValue = func(i interface{}) string {
		return fmt.Sprintf(" %s |", i)
	}
	return cw
}
