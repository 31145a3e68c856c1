// Package config parses the daemon's directive configuration file.  The
// grammar is line-oriented: '#' starts a comment, blank lines are skipped,
// tokens are separated by spaces, tabs, or carriage returns, and the first
// token of a line names the directive.
package config

import (
	"strings"

	"github.com/spootnik/unklog/pkg/errors"
)

const (
	// DefaultPath is the config file read when -c is not given.
	DefaultPath = "/etc/unklog.conf"

	// DefaultStatsHost and DefaultStatsPort locate the metrics TCP endpoint
	// when the stats directive carries no arguments.
	DefaultStatsHost = "localhost"
	DefaultStatsPort = 6789

	// DefaultPromHost and DefaultPromPort locate the Prometheus exporter
	// when the prometheus directive carries no arguments.
	DefaultPromHost = "localhost"
	DefaultPromPort = 9100

	// MaxTokens bounds the number of whitespace-separated tokens per line.
	MaxTokens = 10

	// KeyMax and ValMax bound the two halves of a key=val option.
	KeyMax = 64
	ValMax = 512
)

// Option is one key=val pair attached to an input or output directive.  The
// key is everything up to the first '='; the value everything after it.
// Options keep their file order; a driver decides whether later keys win.
type Option struct {
	Key string
	Val string
}

// Get returns the value of the first option with the given key.
func Get(opts []Option, key string) (string, bool) {
	for _, o := range opts {
		if strings.EqualFold(o.Key, key) {
			return o.Val, true
		}
	}
	return "", false
}

// DriverSpec describes one input or output directive.
type DriverSpec struct {
	// Kind is the driver kind token (e.g. "kafka", "elasticsearch", "exec").
	Kind string
	// Options are the key=val arguments in file order.
	Options []Option
	// Cmdline preserves the raw directive line from its second token onward.
	// The exec output driver hands it to the shell verbatim.
	Cmdline string
}

// LogSpec carries the log directive.  Ignored when the CLI supplied -d or -l.
type LogSpec struct {
	Present bool
	Level   string
	Path    string
}

// ListenSpec carries the stats and prometheus directives.
type ListenSpec struct {
	Enabled bool
	Host    string
	Port    int
}

// Config is the parsed configuration.  Inputs and Outputs keep registration
// order; the dispatcher fans out to outputs in this order.
type Config struct {
	Inputs     []DriverSpec
	Outputs    []DriverSpec
	Log        LogSpec
	Stats      ListenSpec
	Prometheus ListenSpec
}

// ValidLevel reports whether s is an accepted log level name.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "trace", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// Validate re-checks the input and output kinds and the log level, as the
// parser does.  Option lengths and port ranges are not checked.  It exists
// for callers that build a Config programmatically.
func (c *Config) Validate() error {
	for _, in := range c.Inputs {
		if !strings.EqualFold(in.Kind, "kafka") {
			return errors.Newf(errors.ErrCodeConfig, "unsupported input kind %q", in.Kind)
		}
	}
	for _, out := range c.Outputs {
		switch strings.ToLower(out.Kind) {
		case "elasticsearch", "exec":
		default:
			return errors.Newf(errors.ErrCodeConfig, "unsupported output kind %q", out.Kind)
		}
	}
	if c.Log.Present && !ValidLevel(c.Log.Level) {
		return errors.Newf(errors.ErrCodeConfig, "invalid log level %q", c.Log.Level)
	}
	return nil
}
