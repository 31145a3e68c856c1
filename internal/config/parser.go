package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spootnik/unklog/pkg/errors"
)

// Parse reads and parses the configuration file at path.  Any grammar or
// semantic error is a config error; the caller treats it as fatal.
func Parse(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeConfig, "cannot open config %q", path)
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader parses configuration directives from r.
func ParseReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		if err := cfg.parseLine(sc.Text()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeConfig, "line %d", lineno)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfig, "cannot read config")
	}
	return cfg, nil
}

func isSep(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r'
}

func (c *Config) parseLine(line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimLeftFunc(line, isSep)
	line = strings.TrimRightFunc(line, isSep)
	if line == "" {
		return nil
	}

	tokens := strings.FieldsFunc(line, isSep)
	if len(tokens) > MaxTokens {
		return errors.New(errors.ErrCodeConfig, "too many arguments")
	}

	// The raw remainder from the second token onward is preserved for the
	// exec output, which hands it to the shell as-is.
	cmdline := ""
	if len(tokens) > 1 {
		rest := line[len(tokens[0]):]
		cmdline = strings.TrimLeftFunc(rest, isSep)
	}

	directive := strings.ToLower(tokens[0])
	args := tokens[1:]
	switch directive {
	case "input":
		return c.applyInput(args, cmdline)
	case "output":
		return c.applyOutput(args, cmdline)
	case "log":
		return c.applyLog(args)
	case "stats":
		return c.applyListen(&c.Stats, args, DefaultStatsHost, DefaultStatsPort)
	case "prometheus":
		return c.applyListen(&c.Prometheus, args, DefaultPromHost, DefaultPromPort)
	}
	return errors.Newf(errors.ErrCodeConfig, "unknown directive %q", tokens[0])
}

func parseOptions(args []string) ([]Option, error) {
	opts := make([]Option, 0, len(args))
	for _, a := range args {
		key, val := a, ""
		if i := strings.IndexByte(a, '='); i >= 0 {
			key, val = a[:i], a[i+1:]
		}
		if len(key) > KeyMax {
			return nil, errors.Newf(errors.ErrCodeConfig, "option key too long: %q", key)
		}
		if len(val) > ValMax {
			return nil, errors.Newf(errors.ErrCodeConfig, "option value too long for key %q", key)
		}
		opts = append(opts, Option{Key: key, Val: val})
	}
	return opts, nil
}

func (c *Config) applyInput(args []string, cmdline string) error {
	if len(args) < 1 {
		return errors.New(errors.ErrCodeConfig, "missing arguments for input")
	}
	if !strings.EqualFold(args[0], "kafka") {
		return errors.Newf(errors.ErrCodeConfig, "unsupported input kind %q", args[0])
	}
	opts, err := parseOptions(args[1:])
	if err != nil {
		return err
	}
	c.Inputs = append(c.Inputs, DriverSpec{Kind: "kafka", Options: opts, Cmdline: cmdline})
	return nil
}

func (c *Config) applyOutput(args []string, cmdline string) error {
	if len(args) < 1 {
		return errors.New(errors.ErrCodeConfig, "missing arguments for output")
	}
	kind := strings.ToLower(args[0])
	switch kind {
	case "elasticsearch", "exec":
	default:
		return errors.Newf(errors.ErrCodeConfig, "unsupported output kind %q", args[0])
	}
	opts, err := parseOptions(args[1:])
	if err != nil {
		return err
	}
	c.Outputs = append(c.Outputs, DriverSpec{Kind: kind, Options: opts, Cmdline: cmdline})
	return nil
}

func (c *Config) applyLog(args []string) error {
	if len(args) < 2 {
		return errors.New(errors.ErrCodeConfig, "missing arguments for log")
	}
	level := strings.ToLower(args[0])
	if !ValidLevel(level) {
		return errors.Newf(errors.ErrCodeConfig, "invalid log level %q", args[0])
	}
	c.Log = LogSpec{Present: true, Level: level, Path: args[1]}
	return nil
}

func (c *Config) applyListen(dst *ListenSpec, args []string, host string, port int) error {
	dst.Enabled = true
	dst.Host = host
	dst.Port = port
	if len(args) >= 1 {
		dst.Host = args[0]
	}
	if len(args) >= 2 {
		p, err := strconv.Atoi(args[1])
		if err != nil || p < 0 || p > 65535 {
			return errors.Newf(errors.ErrCodeConfig, "invalid port %q", args[1])
		}
		dst.Port = p
	}
	return nil
}

// Serialize renders the configuration back into directive lines.  Parsing
// the result yields a Config with the same logical inputs, outputs, and
// option order.
func (c *Config) Serialize() string {
	var b strings.Builder
	if c.Log.Present {
		b.WriteString("log " + c.Log.Level + " " + c.Log.Path + "\n")
	}
	if c.Stats.Enabled {
		b.WriteString("stats " + c.Stats.Host + " " + strconv.Itoa(c.Stats.Port) + "\n")
	}
	if c.Prometheus.Enabled {
		b.WriteString("prometheus " + c.Prometheus.Host + " " + strconv.Itoa(c.Prometheus.Port) + "\n")
	}
	for _, in := range c.Inputs {
		b.WriteString("input " + specBody(in) + "\n")
	}
	for _, out := range c.Outputs {
		b.WriteString("output " + specBody(out) + "\n")
	}
	return b.String()
}

func specBody(s DriverSpec) string {
	if s.Cmdline != "" {
		return s.Cmdline
	}
	parts := []string{s.Kind}
	for _, o := range s.Options {
		parts = append(parts, o.Key+"="+o.Val)
	}
	return strings.Join(parts, " ")
}
