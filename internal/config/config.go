// Package config defines the gateway's immutable configuration and the
// command-line flags that populate it.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"
)

// Sentinel error kinds, wrapped with context before being returned.
var (
	ErrBadFlag  = errors.New("config: bad flag")
	ErrBadValue = errors.New("config: bad value")
)

func wrap(kind error, msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", kind, msg, err)
}

// Config holds the gateway's startup configuration. Zero-value Config is
// not valid; use Default() then override fields, or Parse() a flag set.
type Config struct {
	Addr string
	Port int

	// ScriptPath overrides the template base directory. Empty means derive
	// it from the request's DOCUMENT_ROOT header at request time.
	ScriptPath string

	Fork bool

	MaxThreads      int
	MinThreads      int
	ThreadKeepalive time.Duration
	ConnKeepalive   time.Duration // < 0 means no idle timeout

	// RequestTimeout bounds a single request's sandbox execution.
	// Zero disables it; template execution is then unbounded.
	RequestTimeout time.Duration

	// EmitContentLength opts into setting Content-length on responses,
	// which is suppressed by default.
	EmitContentLength bool

	Verbose bool
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Addr:            "127.0.0.1",
		Port:            4000,
		MaxThreads:      50,
		MinThreads:      1,
		ThreadKeepalive: 60 * time.Second,
		ConnKeepalive:   -1 * time.Second,
	}
}

// Parse builds a Config from command-line arguments. The boolean result
// is true when usage was requested, so the caller can exit 0 rather
// than treating it as a flag error.
func Parse(args []string, out io.Writer) (*Config, bool, error) {
	cfg := Default()
	fs := flag.NewFlagSet("scgid", flag.ContinueOnError)
	fs.SetOutput(out)

	help := fs.Bool("help", false, "show usage and exit")
	helpShort := fs.Bool("?", false, "show usage and exit (alias for -help)")

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.ScriptPath, "path", cfg.ScriptPath, "template base directory (empty: derive from DOCUMENT_ROOT)")
	fs.BoolVar(&cfg.Fork, "fork", cfg.Fork, "daemonize: re-exec self, print child PID, exit")
	fs.IntVar(&cfg.MaxThreads, "max_threads", cfg.MaxThreads, "maximum concurrent workers")
	fs.IntVar(&cfg.MinThreads, "min_threads", cfg.MinThreads, "minimum idle workers kept alive")

	var threadKeepaliveSecs, connKeepaliveSecs, requestTimeoutSecs int
	threadKeepaliveSecs = int(cfg.ThreadKeepalive / time.Second)
	connKeepaliveSecs = int(cfg.ConnKeepalive / time.Second)
	fs.IntVar(&threadKeepaliveSecs, "thread_keepalive", threadKeepaliveSecs, "seconds an idle worker is kept before reaping")
	fs.IntVar(&connKeepaliveSecs, "conn_keepalive", connKeepaliveSecs, "seconds of connection idle time before close (-1: no timeout)")
	fs.IntVar(&requestTimeoutSecs, "request_timeout", requestTimeoutSecs, "seconds before an in-flight request is aborted (0: disabled)")
	fs.BoolVar(&cfg.EmitContentLength, "emit_content_length", cfg.EmitContentLength, "set Content-length on responses")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable verbose logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, wrap(ErrBadFlag, "parsing arguments", err)
	}

	cfg.ThreadKeepalive = time.Duration(threadKeepaliveSecs) * time.Second
	cfg.ConnKeepalive = time.Duration(connKeepaliveSecs) * time.Second
	cfg.RequestTimeout = time.Duration(requestTimeoutSecs) * time.Second

	if *help || *helpShort {
		fs.Usage()
		return nil, true, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	return cfg, false, nil
}

// Validate checks the configuration invariants: MinThreads <=
// MaxThreads, MaxThreads >= 1, MinThreads >= 0, and non-negative keepalive/timeout
// values (ConnKeepalive's documented sentinel of -1 is the sole
// exception).
func (c *Config) Validate() error {
	if c.MaxThreads < 1 {
		return wrap(ErrBadValue, "max_threads must be >= 1", fmt.Errorf("got %d", c.MaxThreads))
	}
	if c.MinThreads < 0 {
		return wrap(ErrBadValue, "min_threads must be >= 0", fmt.Errorf("got %d", c.MinThreads))
	}
	if c.MinThreads > c.MaxThreads {
		return wrap(ErrBadValue, "min_threads must be <= max_threads", fmt.Errorf("min=%d max=%d", c.MinThreads, c.MaxThreads))
	}
	if c.ThreadKeepalive < 0 {
		return wrap(ErrBadValue, "thread_keepalive must be >= 0", fmt.Errorf("got %s", c.ThreadKeepalive))
	}
	if c.ConnKeepalive < -1*time.Second {
		return wrap(ErrBadValue, "conn_keepalive must be >= -1", fmt.Errorf("got %s", c.ConnKeepalive))
	}
	if c.RequestTimeout < 0 {
		return wrap(ErrBadValue, "request_timeout must be >= 0", fmt.Errorf("got %s", c.RequestTimeout))
	}
	if c.Port < 0 || c.Port > 65535 {
		return wrap(ErrBadValue, "port out of range", fmt.Errorf("got %d", c.Port))
	}
	return nil
}

// HasConnTimeout reports whether the connection idle timeout is active.
// Negative ConnKeepalive disables it.
func (c *Config) HasConnTimeout() bool {
	return c.ConnKeepalive >= 0
}
