// Command scgid is an SCGI template gateway: it accepts SCGI requests
// from an upstream HTTP server, executes the resolved template in an
// isolated sandbox, and writes the buffered response back over the
// same connection.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gahr/scgid/internal/acceptor"
	"github.com/gahr/scgid/internal/config"
	"github.com/gahr/scgid/internal/dispatch"
	"github.com/gahr/scgid/internal/pool"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, showHelp, err := config.Parse(args, stderr)
	if showHelp {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	if cfg.Fork {
		pid, err := daemonize(args)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, pid)
		return 0
	}

	log, err := buildLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer log.Sync()

	p := pool.New(cfg.MaxThreads, cfg.MinThreads, cfg.ThreadKeepalive, log)
	defer p.Close()

	d := dispatch.New(p, cfg, log)
	a := acceptor.New(cfg.Addr, cfg.Port, cfg.ConnKeepalive, d.Handle, log)
	if err := a.Listen(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := a.Serve(); err != nil {
		log.Error("serve loop ended", zap.Error(err))
		return 1
	}
	return 0
}

// daemonize re-execs the current binary with -fork stripped and
// reports the detached child's PID, per the CLI contract.
func daemonize(args []string) (int, error) {
	filtered := make([]string, 0, len(args))
	for _, a := range args {
		if a == "-fork" || a == "--fork" {
			continue
		}
		filtered = append(filtered, a)
	}

	cmd := exec.Command(os.Args[0], filtered...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("fork: starting child: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return 0, fmt.Errorf("fork: releasing child: %w", err)
	}
	return pid, nil
}

// buildLogger maps -verbose onto zap's development config at Debug
// level; without it the gateway logs structured JSON at Info.
func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return c.Build()
	}
	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return c.Build()
}
