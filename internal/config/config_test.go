package config

import (
	"bytes"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Addr != "127.0.0.1" {
		t.Errorf("Addr = %q, want 127.0.0.1", cfg.Addr)
	}
	if cfg.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Port)
	}
	if cfg.MaxThreads != 50 {
		t.Errorf("MaxThreads = %d, want 50", cfg.MaxThreads)
	}
	if cfg.MinThreads != 1 {
		t.Errorf("MinThreads = %d, want 1", cfg.MinThreads)
	}
	if cfg.ThreadKeepalive != 60*time.Second {
		t.Errorf("ThreadKeepalive = %v, want 60s", cfg.ThreadKeepalive)
	}
	if cfg.ConnKeepalive != -1*time.Second {
		t.Errorf("ConnKeepalive = %v, want -1s", cfg.ConnKeepalive)
	}
	if cfg.HasConnTimeout() {
		t.Error("HasConnTimeout() = true for default -1 keepalive")
	}
}

func TestParseOverrides(t *testing.T) {
	var out bytes.Buffer
	cfg, help, err := Parse([]string{
		"-addr", "0.0.0.0",
		"-port", "9000",
		"-max_threads", "10",
		"-min_threads", "2",
		"-thread_keepalive", "30",
		"-conn_keepalive", "5",
		"-verbose",
	}, &out)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if help {
		t.Fatal("Parse reported ShowHelp for non-help args")
	}
	if cfg.Addr != "0.0.0.0" || cfg.Port != 9000 {
		t.Errorf("addr/port = %q:%d, want 0.0.0.0:9000", cfg.Addr, cfg.Port)
	}
	if cfg.MaxThreads != 10 || cfg.MinThreads != 2 {
		t.Errorf("thread bounds = %d/%d, want 10/2", cfg.MaxThreads, cfg.MinThreads)
	}
	if cfg.ThreadKeepalive != 30*time.Second {
		t.Errorf("ThreadKeepalive = %v, want 30s", cfg.ThreadKeepalive)
	}
	if !cfg.HasConnTimeout() {
		t.Error("HasConnTimeout() = false after setting conn_keepalive=5")
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true")
	}
}

func TestParseHelp(t *testing.T) {
	var out bytes.Buffer
	_, help, err := Parse([]string{"-help"}, &out)
	if err != nil {
		t.Fatalf("Parse returned error for -help: %v", err)
	}
	if !help {
		t.Fatal("Parse did not report ShowHelp for -help")
	}

	_, help, err = Parse([]string{"-?"}, &out)
	if err != nil {
		t.Fatalf("Parse returned error for -?: %v", err)
	}
	if !help {
		t.Fatal("Parse did not report ShowHelp for -?")
	}
}

func TestParseBadFlag(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-no-such-flag"}, &out)
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestValidateThreadBounds(t *testing.T) {
	cfg := Default()
	cfg.MinThreads = cfg.MaxThreads + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when min_threads > max_threads")
	}
}

func TestValidateMaxThreadsBelowOne(t *testing.T) {
	cfg := Default()
	cfg.MaxThreads = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_threads < 1")
	}
}

func TestValidatePortRange(t *testing.T) {
	cfg := Default()
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
