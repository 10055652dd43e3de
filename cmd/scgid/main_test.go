package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunHelpExitsZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-help"}, &stdout, &stderr); code != 0 {
		t.Fatalf("run(-help) = %d, want 0", code)
	}
	if !strings.Contains(stderr.String(), "addr") {
		t.Fatalf("expected usage text, got %q", stderr.String())
	}
}

func TestRunBadFlagExitsNonZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-no_such_flag"}, &stdout, &stderr); code == 0 {
		t.Fatal("run with unknown flag must exit non-zero")
	}
}

func TestRunBadValueExitsNonZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-max_threads", "0"}, &stdout, &stderr); code == 0 {
		t.Fatal("run with max_threads=0 must exit non-zero")
	}
	if !strings.Contains(stderr.String(), "max_threads") {
		t.Fatalf("expected validation error naming max_threads, got %q", stderr.String())
	}
}

func TestBuildLoggerBothLevels(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		log, err := buildLogger(verbose)
		if err != nil {
			t.Fatalf("buildLogger(%v): %v", verbose, err)
		}
		log.Sync()
	}
}
