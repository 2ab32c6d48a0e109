package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "controller")).Info(context.Background(), "tick",
		Int("packets", 3), Bool("delivered", true), Float64("latency", 21.5), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "tick" || rec["component"] != "controller" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["packets"] != float64(3) || rec["delivered"] != true || rec["latency"] != 21.5 {
		t.Fatalf("unexpected typed fields: %v", rec)
	}
	if rec["error"] != "boom" {
		t.Fatalf("error field = %v, want boom", rec["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "text", Output: &buf})

	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	log.Warn(context.Background(), "shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("warn not logged: %q", buf.String())
	}
}

func TestZapLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewZap(zap.New(core)).With(String("run_id", "r1"))

	log.Warn(context.Background(), "fallback", String("source", "A"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Message != "fallback" || ctx["run_id"] != "r1" || ctx["source"] != "A" {
		t.Fatalf("unexpected entry: %+v %v", entries[0], ctx)
	}
}

func TestRequestIDIsUUID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a UUID: %v", id, err)
	}
	if _, again := EnsureRequestID(ctx); again != id {
		t.Fatalf("EnsureRequestID replaced existing id %q with %q", id, again)
	}
	if LoggerFromContext(ContextWithLogger(ctx, nil)) == nil {
		t.Fatalf("ContextWithLogger(nil) should store a noop logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		" error ": LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNoopAndNilContext(t *testing.T) {
	Noop().With(String("k", "v")).Error(context.Background(), "dropped")

	var buf bytes.Buffer
	log := New(Config{Format: "text", Output: &buf})
	var ctx context.Context
	log.Info(ctx, "no context")
	if !bytes.Contains(buf.Bytes(), []byte("no context")) {
		t.Fatalf("message missing: %q", buf.String())
	}
	if RequestIDFromContext(ctx) != "" || LoggerFromContext(ctx) != nil {
		t.Fatalf("nil context should carry nothing")
	}
}
