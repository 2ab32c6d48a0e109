package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/signalsfoundry/routing-simulator/internal/sim/controller"
)

func TestRunSimpleProfileStopsAtPacketLimit(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"-profile", "simple", "-seed", "3", "-log-level", "error"}, &out, io.Discard); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out.String(), "packets=20 ") {
		t.Fatalf("summary missing packet count:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "profile=simple") {
		t.Fatalf("summary missing profile:\n%s", out.String())
	}
}

func TestRunJSONState(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"-profile", "ring", "-ticks", "5", "-json", "-log-level", "error"}, &out, io.Discard); err != nil {
		t.Fatalf("run error: %v", err)
	}
	var st controller.State
	if err := json.Unmarshal(out.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v\n%s", err, out.String())
	}
	if st.Ticks != 5 || st.Packets != 5 {
		t.Fatalf("ticks/packets = %d/%d, want 5/5", st.Ticks, st.Packets)
	}
	if st.Running {
		t.Fatalf("state still running after bounded run")
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	args := []string{"-profile", "rich", "-ticks", "12", "-seed", "5", "-json", "-log-level", "error"}
	var first, second bytes.Buffer
	if err := run(args, &first, io.Discard); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := run(args, &second, io.Discard); err != nil {
		t.Fatalf("second run: %v", err)
	}
	var a, b controller.State
	if err := json.Unmarshal(first.Bytes(), &a); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(second.Bytes(), &b); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	a.RunID, b.RunID = "", ""
	if !a.Path.Equal(b.Path) || a.Delivered != b.Delivered || a.Scores != b.Scores {
		t.Fatalf("runs diverged: %+v vs %+v", a, b)
	}
}

func TestRunCompare(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"-profile", "ring", "-compare", "25", "-log-level", "error"}, &out, io.Discard); err != nil {
		t.Fatalf("run error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "trained 25 episodes") || !strings.Contains(got, "A → B → C") {
		t.Fatalf("unexpected compare output:\n%s", got)
	}
}

func TestRunRejectsUnknownProfile(t *testing.T) {
	if err := run([]string{"-profile", "mesh"}, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}
