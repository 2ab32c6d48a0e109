package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/internal/sim/controller"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, "rich", cfg.Profile)
	require.Equal(t, uint64(1), cfg.Seed)
	require.Equal(t, 1.0, cfg.Speed)
	require.Equal(t, float64(UseProfileDefault), cfg.FailureRate)
	require.False(t, cfg.Tracing.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestFromLookupOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"ROUTESIM_PROFILE":          "simple",
		"ROUTESIM_SEED":             "42",
		"ROUTESIM_TICK_INTERVAL":    "250ms",
		"ROUTESIM_SPEED":            "2.5",
		"ROUTESIM_FAILURE_RATE":     "15",
		"ROUTESIM_CONGESTION_LEVEL": "40",
		"ROUTESIM_SOURCE":           "B",
		"ROUTESIM_DESTINATION":      "D",
		"ROUTESIM_STRATEGY":         "ai",
		"ROUTESIM_MAX_TICKS":        "30",
		"ROUTESIM_TRACING_ENABLED":  "true",
		"LOG_LEVEL":                 "debug",
		"LOG_FORMAT":                "json",
	}))
	require.NoError(t, err)
	require.Equal(t, "simple", cfg.Profile)
	require.Equal(t, uint64(42), cfg.Seed)
	require.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	require.Equal(t, 2.5, cfg.Speed)
	require.Equal(t, 15.0, cfg.FailureRate)
	require.Equal(t, 40.0, cfg.CongestionLevel)
	require.Equal(t, "B", cfg.Source)
	require.Equal(t, "D", cfg.Destination)
	require.Equal(t, "ai", cfg.Strategy)
	require.Equal(t, 30, cfg.MaxTicks)
	require.True(t, cfg.Tracing.Enabled)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestFromLookupRejectsBadNumbers(t *testing.T) {
	for _, key := range []string{"ROUTESIM_SEED", "ROUTESIM_TICK_INTERVAL", "ROUTESIM_SPEED", "ROUTESIM_MAX_TICKS"} {
		_, err := FromLookup(lookupFrom(map[string]string{key: "not-a-number"}))
		if err == nil {
			t.Fatalf("FromLookup with bad %s: expected error", key)
		}
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROUTESIM_ZZ_UNUSED=1\nROUTESIM_SOURCE_FILE_ONLY=x\n"), 0o600))

	vars, err := ReadEnvFile(path)
	require.NoError(t, err)
	require.Equal(t, "x", vars["ROUTESIM_SOURCE_FILE_ONLY"])

	missing, err := ReadEnvFile(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestLoadEnvironmentBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROUTESIM_DESTINATION=G\nROUTESIM_SOURCE=E\n"), 0o600))
	t.Setenv("ROUTESIM_SOURCE", "B")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "B", cfg.Source)
	require.Equal(t, "G", cfg.Destination)
}

func TestRegisterFlagsOverride(t *testing.T) {
	cfg := Default()
	cfg.Source = "E"

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-profile", "ring", "-dst", "C", "-ticks", "5", "-seed", "9"}))

	require.Equal(t, "ring", cfg.Profile)
	require.Equal(t, "E", cfg.Source)
	require.Equal(t, "C", cfg.Destination)
	require.Equal(t, 5, cfg.MaxTicks)
	require.Equal(t, uint64(9), cfg.Seed)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Profile = "mesh"
	err := cfg.Validate()
	if !errors.Is(err, controller.ErrUnknownProfile) {
		t.Fatalf("Validate() = %v, want ErrUnknownProfile", err)
	}

	cfg = Default()
	cfg.Strategy = "random"
	if err := cfg.Validate(); !errors.Is(err, controller.ErrUnknownStrategy) {
		t.Fatalf("Validate() = %v, want ErrUnknownStrategy", err)
	}

	cfg = Default()
	cfg.MaxTicks = -1
	require.Error(t, cfg.Validate())
}

func TestControllerProfileAppliesOverrides(t *testing.T) {
	cfg := Default()
	cfg.Profile = "simple"
	cfg.Source, cfg.Destination = "C", "B"
	cfg.Strategy = "adaptive"
	cfg.TickInterval = time.Second
	cfg.FailureRate = 150
	cfg.CongestionLevel = 30

	p, err := cfg.ControllerProfile()
	require.NoError(t, err)
	require.Equal(t, "simple", p.Name)
	require.Equal(t, core.NodeID("C"), p.Source)
	require.Equal(t, core.NodeID("B"), p.Destination)
	require.Equal(t, controller.Adaptive, p.Strategy)
	require.Equal(t, time.Second, p.TickInterval)
	require.Equal(t, 100.0, p.Conditions.FailureRate)
	require.Equal(t, 30.0, p.Conditions.CongestionLevel)
}

func TestControllerProfileKeepsDefaults(t *testing.T) {
	p, err := Default().ControllerProfile()
	require.NoError(t, err)
	want := controller.RichProfile()
	require.Equal(t, want.Conditions, p.Conditions)
	require.Equal(t, want.Source, p.Source)
	require.Equal(t, want.TickInterval, p.TickInterval)
}

func TestControllerProfileLoadsTopologyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line.yaml")
	body := "nodes:\n  - id: X\n  - id: Y\nlinks:\n  - from: X\n    to: Y\n    cost: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg := Default()
	cfg.TopologyFile = path
	cfg.Source, cfg.Destination = "X", "Y"

	p, err := cfg.ControllerProfile()
	require.NoError(t, err)
	require.Equal(t, "line", p.Topology.Name)
	require.Len(t, p.Topology.Nodes, 2)

	cfg.TopologyFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = cfg.ControllerProfile()
	require.Error(t, err)
}
