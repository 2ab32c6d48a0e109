// Package config gathers runtime settings for the routing simulator binaries.
//
// Values are layered: built-in defaults, then an optional .env file, then
// ROUTESIM_* environment variables, then command-line flags.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/internal/logging"
	"github.com/signalsfoundry/routing-simulator/internal/observability"
	"github.com/signalsfoundry/routing-simulator/internal/sim/controller"
)

// UseProfileDefault marks a percentage field that should keep the value the
// selected profile carries.
const UseProfileDefault = -1

// Config is the full set of runtime knobs.
type Config struct {
	Profile      string
	TopologyFile string
	Seed         uint64

	// TickInterval overrides the profile's tick period when positive.
	TickInterval time.Duration
	Speed        float64

	// FailureRate and CongestionLevel are percentages. UseProfileDefault
	// keeps the profile's value.
	FailureRate     float64
	CongestionLevel float64

	Source      string
	Destination string
	Strategy    string

	GRPCAddr    string
	MetricsAddr string

	// MaxTicks bounds headless runs. Zero means run until stopped.
	MaxTicks int

	Log     logging.Config
	Tracing observability.TracingConfig
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Profile:         "rich",
		Seed:            1,
		Speed:           1,
		FailureRate:     UseProfileDefault,
		CongestionLevel: UseProfileDefault,
		GRPCAddr:        ":50061",
		MetricsAddr:     ":9464",
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.TracingConfigFromLookup(func(string) (string, bool) { return "", false }),
	}
}

// Load reads envFile (when it exists) and the process environment on top
// of the defaults. A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	fileVars, err := ReadEnvFile(envFile)
	if err != nil {
		return Config{}, err
	}
	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	})
}

// ReadEnvFile parses a .env file without touching the process environment.
func ReadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "stat env file %s", path)
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read env file %s", path)
	}
	return vars, nil
}

// FromLookup builds a Config from defaults overlaid with the variables
// lookup reports.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("ROUTESIM_PROFILE"); ok {
		cfg.Profile = v
	}
	if v, ok := get("ROUTESIM_TOPOLOGY_FILE"); ok {
		cfg.TopologyFile = v
	}
	if v, ok := get("ROUTESIM_SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse ROUTESIM_SEED %q", v)
		}
		cfg.Seed = seed
	}
	if v, ok := get("ROUTESIM_TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse ROUTESIM_TICK_INTERVAL %q", v)
		}
		cfg.TickInterval = d
	}
	for key, dst := range map[string]*float64{
		"ROUTESIM_SPEED":            &cfg.Speed,
		"ROUTESIM_FAILURE_RATE":     &cfg.FailureRate,
		"ROUTESIM_CONGESTION_LEVEL": &cfg.CongestionLevel,
	} {
		v, ok := get(key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse %s %q", key, v)
		}
		*dst = f
	}
	if v, ok := get("ROUTESIM_SOURCE"); ok {
		cfg.Source = v
	}
	if v, ok := get("ROUTESIM_DESTINATION"); ok {
		cfg.Destination = v
	}
	if v, ok := get("ROUTESIM_STRATEGY"); ok {
		cfg.Strategy = v
	}
	if v, ok := get("ROUTESIM_GRPC_ADDR"); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := get("ROUTESIM_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := get("ROUTESIM_MAX_TICKS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse ROUTESIM_MAX_TICKS %q", v)
		}
		cfg.MaxTicks = n
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	cfg.Tracing = observability.TracingConfigFromLookup(lookup)
	return cfg, nil
}

// RegisterFlags binds every setting to fs, using the current values as
// flag defaults so flags override whatever was loaded before.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Profile, "profile", c.Profile, "simulation profile: "+strings.Join(controller.Profiles(), ", "))
	fs.StringVar(&c.TopologyFile, "topology", c.TopologyFile, "optional JSON or YAML topology file replacing the profile topology")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed for link conditions and exploration")
	fs.DurationVar(&c.TickInterval, "tick", c.TickInterval, "tick period at speed 1 (0 keeps the profile default)")
	fs.Float64Var(&c.Speed, "speed", c.Speed, "simulation speed multiplier, clamped to [0.1, 10]")
	fs.Float64Var(&c.FailureRate, "failure-rate", c.FailureRate, "link failure rate percentage (-1 keeps the profile default)")
	fs.Float64Var(&c.CongestionLevel, "congestion", c.CongestionLevel, "congestion level percentage (-1 keeps the profile default)")
	fs.StringVar(&c.Source, "src", c.Source, "source node (empty keeps the profile default)")
	fs.StringVar(&c.Destination, "dst", c.Destination, "destination node (empty keeps the profile default)")
	fs.StringVar(&c.Strategy, "strategy", c.Strategy, "active strategy: traditional or adaptive")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "control plane gRPC listen address")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus /metrics listen address (empty disables)")
	fs.IntVar(&c.MaxTicks, "ticks", c.MaxTicks, "number of ticks to run (0 means until stopped)")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level: debug, info, warn, error")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format: text, json, zap, zap-dev")
}

// Validate rejects settings that cannot be clamped into range.
func (c Config) Validate() error {
	if _, err := controller.ProfileByName(c.Profile); err != nil {
		return errors.Wrap(err, "validate profile")
	}
	if c.Strategy != "" {
		if _, err := controller.ParseStrategy(c.Strategy); err != nil {
			return errors.Wrap(err, "validate strategy")
		}
	}
	if c.TickInterval < 0 {
		return errors.Errorf("tick interval must be non-negative, got %s", c.TickInterval)
	}
	if c.MaxTicks < 0 {
		return errors.Errorf("max ticks must be non-negative, got %d", c.MaxTicks)
	}
	return nil
}

// ControllerProfile resolves the named profile and applies the overrides.
func (c Config) ControllerProfile() (controller.Profile, error) {
	if err := c.Validate(); err != nil {
		return controller.Profile{}, err
	}
	p, err := controller.ProfileByName(c.Profile)
	if err != nil {
		return controller.Profile{}, errors.Wrap(err, "resolve profile")
	}
	if c.TopologyFile != "" {
		topo, err := core.LoadTopologyFile(c.TopologyFile)
		if err != nil {
			return controller.Profile{}, errors.Wrapf(err, "load topology %s", c.TopologyFile)
		}
		p.Topology = *topo
	}
	if c.Source != "" {
		p.Source = core.NodeID(c.Source)
	}
	if c.Destination != "" {
		p.Destination = core.NodeID(c.Destination)
	}
	if c.Strategy != "" {
		s, _ := controller.ParseStrategy(c.Strategy)
		p.Strategy = s
	}
	if c.TickInterval > 0 {
		p.TickInterval = c.TickInterval
	}
	if c.FailureRate >= 0 {
		p.Conditions.FailureRate = core.ClampPercent(c.FailureRate)
	}
	if c.CongestionLevel >= 0 {
		p.Conditions.CongestionLevel = core.ClampPercent(c.CongestionLevel)
	}
	return p, nil
}
