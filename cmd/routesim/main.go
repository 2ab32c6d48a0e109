// Command routesim runs the routing simulator headless: either a bounded
// number of ticks or a training-then-compare pass, printing a summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/signalsfoundry/routing-simulator/internal/config"
	"github.com/signalsfoundry/routing-simulator/internal/logging"
	"github.com/signalsfoundry/routing-simulator/internal/observability"
	"github.com/signalsfoundry/routing-simulator/internal/sim/controller"
	"github.com/signalsfoundry/routing-simulator/timectrl"
)

// defaultHeadlessTicks bounds runs whose profile has no packet limit.
const defaultHeadlessTicks = 50

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "routesim:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	envFile := os.Getenv("ROUTESIM_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("routesim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.RegisterFlags(fs)
	compare := fs.Int("compare", 0, "train for N episodes and compare strategies instead of ticking")
	realtime := fs.Bool("realtime", false, "pace ticks at the profile interval instead of running back to back")
	asJSON := fs.Bool("json", false, "print the final state (or comparison) as JSON")
	verbose := fs.Bool("v", false, "print one line per tick")
	if err := fs.Parse(args); err != nil {
		return err
	}

	profile, err := cfg.ControllerProfile()
	if err != nil {
		return err
	}

	cfg.Log.Output = stderr
	log := logging.New(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	ctrl, err := controller.New(profile,
		controller.WithLogger(log),
		controller.WithSeed(cfg.Seed),
	)
	if err != nil {
		return err
	}
	speed := ctrl.SetSpeed(cfg.Speed)
	if cfg.FailureRate >= 0 || cfg.CongestionLevel >= 0 {
		ctrl.ApplyConditions()
	}

	if *compare > 0 {
		cmp, err := ctrl.Compare(ctx, *compare)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(stdout, cmp)
		}
		printComparison(stdout, cmp)
		return nil
	}

	limit := cfg.MaxTicks
	if limit == 0 && profile.PacketLimit == 0 {
		limit = defaultHeadlessTicks
	}

	mode := timectrl.Accelerated
	if *realtime {
		mode = timectrl.RealTime
	}

	var (
		once    sync.Once
		done    = make(chan struct{})
		tickErr error
		ticks   int
	)
	finish := func() { once.Do(func() { close(done) }) }

	sched := timectrl.NewScheduler(profile.TickInterval, func(ctx context.Context) bool {
		st, err := ctrl.Tick(ctx)
		if err != nil {
			tickErr = err
			finish()
			return false
		}
		ticks++
		if *verbose {
			fmt.Fprintf(stdout, "tick %3d  %-24s latency=%6.1f loss=%5.1f delivered=%t\n",
				st.Ticks, st.Path.String(), st.Metrics.Latency, st.Metrics.PacketLoss, st.Metrics.Delivered())
		}
		if (limit > 0 && ticks >= limit) || !st.Running {
			finish()
			return false
		}
		return true
	}, timectrl.WithMode(mode), timectrl.WithSpeed(speed))

	if err := ctrl.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	loopDone := sched.Start(runCtx)
	sched.Resume()

	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()
	<-loopDone
	ctrl.Pause()

	if tickErr != nil {
		return tickErr
	}

	st := ctrl.Snapshot()
	if *asJSON {
		return writeJSON(stdout, st)
	}
	printSummary(stdout, st, cfg.Seed)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, st controller.State, seed uint64) {
	fmt.Fprintf(w, "profile=%s run=%s seed=%d strategy=%s\n", st.Profile, st.RunID, seed, st.Strategy)
	fmt.Fprintf(w, "route %s -> %s: %s\n", st.Source, st.Destination, st.Path)
	fmt.Fprintf(w, "ticks=%d packets=%d delivered=%d success=%.1f%%\n",
		st.Ticks, st.Packets, st.Delivered, 100*st.SuccessRate())
	fmt.Fprintf(w, "latency=%.1fms loss=%.1f%% hops=%d\n", st.Metrics.Latency, st.Metrics.PacketLoss, st.Metrics.Hops)
	fmt.Fprintf(w, "score traditional=%.1f adaptive=%.1f\n", st.Scores.Traditional, st.Scores.Adaptive)
	fmt.Fprintf(w, "learning episodes=%d epsilon=%.3f progress=%.0f%%\n", st.Episodes, st.Epsilon, st.LearningProgress)
	fmt.Fprintln(w, st.Explanation)
}

func printComparison(w io.Writer, cmp controller.Comparison) {
	fmt.Fprintf(w, "trained %d episodes\n", cmp.Episodes)
	fmt.Fprintf(w, "traditional: %-24s latency=%6.1f loss=%5.1f score=%.1f\n",
		cmp.Traditional.String(), cmp.TraditionalMetrics.Latency, cmp.TraditionalMetrics.PacketLoss, cmp.Scores.Traditional)
	fmt.Fprintf(w, "adaptive:    %-24s latency=%6.1f loss=%5.1f score=%.1f\n",
		cmp.Adaptive.String(), cmp.AdaptiveMetrics.Latency, cmp.AdaptiveMetrics.PacketLoss, cmp.Scores.Adaptive)
}
