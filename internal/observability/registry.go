// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into the simulator and its control plane.
package observability

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// registrar registers a batch of collectors and keeps the first error, so
// constructors can register everything and check once at the end.
type registrar struct {
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer
	err      error
}

// newRegistrar targets reg, or the default registry when reg is nil. The
// gatherer is reg itself when it can gather.
func newRegistrar(reg prometheus.Registerer) *registrar {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return &registrar{reg: reg, gatherer: gatherer}
}

// register adds c to the registry. A collector of the same type that is
// already registered under the same descriptor is returned instead, which
// lets several servers in one process share a registry.
func register[T prometheus.Collector](r *registrar, name string, c T) T {
	if r.err != nil {
		return c
	}
	err := r.reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
		r.err = fmt.Errorf("metric %s: registered with an incompatible type", name)
		return c
	}
	r.err = fmt.Errorf("metric %s: %w", name, err)
	return c
}
