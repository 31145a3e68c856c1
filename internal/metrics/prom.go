package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewPromRegistry builds a Prometheus registry whose collectors read the
// same atomic counters the text snapshot samples.  The set of inputs and
// outputs is fixed after configuration, so one collector per distinct name is
// registered up front with that name as a constant label.
func NewPromRegistry(src Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "unklog",
		Name:      "start_time_seconds",
		Help:      "Unix time the daemon started.",
	}, func() float64 {
		return float64(src.UptimeEpoch())
	}))

	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "unklog",
		Name:      "messages_total",
		Help:      "Messages accepted by the dispatcher.",
	}, func() float64 {
		return float64(src.GlobalCount())
	}))

	seen := make(map[string]bool)
	for _, in := range src.InputStats() {
		name := in.Name
		if seen["in."+name] {
			continue
		}
		seen["in."+name] = true
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "unklog",
			Subsystem:   "input",
			Name:        "messages_total",
			Help:        "Messages emitted by this input.",
			ConstLabels: prometheus.Labels{"input": name},
		}, func() float64 {
			return float64(statForInput(src, name))
		}))
	}

	for _, out := range src.OutputStats() {
		name := out.Name
		if seen["out."+name] {
			continue
		}
		seen["out."+name] = true
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "unklog",
			Subsystem:   "output",
			Name:        "deliveries_total",
			Help:        "Payloads taken off this output's queue.",
			ConstLabels: prometheus.Labels{"output": name},
		}, func() float64 {
			return float64(statForOutput(src, name).Count)
		}))
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "unklog",
			Subsystem:   "output",
			Name:        "errors_total",
			Help:        "Delivery attempts the driver reported as failed.",
			ConstLabels: prometheus.Labels{"output": name},
		}, func() float64 {
			return float64(statForOutput(src, name).Errors)
		}))
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "unklog",
			Subsystem:   "output",
			Name:        "lag",
			Help:        "Accepted messages not yet delivered or errored by this output.",
			ConstLabels: prometheus.Labels{"output": name},
		}, func() float64 {
			return float64(statForOutput(src, name).Lag)
		}))
	}

	return reg
}

// Instances sharing a name (two exec outputs, say) are summed under one
// label value.
func statForInput(src Source, name string) uint64 {
	var total uint64
	for _, in := range src.InputStats() {
		if in.Name == name {
			total += in.Count
		}
	}
	return total
}

func statForOutput(src Source, name string) OutputStat {
	agg := OutputStat{Name: name}
	for _, out := range src.OutputStats() {
		if out.Name == name {
			agg.Count += out.Count
			agg.Errors += out.Errors
			agg.Lag += out.Lag
		}
	}
	return agg
}
