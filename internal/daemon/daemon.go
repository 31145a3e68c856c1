// Package daemon wires configuration, workers, metrics, and signals into the
// running process.
package daemon

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spootnik/unklog/internal/config"
	"github.com/spootnik/unklog/internal/dispatch"
	"github.com/spootnik/unklog/internal/input"
	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/internal/metrics"
	"github.com/spootnik/unklog/internal/output"
	"github.com/spootnik/unklog/pkg/errors"
)

// tickInterval is the metrics snapshot period.
const tickInterval = 5 * time.Second

// Daemon owns every worker and the run loop.  Construction resolves drivers
// from the configuration; Run starts outputs before inputs so no payload can
// arrive at an unstarted queue, then services the tick, signals, and context
// cancellation until shutdown.
type Daemon struct {
	cfg    *config.Config
	logger logging.Logger

	inputs  []*input.Input
	outputs []*output.Output
	disp    *dispatch.Dispatcher

	global    metrics.Counter
	started   time.Time
	collector *metrics.Collector
	statsSrv  *metrics.Server
	promSrv   *http.Server
}

// New builds all driver instances from cfg.  Any driver construction error
// is a configuration error and fatal to startup.
func New(cfg *config.Config, logger logging.Logger) (*Daemon, error) {
	d := &Daemon{cfg: cfg, logger: logger}

	for _, spec := range cfg.Outputs {
		out, err := output.New(spec, logger.Named("output"))
		if err != nil {
			return nil, err
		}
		d.outputs = append(d.outputs, out)
	}
	for _, spec := range cfg.Inputs {
		in, err := input.New(spec, logger.Named("input"))
		if err != nil {
			return nil, err
		}
		d.inputs = append(d.inputs, in)
	}

	d.disp = dispatch.New(d.outputs, &d.global, logger.Named("dispatch"))
	d.collector = metrics.NewCollector(d)
	return d, nil
}

// Dispatcher exposes the fan-out stage.
func (d *Daemon) Dispatcher() *dispatch.Dispatcher { return d.disp }

// Run starts the workload and blocks until a shutdown signal or context
// cancellation.  A driver start failure tears down whatever already started
// and returns the error; the caller exits 1.
func (d *Daemon) Run(ctx context.Context) error {
	d.started = time.Now()

	for _, out := range d.outputs {
		if err := out.Start(); err != nil {
			d.shutdown()
			return err
		}
	}
	for _, in := range d.inputs {
		in.Start(d.disp.Emit)
	}

	d.collector.Flush()
	if d.cfg.Stats.Enabled {
		d.statsSrv = metrics.NewServer(d.collector, d.logger.Named("metrics"))
		if err := d.statsSrv.Start(d.cfg.Stats.Host, d.cfg.Stats.Port); err != nil {
			d.statsSrv = nil
			d.shutdown()
			return err
		}
	}
	if d.cfg.Prometheus.Enabled {
		if err := d.startProm(); err != nil {
			d.shutdown()
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	d.logger.Info("daemon running",
		logging.Int("inputs", len(d.inputs)),
		logging.Int("outputs", len(d.outputs)))

	for {
		select {
		case <-ticker.C:
			d.collector.Flush()
		case sig := <-sigCh:
			d.logger.Info("received signal, shutting down", logging.String("signal", sig.String()))
			d.shutdown()
			return nil
		case <-ctx.Done():
			d.shutdown()
			return nil
		}
	}
}

func (d *Daemon) startProm() error {
	addr := net.JoinHostPort(d.cfg.Prometheus.Host, strconv.Itoa(d.cfg.Prometheus.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeConfig, "cannot listen on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.NewPromRegistry(d), promhttp.HandlerOpts{}))
	d.promSrv = &http.Server{Handler: mux}
	go func() {
		if err := d.promSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			d.logger.Error("prometheus server failed", logging.Err(err))
		}
	}()
	d.logger.Info("serving prometheus metrics", logging.String("addr", ln.Addr().String()))
	return nil
}

// shutdown stops inputs first so no new payloads reach the queues, then
// outputs, then the metrics surfaces.
func (d *Daemon) shutdown() {
	d.logger.Warn("stopping all inputs")
	for _, in := range d.inputs {
		in.Stop()
	}
	d.logger.Warn("stopping all outputs")
	for _, out := range d.outputs {
		out.Stop()
	}
	if d.statsSrv != nil {
		d.statsSrv.Stop()
	}
	if d.promSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = d.promSrv.Shutdown(shutdownCtx)
		cancel()
	}
	d.logger.Info("shutdown complete")
}

// UptimeEpoch implements metrics.Source.
func (d *Daemon) UptimeEpoch() int64 { return d.started.Unix() }

// GlobalCount implements metrics.Source.
func (d *Daemon) GlobalCount() uint64 { return d.global.Load() }

// InputStats implements metrics.Source.
func (d *Daemon) InputStats() []metrics.InputStat {
	stats := make([]metrics.InputStat, 0, len(d.inputs))
	for _, in := range d.inputs {
		stats = append(stats, metrics.InputStat{Name: in.Name(), Count: in.Count()})
	}
	return stats
}

// OutputStats implements metrics.Source.
func (d *Daemon) OutputStats() []metrics.OutputStat {
	global := d.global.Load()
	stats := make([]metrics.OutputStat, 0, len(d.outputs))
	for _, out := range d.outputs {
		count := out.Count()
		var lag uint64
		if global > count {
			lag = global - count
		}
		stats = append(stats, metrics.OutputStat{
			Name:   out.Name(),
			Count:  count,
			Errors: out.Errors(),
			Lag:    lag,
			Slots:  out.Meter().Slots(),
			Max:    out.Meter().Max(),
		})
	}
	return stats
}
