// Package output implements the delivery side of the daemon: the driver
// contract, the per-output queue and worker, and the elasticsearch and exec
// drivers.
package output

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spootnik/unklog/internal/config"
	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/internal/metrics"
	"github.com/spootnik/unklog/pkg/errors"
)

// DefaultQueueSize is the queue capacity when the output carries no queue=
// option.
const DefaultQueueSize = 1024

// joinTimeout bounds the wait for the worker goroutine during Stop.
const joinTimeout = 2 * time.Second

// Payload is one message copy owned by a single output.  The dispatcher
// duplicates the body per output, so no two outputs ever share a buffer.
type Payload struct {
	Type string
	Body []byte
}

// Driver is the capability set of an output backend.  Start failure is fatal
// to the daemon; Payload failure is per-message and only counted; Stop
// failure is logged and shutdown proceeds.
type Driver interface {
	Start() error
	Payload(typ string, body []byte) error
	Stop() error
}

// Output owns a bounded FIFO queue drained by a dedicated worker goroutine.
// Payloads are delivered to the driver in enqueue order; a full queue blocks
// the producer until the worker catches up or the output stops.
type Output struct {
	name    string
	cmdline string
	driver  Driver
	logger  logging.Logger

	queue   chan *Payload
	stopped chan struct{}
	done    chan struct{}
	running atomic.Bool

	count metrics.Counter
	errs  metrics.Counter
	meter metrics.Meter
}

// New builds an Output from a config directive.  The kind selects the driver
// from a closed table.
func New(spec config.DriverSpec, logger logging.Logger) (*Output, error) {
	var (
		drv  Driver
		name string
	)
	switch strings.ToLower(spec.Kind) {
	case "elasticsearch":
		d, err := newESDriver(spec.Options, logger.Named("es"))
		if err != nil {
			return nil, err
		}
		drv, name = d, "es"
	case "exec":
		drv, name = newExecDriver(spec.Cmdline, logger.Named("exec")), "exec"
	default:
		return nil, errors.Newf(errors.ErrCodeConfig, "unsupported output kind %q", spec.Kind)
	}

	size := DefaultQueueSize
	if v, ok := config.Get(spec.Options, "queue"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errors.Newf(errors.ErrCodeConfig, "invalid queue size %q", v)
		}
		size = n
	}
	return NewWithDriver(name, drv, size, spec.Cmdline, logger), nil
}

// NewWithDriver wires an Output around an arbitrary driver.  Exported so
// tests can install recording stubs.
func NewWithDriver(name string, drv Driver, queueSize int, cmdline string, logger logging.Logger) *Output {
	return &Output{
		name:    name,
		cmdline: cmdline,
		driver:  drv,
		logger:  logger,
		queue:   make(chan *Payload, queueSize),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Name returns the output's metrics name.
func (o *Output) Name() string { return o.name }

// Running reports whether the output has been started and not yet stopped.
func (o *Output) Running() bool { return o.running.Load() }

// Count returns delivered-or-errored payloads taken off the queue.
func (o *Output) Count() uint64 { return o.count.Load() }

// Errors returns payloads the driver reported as failed.
func (o *Output) Errors() uint64 { return o.errs.Load() }

// Meter exposes the delivery latency histogram.
func (o *Output) Meter() *metrics.Meter { return &o.meter }

// Start brings the driver up and spawns the worker.  A driver start failure
// is returned to the caller, which treats it as fatal.
func (o *Output) Start() error {
	if err := o.driver.Start(); err != nil {
		return errors.Wrapf(err, errors.ErrCodeInternal, "cannot start output %s", o.name)
	}
	o.running.Store(true)
	go o.run()
	o.logger.Info("output started", logging.String("output", o.name))
	return nil
}

// Enqueue appends a payload to the queue, blocking while the queue is full.
// It returns false when the output stopped before the payload could be
// queued; the payload is then dropped.
func (o *Output) Enqueue(p *Payload) bool {
	select {
	case <-o.stopped:
		return false
	default:
	}
	select {
	case o.queue <- p:
		return true
	case <-o.stopped:
		return false
	}
}

// QueueLen returns the current queue depth.
func (o *Output) QueueLen() int { return len(o.queue) }

func (o *Output) run() {
	defer close(o.done)
	o.logger.Info("worker running", logging.String("output", o.name))
	for {
		// Drain nothing further once stopped; queued payloads are
		// discarded on teardown.
		select {
		case <-o.stopped:
			return
		default:
		}
		select {
		case p := <-o.queue:
			o.deliver(p)
		case <-o.stopped:
			return
		}
	}
}

func (o *Output) deliver(p *Payload) {
	o.count.Inc()
	start := time.Now()
	if err := o.driver.Payload(p.Type, p.Body); err != nil {
		o.errs.Inc()
		o.logger.Warn("could not process payload",
			logging.String("output", o.name),
			logging.String("type", p.Type),
			logging.Err(err))
	}
	o.meter.Record(time.Since(start))
}

// Stop clears the run flag, wakes the worker, stops the driver, and joins
// the worker with a bounded wait.  Idempotent.
func (o *Output) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}
	close(o.stopped)
	if err := o.driver.Stop(); err != nil {
		o.logger.Warn("driver stop failed",
			logging.String("output", o.name),
			logging.Err(err))
	}
	select {
	case <-o.done:
	case <-time.After(joinTimeout):
		o.logger.Warn("worker did not stop in time", logging.String("output", o.name))
	}
	if n := len(o.queue); n > 0 {
		o.logger.Info("discarding queued payloads",
			logging.String("output", o.name),
			logging.Int("dropped", n))
	}
}
