// Package input implements the consumption side of the daemon: the driver
// contract, the worker goroutine that hosts a driver, and the kafka driver.
package input

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/spootnik/unklog/internal/config"
	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/internal/metrics"
	"github.com/spootnik/unklog/pkg/errors"
)

// joinTimeout bounds the wait for the driver goroutine during Stop.  It
// leaves room for one poll interval plus the driver's own teardown wait.
const joinTimeout = 2 * time.Second

// EmitFunc receives one raw message from a driver.  Drivers call it from
// their own goroutine; the dispatcher behind it is reentrant.
type EmitFunc func(body []byte)

// Driver is the capability set of an input backend.  Start hosts the poll
// loop and returns once the input's run flag clears; Stop requests exit and
// unblocks any blocking poll.
type Driver interface {
	Start(in *Input, emit EmitFunc) error
	Stop() error
}

// Input hosts a driver on a dedicated goroutine and owns its run flag and
// emission counter.
type Input struct {
	name   string
	driver Driver
	logger logging.Logger

	running atomic.Bool
	done    chan struct{}
	count   metrics.Counter
}

// New builds an Input from a config directive.  The kind selects the driver
// from a closed table; only kafka is known.
func New(spec config.DriverSpec, logger logging.Logger) (*Input, error) {
	switch strings.ToLower(spec.Kind) {
	case "kafka":
		drv, err := newKafkaDriver(spec.Options, logger.Named("kafka"))
		if err != nil {
			return nil, err
		}
		return NewWithDriver("kafka", drv, logger), nil
	}
	return nil, errors.Newf(errors.ErrCodeConfig, "unsupported input kind %q", spec.Kind)
}

// NewWithDriver wires an Input around an arbitrary driver.  Exported so
// tests can install stubs.
func NewWithDriver(name string, drv Driver, logger logging.Logger) *Input {
	return &Input{
		name:   name,
		driver: drv,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Name returns the input's metrics name.
func (i *Input) Name() string { return i.name }

// Running reports the run flag drivers poll to decide when to exit.
func (i *Input) Running() bool { return i.running.Load() }

// Count returns messages this input has emitted toward the dispatcher.
func (i *Input) Count() uint64 { return i.count.Load() }

// CountInc records one emission.  Called by the driver before emit so the
// per-input count is observable even when the dispatcher rejects the
// message.
func (i *Input) CountInc() { i.count.Inc() }

// Start sets the run flag and spawns the driver loop on its own goroutine.
func (i *Input) Start(emit EmitFunc) {
	i.running.Store(true)
	go func() {
		defer close(i.done)
		if err := i.driver.Start(i, emit); err != nil {
			i.logger.Error("input driver failed",
				logging.String("input", i.name),
				logging.Err(err))
		}
	}()
	i.logger.Info("input started", logging.String("input", i.name))
}

// Stop clears the run flag, asks the driver to unblock, and joins the
// driver goroutine with a bounded wait.  Idempotent.
func (i *Input) Stop() {
	if !i.running.CompareAndSwap(true, false) {
		return
	}
	if err := i.driver.Stop(); err != nil {
		i.logger.Warn("driver stop failed",
			logging.String("input", i.name),
			logging.Err(err))
	}
	select {
	case <-i.done:
	case <-time.After(joinTimeout):
		i.logger.Warn("input did not stop in time", logging.String("input", i.name))
	}
}
