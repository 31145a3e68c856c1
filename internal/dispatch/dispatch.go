// Package dispatch implements the classifier and fan-out stage between
// inputs and outputs.
package dispatch

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/internal/metrics"
	"github.com/spootnik/unklog/internal/output"
)

// Result classifies one dispatch attempt.
type Result int

const (
	// OK means the message parsed, carried a string type, and a copy was
	// queued (or intentionally dropped on a stopped output) for every
	// registered output.
	OK Result = iota
	// ParseError means the message was not valid JSON; no state changed.
	ParseError
	// NoType means the message parsed but had no top-level string "type".
	NoType
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dispatcher fans one inbound message out to every registered output in
// registration order.  It holds no per-call state and is safe to call
// concurrently from any input goroutine.
type Dispatcher struct {
	outputs []*output.Output
	global  *metrics.Counter
	logger  logging.Logger
}

// New returns a Dispatcher feeding outs.  global counts accepted messages;
// it is incremented exactly once per message that parses and carries a
// string type.
func New(outs []*output.Output, global *metrics.Counter, logger logging.Logger) *Dispatcher {
	return &Dispatcher{outputs: outs, global: global, logger: logger}
}

// Dispatch parses body, extracts the type field, and enqueues an
// independently owned copy to every output.
func (d *Dispatcher) Dispatch(body []byte) Result {
	if !json.Valid(body) {
		d.logger.Warn("bad message", logging.Int("len", len(body)))
		return ParseError
	}

	typ := json.Get(body, "type")
	if typ.ValueType() != jsoniter.StringValue {
		d.logger.Warn("no type in message")
		return NoType
	}
	name := typ.ToString()

	d.global.Inc()
	for _, out := range d.outputs {
		p := &output.Payload{
			Type: name,
			Body: append([]byte(nil), body...),
		}
		if !out.Enqueue(p) {
			d.logger.Debug("output stopped, dropping payload",
				logging.String("output", out.Name()),
				logging.String("type", name))
		}
	}
	return OK
}

// Emit adapts Dispatch to the input driver callback signature.
func (d *Dispatcher) Emit(body []byte) {
	_ = d.Dispatch(body)
}
