package metrics

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// InputStat is one input's contribution to a snapshot.
type InputStat struct {
	Name  string
	Count uint64
}

// OutputStat is one output's contribution to a snapshot.
type OutputStat struct {
	Name   string
	Count  uint64
	Errors uint64
	Lag    uint64
	Slots  [NumSlots]uint32
	Max    uint64
}

// Source exposes the counters the collector samples on every tick.  The
// daemon implements it; all reads behind it are atomic loads, so the
// collector never requires worker quiescence.
type Source interface {
	UptimeEpoch() int64
	GlobalCount() uint64
	InputStats() []InputStat
	OutputStats() []OutputStat
}

// Collector rebuilds the frozen text snapshot on a fixed tick and hands it
// to the TCP endpoint.  The snapshot lock is held only during the rebuild
// and during the per-connection write; never across driver calls.
type Collector struct {
	src Source

	mu       sync.Mutex
	snapshot []byte
}

// NewCollector returns a Collector sampling src.
func NewCollector(src Source) *Collector {
	return &Collector{src: src}
}

// Flush recomputes the snapshot from the current counter values.  It is
// scheduled every 5 seconds by the daemon's run loop.
func (c *Collector) Flush() {
	var b strings.Builder

	fmt.Fprintf(&b, "global.uptime %d\nglobal.count %d\n", c.src.UptimeEpoch(), c.src.GlobalCount())
	for _, in := range c.src.InputStats() {
		fmt.Fprintf(&b, "in.%s.count %d\n", in.Name, in.Count)
	}
	for _, out := range c.src.OutputStats() {
		fmt.Fprintf(&b, "out.%s.count %d\nout.%s.errs %d\nout.%s.lag %d\nout.%s.meter",
			out.Name, out.Count, out.Name, out.Errors, out.Name, out.Lag, out.Name)
		for _, s := range out.Slots {
			fmt.Fprintf(&b, " %d", s)
		}
		fmt.Fprintf(&b, " max:%d\n", out.Max)
	}

	c.mu.Lock()
	c.snapshot = []byte(b.String())
	c.mu.Unlock()
}

// WriteTo writes the latest snapshot to w under the snapshot lock.
func (c *Collector) WriteTo(w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := w.Write(c.snapshot)
	return int64(n), err
}

// Snapshot returns a copy of the latest snapshot text.
func (c *Collector) Snapshot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.snapshot...)
}
