// Package metrics implements the daemon's counters, latency meters, the
// periodic text snapshot, and the TCP endpoint that serves it.
package metrics

import (
	"sync/atomic"
	"time"
)

// NumSlots is the number of latency buckets in a Meter.
const NumSlots = 13

// slotUpperMS holds the inclusive upper bound, in milliseconds, of each
// bucket except the last, which is unbounded.
var slotUpperMS = [NumSlots - 1]int64{2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000}

// Counter is a 64-bit monotonic counter with any number of concurrent
// readers.  Per-worker counters have a single writer; the global counter is
// incremented by every input goroutine through the dispatcher.
type Counter struct {
	v atomic.Uint64
}

// Inc adds one atomically; concurrent callers are safe.
func (c *Counter) Inc() {
	c.v.Add(1)
}

// Load returns the current value.
func (c *Counter) Load() uint64 {
	return c.v.Load()
}

// Meter is a fixed-bucket latency histogram with a running maximum.  Slots
// hold counts for the half-open millisecond intervals (0,2] (2,5] (5,10]
// (10,20] (20,50] (50,100] (100,200] (200,500] (500,1000] (1000,2000]
// (2000,5000] (5000,10000] (10000,inf); durations at or below zero land in
// slot 0.  Like Counter, a Meter has one writer and lock-free readers.
type Meter struct {
	max   atomic.Uint64
	slots [NumSlots]atomic.Uint32
}

// Record adds one sample.
func (m *Meter) Record(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if uint64(ms) > m.max.Load() {
		m.max.Store(uint64(ms))
	}
	slot := NumSlots - 1
	for i, upper := range slotUpperMS {
		if ms <= upper {
			slot = i
			break
		}
	}
	m.slots[slot].Add(1)
}

// Max returns the largest recorded sample in milliseconds.
func (m *Meter) Max() uint64 {
	return m.max.Load()
}

// Slots returns a copy of the bucket counts.
func (m *Meter) Slots() [NumSlots]uint32 {
	var out [NumSlots]uint32
	for i := range m.slots {
		out[i] = m.slots[i].Load()
	}
	return out
}
