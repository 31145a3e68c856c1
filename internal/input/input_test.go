package input

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spootnik/unklog/internal/config"
	"github.com/spootnik/unklog/internal/logging"
)

// fakeDriver emits a fixed number of messages, then idles until the run
// flag clears.
type fakeDriver struct {
	emitN   int
	stopped atomic.Bool
}

func (f *fakeDriver) Start(in *Input, emit EmitFunc) error {
	for i := 0; i < f.emitN; i++ {
		in.CountInc()
		emit([]byte(`{"type":"t"}`))
	}
	for in.Running() {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (f *fakeDriver) Stop() error {
	f.stopped.Store(true)
	return nil
}

func TestInputEmitsAndCounts(t *testing.T) {
	drv := &fakeDriver{emitN: 7}
	in := NewWithDriver("fake", drv, logging.NewNop())

	var emitted atomic.Int64
	in.Start(func([]byte) { emitted.Add(1) })
	defer in.Stop()

	require.Eventually(t, func() bool { return emitted.Load() == 7 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(7), in.Count())
	assert.True(t, in.Running())
}

func TestInputStopJoins(t *testing.T) {
	drv := &fakeDriver{}
	in := NewWithDriver("fake", drv, logging.NewNop())
	in.Start(func([]byte) {})

	start := time.Now()
	in.Stop()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, in.Running())
	assert.True(t, drv.stopped.Load())

	// Idempotent.
	in.Stop()
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(config.DriverSpec{Kind: "syslog"}, logging.NewNop())
	assert.Error(t, err)
}
