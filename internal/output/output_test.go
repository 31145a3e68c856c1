package output

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spootnik/unklog/internal/config"
	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/pkg/errors"
)

// recordingDriver captures delivered payloads and optionally fails them.
type recordingDriver struct {
	mu       sync.Mutex
	payloads []Payload
	fail     bool
	stopped  bool
}

func (r *recordingDriver) Start() error { return nil }

func (r *recordingDriver) Payload(typ string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, Payload{Type: typ, Body: append([]byte(nil), body...)})
	if r.fail {
		return errors.New(errors.ErrCodeUnavailable, "stub failure")
	}
	return nil
}

func (r *recordingDriver) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *recordingDriver) recorded() []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payload(nil), r.payloads...)
}

func TestOutputDeliversInOrder(t *testing.T) {
	drv := &recordingDriver{}
	out := NewWithDriver("o", drv, 16, "", logging.NewNop())
	require.NoError(t, out.Start())
	defer out.Stop()

	types := []string{"a", "b", "c", "d", "e"}
	for _, typ := range types {
		require.True(t, out.Enqueue(&Payload{Type: typ, Body: []byte(`{"type":"` + typ + `"}`)}))
	}

	require.Eventually(t, func() bool { return out.Count() == uint64(len(types)) },
		2*time.Second, 10*time.Millisecond)

	got := drv.recorded()
	require.Len(t, got, len(types))
	for i, typ := range types {
		assert.Equal(t, typ, got[i].Type)
	}
	assert.Equal(t, uint64(0), out.Errors())
}

func TestOutputCountsDriverFailures(t *testing.T) {
	drv := &recordingDriver{fail: true}
	out := NewWithDriver("o", drv, 16, "", logging.NewNop())
	require.NoError(t, out.Start())
	defer out.Stop()

	for i := 0; i < 5; i++ {
		require.True(t, out.Enqueue(&Payload{Type: "t", Body: []byte(`{}`)}))
	}

	require.Eventually(t, func() bool { return out.Count() == 5 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(5), out.Errors())

	// Every delivery contributed one meter sample.
	var samples uint32
	for _, s := range out.Meter().Slots() {
		samples += s
	}
	assert.Equal(t, uint32(5), samples)
}

func TestOutputStopJoinsWorker(t *testing.T) {
	drv := &recordingDriver{}
	out := NewWithDriver("o", drv, 16, "", logging.NewNop())
	require.NoError(t, out.Start())
	assert.True(t, out.Running())

	start := time.Now()
	out.Stop()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, out.Running())
	assert.True(t, drv.stopped)

	// Idempotent.
	out.Stop()
}

func TestOutputStopDiscardsQueued(t *testing.T) {
	// The driver blocks its first delivery until Stop, so the remaining
	// payloads are still queued when the worker is told to quit.
	drv := &blockingDriver{release: make(chan struct{})}
	out := NewWithDriver("o", drv, 16, "", logging.NewNop())
	require.NoError(t, out.Start())

	for i := 0; i < 10; i++ {
		require.True(t, out.Enqueue(&Payload{Type: "t", Body: []byte(`{}`)}))
	}
	out.Stop()

	// Whatever was still queued at stop never reached the driver.
	assert.Less(t, drv.delivered(), 10)
	assert.False(t, out.Running())

	// Enqueue after stop reports the drop.
	assert.False(t, out.Enqueue(&Payload{Type: "t", Body: []byte(`{}`)}))
}

// blockingDriver stalls deliveries until its Stop, mimicking a driver whose
// in-flight call is only unblocked by teardown.
type blockingDriver struct {
	mu      sync.Mutex
	n       int
	once    sync.Once
	release chan struct{}
}

func (b *blockingDriver) Start() error { return nil }

func (b *blockingDriver) Payload(string, []byte) error {
	<-b.release
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	return nil
}

func (b *blockingDriver) Stop() error {
	b.once.Do(func() { close(b.release) })
	return nil
}

func (b *blockingDriver) delivered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

type failingStartDriver struct{}

func (failingStartDriver) Start() error                 { return errors.New(errors.ErrCodeInternal, "no backend") }
func (failingStartDriver) Payload(string, []byte) error { return nil }
func (failingStartDriver) Stop() error                  { return nil }

func TestOutputStartFailureIsFatal(t *testing.T) {
	out := NewWithDriver("o", failingStartDriver{}, 16, "", logging.NewNop())
	err := out.Start()
	require.Error(t, err)
	assert.False(t, out.Running())
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(config.DriverSpec{Kind: "redis"}, logging.NewNop())
	assert.Error(t, err)
}

func TestNewHonorsQueueOption(t *testing.T) {
	out, err := New(config.DriverSpec{
		Kind:    "exec",
		Cmdline: "exec cat",
		Options: []config.Option{{Key: "queue", Val: "4"}},
	}, logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 4, cap(out.queue))

	_, err = New(config.DriverSpec{
		Kind:    "exec",
		Cmdline: "exec cat",
		Options: []config.Option{{Key: "queue", Val: "zero"}},
	}, logging.NewNop())
	assert.Error(t, err)
}
