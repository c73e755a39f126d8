package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/conorfennell/phrasebook/internal/domain"
)

// fakeHandle delivers ticks only when the test calls emit.
type fakeHandle struct {
	mu        sync.Mutex
	seeks     []float64
	plays     int
	pauses    []float64
	position  float64
	pauseErr  error
	seekErr   error
	onSubTick *Tick
	subs      map[int]func(Tick)
	nextSub   int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{subs: make(map[int]func(Tick))}
}

func (h *fakeHandle) Seek(pos float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seekErr != nil {
		return h.seekErr
	}
	h.seeks = append(h.seeks, pos)
	h.position = pos
	return nil
}

func (h *fakeHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plays++
	return nil
}

func (h *fakeHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pauseErr != nil {
		return h.pauseErr
	}
	h.pauses = append(h.pauses, h.position)
	return nil
}

func (h *fakeHandle) Position() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position, nil
}

func (h *fakeHandle) Duration() float64 { return 10 }

func (h *fakeHandle) Subscribe(fn func(Tick)) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	first := h.onSubTick
	h.mu.Unlock()

	if first != nil {
		fn(*first)
	}
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *fakeHandle) emit(t Tick) {
	h.mu.Lock()
	if t.Err == nil {
		h.position = t.Position
	}
	subs := make([]func(Tick), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()
	for _, fn := range subs {
		fn(t)
	}
}

func (h *fakeHandle) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func TestStartRejectsInvalidRange(t *testing.T) {
	testCases := []struct {
		name       string
		start, end float64
	}{
		{name: "Empty window", start: 5, end: 5},
		{name: "Reversed window", start: 5, end: 2},
		{name: "Negative start", start: -1, end: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newFakeHandle()
			c := NewController(zap.NewNop())
			seg, err := c.Start(h, tc.start, tc.end)
			assert.ErrorIs(t, err, domain.ErrInvalidRange)
			assert.Nil(t, seg)
			assert.Empty(t, h.seeks, "handle must not be seeked")
			assert.Zero(t, h.plays, "handle must not be played")
			assert.Zero(t, h.subscribers())
		})
	}
}

func TestSegmentStopsAtBoundary(t *testing.T) {
	h := newFakeHandle()
	c := NewController(zap.NewNop())

	seg, err := c.Start(h, 0.5, 2.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, h.seeks)
	assert.Equal(t, 1, h.plays)
	assert.Equal(t, Playing, seg.State())

	h.emit(Tick{Position: 0.9})
	assert.Empty(t, h.pauses, "no pause before the boundary")
	h.emit(Tick{Position: 1.9})
	assert.Empty(t, h.pauses, "no pause before the boundary")
	h.emit(Tick{Position: 2.9})

	assert.Equal(t, []float64{2.9}, h.pauses)
	assert.Equal(t, Stopped, seg.State())
	assert.Equal(t, 2.9, seg.StoppedAt())
	assert.Zero(t, h.subscribers(), "monitor deregistered")

	select {
	case <-seg.Done():
	default:
		t.Fatal("Done must be closed once stopped")
	}
}

func TestSegmentStopsExactlyAtBoundary(t *testing.T) {
	h := newFakeHandle()
	seg, err := NewController(zap.NewNop()).Start(h, 0, 2.0)
	require.NoError(t, err)

	h.emit(Tick{Position: 2.0})
	assert.Equal(t, Stopped, seg.State())
	assert.Len(t, h.pauses, 1)
}

func TestTerminalSegmentIgnoresLateTicks(t *testing.T) {
	h := newFakeHandle()
	seg, err := NewController(zap.NewNop()).Start(h, 0, 1)
	require.NoError(t, err)

	// Keep a reference to the monitor as a misbehaving handle might.
	h.mu.Lock()
	var monitor func(Tick)
	for _, fn := range h.subs {
		monitor = fn
	}
	h.mu.Unlock()

	h.emit(Tick{Position: 1.5})
	require.Equal(t, Stopped, seg.State())

	monitor(Tick{Position: 3})
	monitor(Tick{Err: errors.New("late")})
	assert.Len(t, h.pauses, 1)
	assert.Equal(t, Stopped, seg.State())
}

func TestCancelLeavesHandleAlone(t *testing.T) {
	h := newFakeHandle()
	c := NewController(zap.NewNop())
	seg, err := c.Start(h, 1, 4)
	require.NoError(t, err)

	h.emit(Tick{Position: 1.5})
	c.Cancel()

	assert.Equal(t, Cancelled, seg.State())
	assert.Empty(t, h.pauses, "cancel must not pause")
	assert.Equal(t, []float64{1}, h.seeks, "cancel must not seek")
	assert.Zero(t, h.subscribers())
	assert.Nil(t, c.Current())

	h.emit(Tick{Position: 5})
	assert.Empty(t, h.pauses, "monitor never fires after cancel")

	seg.Cancel()
	c.Cancel()
	assert.Equal(t, Cancelled, seg.State())
}

func TestCancelAfterStopIsNoop(t *testing.T) {
	h := newFakeHandle()
	seg, err := NewController(zap.NewNop()).Start(h, 0, 1)
	require.NoError(t, err)
	h.emit(Tick{Position: 1})
	seg.Cancel()
	assert.Equal(t, Stopped, seg.State())
}

func TestMonitorErrorCancels(t *testing.T) {
	h := newFakeHandle()
	seg, err := NewController(zap.NewNop()).Start(h, 0, 3)
	require.NoError(t, err)

	h.emit(Tick{Err: errors.New("element removed")})
	assert.Equal(t, Cancelled, seg.State())
	assert.Empty(t, h.pauses)
	assert.Zero(t, h.subscribers())
}

func TestPauseFailureCancels(t *testing.T) {
	h := newFakeHandle()
	h.pauseErr = errors.New("detached")
	seg, err := NewController(zap.NewNop()).Start(h, 0, 1)
	require.NoError(t, err)

	h.emit(Tick{Position: 1.2})
	assert.Equal(t, Cancelled, seg.State())
	assert.Zero(t, h.subscribers())
}

func TestStartCancelsPreviousSegment(t *testing.T) {
	h := newFakeHandle()
	c := NewController(zap.NewNop())

	first, err := c.Start(h, 0, 5)
	require.NoError(t, err)
	second, err := c.Start(h, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, Cancelled, first.State())
	assert.Equal(t, Playing, second.State())
	assert.Equal(t, 1, h.subscribers())
	assert.Same(t, second, c.Current())

	h.emit(Tick{Position: 3.5})
	assert.Equal(t, Stopped, second.State())
	assert.Len(t, h.pauses, 1)
}

// echoHandle reports a position from inside Pause, like media elements that
// fire an update event while pausing.
type echoHandle struct {
	*fakeHandle
	monitor func(Tick)
}

func (h *echoHandle) Subscribe(fn func(Tick)) func() {
	h.monitor = fn
	return h.fakeHandle.Subscribe(fn)
}

func (h *echoHandle) Pause() error {
	if err := h.fakeHandle.Pause(); err != nil {
		return err
	}
	h.monitor(Tick{Position: 2.9})
	return nil
}

func TestTickFromInsidePause(t *testing.T) {
	h := &echoHandle{fakeHandle: newFakeHandle()}
	seg, err := NewController(zap.NewNop()).Start(h, 0, 2.0)
	require.NoError(t, err)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		h.emit(Tick{Position: 2.5})
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor blocked when the handle ticked from inside Pause")
	}

	assert.Equal(t, Stopped, seg.State())
	assert.Equal(t, 2.5, seg.StoppedAt())
	assert.Len(t, h.pauses, 1, "the echoed tick must not pause again")
	assert.Zero(t, h.subscribers())
}

func TestNewPolledHandleDefaultsInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		h := NewPolledHandle(NewClockPlayer(0), interval)
		assert.Equal(t, DefaultPollInterval, h.interval)
	}
	assert.Equal(t, 5*time.Millisecond, NewPolledHandle(NewClockPlayer(0), 5*time.Millisecond).interval)
}

func TestTickDuringSubscribe(t *testing.T) {
	h := newFakeHandle()
	h.onSubTick = &Tick{Position: 9}
	seg, err := NewController(zap.NewNop()).Start(h, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, Stopped, seg.State())
	assert.Zero(t, h.subscribers(), "monitor removed even when the first tick ends the segment")
}

func TestSeekFailure(t *testing.T) {
	h := newFakeHandle()
	h.seekErr = errors.New("not loaded")
	seg, err := NewController(zap.NewNop()).Start(h, 0, 1)
	assert.Error(t, err)
	assert.Nil(t, seg)
	assert.Zero(t, h.plays)
}

func TestPolledClockPlayback(t *testing.T) {
	defer goleak.VerifyNone(t)

	player := NewClockPlayer(0)
	h := NewPolledHandle(player, 5*time.Millisecond)
	seg, err := NewController(zap.NewNop()).Start(h, 1.0, 1.05)
	require.NoError(t, err)

	select {
	case <-seg.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("segment never reached its end")
	}
	assert.Equal(t, Stopped, seg.State())
	assert.GreaterOrEqual(t, seg.StoppedAt(), 1.05)
	assert.False(t, player.Playing())
}

func TestPolledDetachCancels(t *testing.T) {
	defer goleak.VerifyNone(t)

	player := NewClockPlayer(0)
	h := NewPolledHandle(player, 5*time.Millisecond)
	seg, err := NewController(zap.NewNop()).Start(h, 0, 60)
	require.NoError(t, err)

	player.Detach()
	select {
	case <-seg.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("detached handle never cancelled the segment")
	}
	assert.Equal(t, Cancelled, seg.State())
}

func TestClockPlayer(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewClockPlayer(10)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Seek(2))
	require.NoError(t, p.Play())
	now = now.Add(1500 * time.Millisecond)

	pos, err := p.Position()
	require.NoError(t, err)
	assert.InDelta(t, 3.5, pos, 1e-9)

	require.NoError(t, p.Pause())
	now = now.Add(time.Second)
	pos, err = p.Position()
	require.NoError(t, err)
	assert.InDelta(t, 3.5, pos, 1e-9, "paused playhead does not move")

	require.NoError(t, p.Play())
	now = now.Add(time.Minute)
	pos, err = p.Position()
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos, "playhead is clamped to the duration")

	assert.Error(t, p.Seek(11))
	assert.Error(t, p.Seek(-1))

	p.Detach()
	_, err = p.Position()
	assert.ErrorIs(t, err, ErrDetached)
}
