// Package playback plays the trimmed window of an audio handle and stops it
// at the window's end.
package playback

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/conorfennell/phrasebook/internal/domain"
)

// State of a single playback segment.
type State int

const (
	Idle State = iota
	Playing
	Stopped
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Stopped || s == Cancelled
}

// Controller starts segments and keeps track of the one currently playing.
type Controller struct {
	logger *zap.Logger

	mu      sync.Mutex
	current *Segment
}

func NewController(logger *zap.Logger) *Controller {
	return &Controller{logger: logger}
}

// Start plays h from startSec and pauses it at the first position sample at
// or past endSec. An invalid range returns domain.ErrInvalidRange before h
// is touched. A segment this controller started earlier is cancelled first.
func (c *Controller) Start(h Handle, startSec, endSec float64) (*Segment, error) {
	if err := domain.CheckRange(startSec, endSec); err != nil {
		return nil, fmt.Errorf("playback [%g, %g): %w", startSec, endSec, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Cancel()
		c.current = nil
	}

	seg := &Segment{
		handle:   h,
		startSec: startSec,
		endSec:   endSec,
		logger:   c.logger,
		done:     make(chan struct{}),
	}
	if err := seg.begin(); err != nil {
		return nil, err
	}
	c.current = seg
	return seg, nil
}

// Cancel cancels the current segment, if any. It is a no-op when nothing is
// playing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	seg := c.current
	c.current = nil
	c.mu.Unlock()
	if seg != nil {
		seg.Cancel()
	}
}

// Current returns the most recently started segment, or nil.
func (c *Controller) Current() *Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Segment is one invocation of bounded playback. It moves from Idle to
// Playing and then to exactly one of Stopped or Cancelled. Once terminal the
// monitor never acts on the handle again.
type Segment struct {
	handle   Handle
	startSec float64
	endSec   float64
	logger   *zap.Logger

	mu          sync.Mutex
	state       State
	pausing     bool
	stoppedAt   float64
	unsubscribe func()
	done        chan struct{}
}

func (s *Segment) begin() error {
	if err := s.handle.Seek(s.startSec); err != nil {
		return fmt.Errorf("failed to seek to %g: %w", s.startSec, err)
	}
	if err := s.handle.Play(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	s.mu.Lock()
	s.state = Playing
	s.mu.Unlock()

	unsubscribe := s.handle.Subscribe(s.onTick)

	s.mu.Lock()
	if s.state.Terminal() || s.pausing {
		// The first tick already ended the segment.
		s.mu.Unlock()
		unsubscribe()
		return nil
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.logger.Debug("segment playing", zap.Float64("start_sec", s.startSec), zap.Float64("end_sec", s.endSec))
	return nil
}

func (s *Segment) onTick(t Tick) {
	s.mu.Lock()
	if s.state != Playing || s.pausing {
		s.mu.Unlock()
		return
	}
	if t.Err != nil {
		s.logger.Warn("position monitor failed, cancelling segment", zap.Error(t.Err))
		unsubscribe := s.finishLocked(Cancelled)
		s.mu.Unlock()
		unsubscribe()
		return
	}
	if t.Position < s.endSec {
		s.mu.Unlock()
		return
	}

	// Pause runs without s.mu: a handle may report a position from inside
	// Pause, and that tick must find the segment already ending.
	s.pausing = true
	s.stoppedAt = t.Position
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	next := Stopped
	if err := s.handle.Pause(); err != nil {
		s.logger.Warn("pause failed at segment end, cancelling segment", zap.Float64("position", t.Position), zap.Error(err))
		next = Cancelled
	}

	s.mu.Lock()
	s.finishLocked(next)
	s.mu.Unlock()

	s.logger.Debug("segment finished", zap.Stringer("state", next), zap.Float64("position", t.Position))
}

// finishLocked moves to a terminal state and returns the unsubscribe function
// to call once s.mu is released.
func (s *Segment) finishLocked(next State) func() {
	s.state = next
	close(s.done)
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	if unsubscribe == nil {
		return func() {}
	}
	return unsubscribe
}

// Cancel stops monitoring without pausing or seeking the handle. Cancelling a
// finished segment, or one already pausing at its end, does nothing.
func (s *Segment) Cancel() {
	s.mu.Lock()
	if s.state != Playing || s.pausing {
		s.mu.Unlock()
		return
	}
	unsubscribe := s.finishLocked(Cancelled)
	s.mu.Unlock()
	unsubscribe()
}

// State returns the segment's current state.
func (s *Segment) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StoppedAt is the position sample that ended the segment, or 0 if it has not
// stopped at its boundary.
func (s *Segment) StoppedAt() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stoppedAt
}

// Done is closed when the segment reaches Stopped or Cancelled.
func (s *Segment) Done() <-chan struct{} {
	return s.done
}

// Bounds returns the segment's window.
func (s *Segment) Bounds() (startSec, endSec float64) {
	return s.startSec, s.endSec
}
