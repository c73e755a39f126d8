package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDetached is reported by a ClockPlayer after Detach.
var ErrDetached = errors.New("media handle detached")

// PolledHandle adds a ticker-driven Subscribe to a Player that cannot push
// position updates itself.
type PolledHandle struct {
	Player
	interval time.Duration
}

// DefaultPollInterval is used when NewPolledHandle gets a non-positive interval.
const DefaultPollInterval = 250 * time.Millisecond

func NewPolledHandle(p Player, interval time.Duration) *PolledHandle {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PolledHandle{Player: p, interval: interval}
}

// Subscribe samples Position every interval on its own goroutine. The
// goroutine exits once unsubscribe is called; a sample already in flight may
// still be delivered.
func (h *PolledHandle) Subscribe(fn func(Tick)) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			select {
			case <-stop:
				return
			default:
			}
			pos, err := h.Position()
			fn(Tick{Position: pos, Err: err})
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// ClockPlayer is a silent player whose playhead advances with wall time. It
// lets the controller run without an audio device, e.g. for previews and
// tests. A zero duration means the length is unknown and seeks are not
// bounded above.
type ClockPlayer struct {
	now      func() time.Time
	duration float64

	mu       sync.Mutex
	position float64
	anchor   time.Time
	playing  bool
	detached bool
}

func NewClockPlayer(durationSec float64) *ClockPlayer {
	return &ClockPlayer{now: time.Now, duration: durationSec}
}

func (p *ClockPlayer) Seek(positionSec float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return ErrDetached
	}
	if positionSec < 0 || (p.duration > 0 && positionSec > p.duration) {
		return fmt.Errorf("seek to %g outside [0, %g]", positionSec, p.duration)
	}
	p.position = positionSec
	p.anchor = p.now()
	return nil
}

func (p *ClockPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return ErrDetached
	}
	if !p.playing {
		p.playing = true
		p.anchor = p.now()
	}
	return nil
}

func (p *ClockPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return ErrDetached
	}
	p.position = p.currentLocked()
	p.playing = false
	return nil
}

func (p *ClockPlayer) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return 0, ErrDetached
	}
	return p.currentLocked(), nil
}

func (p *ClockPlayer) Duration() float64 {
	return p.duration
}

// Playing reports whether the playhead is moving.
func (p *ClockPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Detach makes every later call fail with ErrDetached.
func (p *ClockPlayer) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = true
	p.playing = false
}

func (p *ClockPlayer) currentLocked() float64 {
	if !p.playing {
		return p.position
	}
	pos := p.position + p.now().Sub(p.anchor).Seconds()
	if p.duration > 0 && pos > p.duration {
		return p.duration
	}
	return pos
}
