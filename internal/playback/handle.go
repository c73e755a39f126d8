package playback

// Tick is one position sample emitted by a media handle. Err is set when the
// handle can no longer report a position, for example after it was detached.
type Tick struct {
	Position float64
	Err      error
}

// Player is the part of a media element the controller drives.
type Player interface {
	Seek(positionSec float64) error
	Play() error
	Pause() error
	Position() (float64, error)
	Duration() float64
}

// Handle is a Player that also pushes position updates on its own clock.
// Subscribe registers fn for every tick until the returned function is called.
// The unsubscribe function must be safe to call more than once and from
// within fn. Handles may deliver ticks synchronously, including from inside
// Pause.
type Handle interface {
	Player
	Subscribe(fn func(Tick)) (unsubscribe func())
}
