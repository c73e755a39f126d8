package domain

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Trim is the [StartSec, EndSec) window of a card's audio that forms the phrase.
type Trim struct {
	StartSec float64 `json:"startSec" yaml:"start_sec"`
	EndSec   float64 `json:"endSec" yaml:"end_sec"`
}

// Validate reports ErrInvalidRange unless 0 <= StartSec < EndSec and both
// bounds are finite.
func (t Trim) Validate() error {
	return CheckRange(t.StartSec, t.EndSec)
}

// Length is the playable duration of the window in seconds.
func (t Trim) Length() float64 {
	return t.EndSec - t.StartSec
}

// CheckRange validates a half-open time window in seconds.
func CheckRange(startSec, endSec float64) error {
	if math.IsNaN(startSec) || math.IsNaN(endSec) || math.IsInf(startSec, 0) || math.IsInf(endSec, 0) {
		return ErrInvalidRange
	}
	if startSec < 0 || endSec <= startSec {
		return ErrInvalidRange
	}
	return nil
}

// Card represents a single audio phrase being practised.
type Card struct {
	ID          string    `json:"id" yaml:"id" validate:"required"`
	Title       string    `json:"title" yaml:"title" validate:"max=500"`
	Source      string    `json:"source" yaml:"source" validate:"max=2000"`
	Comments    string    `json:"comments" yaml:"comments"`
	Tags        []string  `json:"tags" yaml:"tags" validate:"dive,max=100"`
	CreatedAt   time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updated_at"`
	AudioBlobID string    `json:"audioBlobId,omitempty" yaml:"audio_blob_id,omitempty"`
	Trim        Trim      `json:"trim" yaml:"trim"`
	BPMTarget   int       `json:"bpmTarget,omitempty" yaml:"bpm_target,omitempty" validate:"omitempty,gt=0"`
	Mastery     Mastery   `json:"mastery" yaml:"mastery"`
	Sessions    []Session `json:"sessions" yaml:"sessions"`

	// ArchivedMaxTempo is the highest tempo among sessions moved off the
	// card into the archive. The repository maintains it.
	ArchivedMaxTempo int `json:"archivedMaxTempo,omitempty" yaml:"archived_max_tempo,omitempty" validate:"gte=0"`
}

// NewCard returns a card with a fresh ID, default mastery and the given trim.
func NewCard(title string, trim Trim, now time.Time) Card {
	return Card{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Trim:      trim,
		Mastery:   DefaultMastery(),
	}
}

// WithDefaults fills unset mastery statuses with NotStarted.
func (c Card) WithDefaults() Card {
	if c.Mastery.CircleOfFifths == "" {
		c.Mastery.CircleOfFifths = NotStarted
	}
	if c.Mastery.Chromatic == "" {
		c.Mastery.Chromatic = NotStarted
	}
	return c
}

// HasPayload reports whether the card points at a stored audio payload.
func (c Card) HasPayload() bool {
	return c.AudioBlobID != "" && c.AudioBlobID == c.ID
}

// MaxTempo is the highest tempo achieved across every session, archived ones
// included, or 0 when no tempo has been recorded.
func (c Card) MaxTempo() int {
	max := c.ArchivedMaxTempo
	for _, s := range c.Sessions {
		for _, t := range s.TemposAchieved {
			if t > max {
				max = t
			}
		}
	}
	return max
}

// Clone returns a deep copy so callers can stage changes without touching the
// original until a write commits.
func (c Card) Clone() Card {
	out := c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.Sessions != nil {
		out.Sessions = make([]Session, len(c.Sessions))
		for i, s := range c.Sessions {
			out.Sessions[i] = s.Clone()
		}
	}
	return out
}

// SortByUpdatedDesc orders cards most recently updated first, the order the
// list view presents them in.
func SortByUpdatedDesc(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].UpdatedAt.After(cards[j].UpdatedAt)
	})
}
