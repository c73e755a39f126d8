package domain

import "fmt"

// MasteryStatus tracks progress for a single practice mode.
type MasteryStatus string

const (
	NotStarted MasteryStatus = "not_started"
	InProgress MasteryStatus = "in_progress"
	Mastered   MasteryStatus = "mastered"
)

// ParseMasteryStatus returns the status named by s, rejecting anything outside
// the closed set.
func ParseMasteryStatus(s string) (MasteryStatus, error) {
	switch MasteryStatus(s) {
	case NotStarted, InProgress, Mastered:
		return MasteryStatus(s), nil
	}
	return "", fmt.Errorf("%w: mastery status %q", ErrUnknownValue, s)
}

// UnmarshalText implements encoding.TextUnmarshaler so stored and imported
// records cannot smuggle in unknown statuses.
func (m *MasteryStatus) UnmarshalText(b []byte) error {
	v, err := ParseMasteryStatus(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// PracticeMode is the exercise a session was recorded under.
type PracticeMode string

const (
	ModeCircleOfFifths PracticeMode = "circleOfFifths"
	ModeChromatic      PracticeMode = "chromatic"
	ModeFree           PracticeMode = "free"
)

// ParsePracticeMode returns the mode named by s.
func ParsePracticeMode(s string) (PracticeMode, error) {
	switch PracticeMode(s) {
	case ModeCircleOfFifths, ModeChromatic, ModeFree:
		return PracticeMode(s), nil
	}
	return "", fmt.Errorf("%w: practice mode %q", ErrUnknownValue, s)
}

func (p *PracticeMode) UnmarshalText(b []byte) error {
	v, err := ParsePracticeMode(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Mastery holds one status per practice mode that tracks mastery.
type Mastery struct {
	CircleOfFifths MasteryStatus `json:"circleOfFifths" yaml:"circle_of_fifths" validate:"oneof=not_started in_progress mastered"`
	Chromatic      MasteryStatus `json:"chromatic" yaml:"chromatic" validate:"oneof=not_started in_progress mastered"`
}

// DefaultMastery is the state of a freshly created card.
func DefaultMastery() Mastery {
	return Mastery{CircleOfFifths: NotStarted, Chromatic: NotStarted}
}
