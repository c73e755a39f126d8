package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session records a single practice attempt on a card.
// Sessions are embedded in their card and persisted with it.
type Session struct {
	ID             string       `json:"id" yaml:"id" validate:"required"`
	CardID         string       `json:"cardId" yaml:"card_id" validate:"required"`
	Date           time.Time    `json:"date" yaml:"date"`
	Mode           PracticeMode `json:"mode" yaml:"mode" validate:"oneof=circleOfFifths chromatic free"`
	TemposAchieved []int        `json:"temposAchieved" yaml:"tempos_achieved" validate:"dive,gt=0"`
	ErrorRate      float64      `json:"errorRate" yaml:"error_rate" validate:"gte=0,lte=100"`
	Notes          string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// NewSession returns a session for cardID with a fresh ID.
func NewSession(cardID string, mode PracticeMode, date time.Time) Session {
	return Session{
		ID:     uuid.NewString(),
		CardID: cardID,
		Date:   date.UTC(),
		Mode:   mode,
	}
}

func (s Session) Clone() Session {
	out := s
	if s.TemposAchieved != nil {
		out.TemposAchieved = append([]int(nil), s.TemposAchieved...)
	}
	return out
}
