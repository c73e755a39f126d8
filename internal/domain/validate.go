package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every invariant a card must hold before it is persisted.
// Trim problems are reported as ErrInvalidRange, everything else as
// ErrInvalidCard or ErrInvalidSession.
func (c Card) Validate() error {
	if err := c.Trim.Validate(); err != nil {
		return fmt.Errorf("trim [%g, %g): %w", c.Trim.StartSec, c.Trim.EndSec, err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCard, describe(err))
	}
	if c.AudioBlobID != "" && c.AudioBlobID != c.ID {
		return fmt.Errorf("%w: audio blob %q does not match card %q", ErrInvalidCard, c.AudioBlobID, c.ID)
	}
	for i, s := range c.Sessions {
		if s.CardID != c.ID {
			return fmt.Errorf("%w: session %d belongs to card %q", ErrInvalidSession, i, s.CardID)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("session %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks a session in isolation; ownership is checked by the card.
func (s Session) Validate() error {
	if s.Date.IsZero() {
		return fmt.Errorf("%w: Date: required", ErrInvalidSession)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSession, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
