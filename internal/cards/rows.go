package cards

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/conorfennell/phrasebook/internal/domain"
)

const cardColumns = `id, title, source, comments, tags, created_at, updated_at, audio_blob_id,
	trim_start, trim_end, bpm_target, mastery_circle_of_fifths, mastery_chromatic, sessions, archived_max_tempo`

// cardRow is the column layout of the cards table.
type cardRow struct {
	ID                    string  `db:"id"`
	Title                 string  `db:"title"`
	Source                string  `db:"source"`
	Comments              string  `db:"comments"`
	Tags                  string  `db:"tags"`
	CreatedAt             string  `db:"created_at"`
	UpdatedAt             string  `db:"updated_at"`
	AudioBlobID           string  `db:"audio_blob_id"`
	TrimStart             float64 `db:"trim_start"`
	TrimEnd               float64 `db:"trim_end"`
	BPMTarget             int     `db:"bpm_target"`
	MasteryCircleOfFifths string  `db:"mastery_circle_of_fifths"`
	MasteryChromatic      string  `db:"mastery_chromatic"`
	Sessions              string  `db:"sessions"`
	ArchivedMaxTempo      int     `db:"archived_max_tempo"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toRow(c domain.Card) (cardRow, error) {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return cardRow{}, fmt.Errorf("failed to encode tags: %w", err)
	}
	sessions, err := json.Marshal(c.Sessions)
	if err != nil {
		return cardRow{}, fmt.Errorf("failed to encode sessions: %w", err)
	}
	return cardRow{
		ID:                    c.ID,
		Title:                 c.Title,
		Source:                c.Source,
		Comments:              c.Comments,
		Tags:                  string(tags),
		CreatedAt:             formatTime(c.CreatedAt),
		UpdatedAt:             formatTime(c.UpdatedAt),
		AudioBlobID:           c.AudioBlobID,
		TrimStart:             c.Trim.StartSec,
		TrimEnd:               c.Trim.EndSec,
		BPMTarget:             c.BPMTarget,
		MasteryCircleOfFifths: string(c.Mastery.CircleOfFifths),
		MasteryChromatic:      string(c.Mastery.Chromatic),
		Sessions:              string(sessions),
		ArchivedMaxTempo:      c.ArchivedMaxTempo,
	}, nil
}

func (r cardRow) toCard() (domain.Card, error) {
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return domain.Card{}, fmt.Errorf("card %s: bad created_at: %w", r.ID, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return domain.Card{}, fmt.Errorf("card %s: bad updated_at: %w", r.ID, err)
	}
	cof, err := domain.ParseMasteryStatus(r.MasteryCircleOfFifths)
	if err != nil {
		return domain.Card{}, fmt.Errorf("card %s: %w", r.ID, err)
	}
	chromatic, err := domain.ParseMasteryStatus(r.MasteryChromatic)
	if err != nil {
		return domain.Card{}, fmt.Errorf("card %s: %w", r.ID, err)
	}

	c := domain.Card{
		ID:          r.ID,
		Title:       r.Title,
		Source:      r.Source,
		Comments:    r.Comments,
		CreatedAt:   created,
		UpdatedAt:   updated,
		AudioBlobID: r.AudioBlobID,
		Trim:        domain.Trim{StartSec: r.TrimStart, EndSec: r.TrimEnd},
		BPMTarget:   r.BPMTarget,
		Mastery:     domain.Mastery{CircleOfFifths: cof, Chromatic: chromatic},

		ArchivedMaxTempo: r.ArchivedMaxTempo,
	}
	if err := json.Unmarshal([]byte(r.Tags), &c.Tags); err != nil {
		return domain.Card{}, fmt.Errorf("card %s: bad tags: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Sessions), &c.Sessions); err != nil {
		return domain.Card{}, fmt.Errorf("card %s: bad sessions: %w", r.ID, err)
	}
	return c, nil
}
