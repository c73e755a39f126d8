// Package cards persists cards and their audio payloads so the two records
// never disagree: both are written, or removed, in one transaction.
//
// Concurrent saves of the same card are last-write-wins at card granularity.
// Two in-memory copies that each append a session will not be merged; the
// later save replaces the earlier one's session list.
package cards

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/conorfennell/phrasebook/internal/domain"
	"github.com/conorfennell/phrasebook/internal/store"
)

// ErrPayloadRequired is returned when the first save of a card carries no
// audio. A stored card always has a payload.
var ErrPayloadRequired = errors.New("payload required for new card")

// DefaultMaxSessions is the per-card session cap when none is configured.
const DefaultMaxSessions = 500

// Repository is the card and payload store used by the UI layer.
type Repository struct {
	db          *store.DB
	logger      *zap.Logger
	now         func() time.Time
	maxSessions int
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithMaxSessions caps the sessions kept on a card. Older sessions beyond the
// cap are moved to the archive when the card is saved.
func WithMaxSessions(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.maxSessions = n
		}
	}
}

func NewRepository(db *store.DB, logger *zap.Logger, opts ...Option) *Repository {
	r := &Repository{
		db:          db,
		logger:      logger,
		now:         time.Now,
		maxSessions: DefaultMaxSessions,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListAll returns every card in no particular order.
func (r *Repository) ListAll(ctx context.Context) ([]domain.Card, error) {
	var rows []cardRow
	if err := r.db.Conn().SelectContext(ctx, &rows, `SELECT `+cardColumns+` FROM cards`); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	cards := make([]domain.Card, 0, len(rows))
	for _, row := range rows {
		c, err := row.toCard()
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Get returns the card with the given id, or nil if there is none.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Card, error) {
	return getCard(ctx, r.db.Conn(), id)
}

func getCard(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Card, error) {
	var row cardRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	c, err := row.toCard()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetPayload returns the audio bytes stored for a card, or nil if there are none.
func (r *Repository) GetPayload(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := r.db.Conn().GetContext(ctx, &data, `SELECT data FROM blobs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Payload not found
		}
		return nil, fmt.Errorf("failed to get payload %s: %w", id, err)
	}
	return data, nil
}

// Save upserts the card and, when payload is non-empty, its audio, in one
// transaction. On success the caller's card reflects what was stored: a new
// ID if it had none, AudioBlobID, CreatedAt and a fresh UpdatedAt. On failure
// the card is left untouched.
//
// Sessions beyond the cap are archived oldest first and their best tempo is
// kept in ArchivedMaxTempo, so MaxTempo does not drop.
func (r *Repository) Save(ctx context.Context, card *domain.Card, payload []byte) error {
	if card == nil {
		return fmt.Errorf("%w: nil card", domain.ErrInvalidCard)
	}
	staged := card.Clone().WithDefaults()
	if staged.ID == "" {
		staged.ID = uuid.NewString()
	}
	hasPayload := len(payload) > 0
	if hasPayload {
		staged.AudioBlobID = staged.ID
	}
	if err := staged.Validate(); err != nil {
		return err
	}

	now := r.now().UTC()
	var overflow []domain.Session
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Read inside the transaction so a concurrent delete cannot leave a
		// card without its payload.
		existing, err := getCard(ctx, tx, staged.ID)
		if err != nil {
			return err
		}
		switch {
		case existing != nil:
			staged.CreatedAt = existing.CreatedAt
			staged.AudioBlobID = staged.ID
			staged.ArchivedMaxTempo = existing.ArchivedMaxTempo
		case !hasPayload:
			return ErrPayloadRequired
		default:
			staged.ArchivedMaxTempo = 0
			if staged.CreatedAt.IsZero() {
				staged.CreatedAt = now
			}
		}
		staged.UpdatedAt = now

		overflow = r.splitOverflow(&staged)
		for _, s := range overflow {
			for _, t := range s.TemposAchieved {
				staged.ArchivedMaxTempo = max(staged.ArchivedMaxTempo, t)
			}
		}

		row, err := toRow(staged)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidCard, err)
		}
		if err := upsertCard(ctx, tx, row); err != nil {
			return err
		}
		if hasPayload {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO blobs (id, data) VALUES (?, ?)
				ON CONFLICT(id) DO UPDATE SET data = excluded.data
			`, staged.ID, payload); err != nil {
				return fmt.Errorf("failed to write payload: %w", err)
			}
		}
		return archiveSessions(ctx, tx, staged.ID, overflow, now)
	})
	if errors.Is(err, ErrPayloadRequired) {
		return fmt.Errorf("card %s: %w", staged.ID, ErrPayloadRequired)
	}
	if err != nil {
		r.logger.Warn("save aborted", zap.String("card_id", staged.ID), zap.Error(err))
		return fmt.Errorf("failed to save card %s: %w", staged.ID, err)
	}

	r.logger.Debug("card saved",
		zap.String("card_id", staged.ID),
		zap.Bool("payload", hasPayload),
		zap.Int("payload_bytes", len(payload)),
		zap.Int("sessions", len(staged.Sessions)),
		zap.Int("archived", len(overflow)),
	)
	*card = staged
	return nil
}

// upsertCard updates in place on conflict. INSERT OR REPLACE would delete the
// old row first and cascade to the blob.
func upsertCard(ctx context.Context, tx *sqlx.Tx, row cardRow) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (:id, :title, :source, :comments, :tags, :created_at, :updated_at, :audio_blob_id,
			:trim_start, :trim_end, :bpm_target, :mastery_circle_of_fifths, :mastery_chromatic, :sessions, :archived_max_tempo)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			comments = excluded.comments,
			tags = excluded.tags,
			updated_at = excluded.updated_at,
			audio_blob_id = excluded.audio_blob_id,
			trim_start = excluded.trim_start,
			trim_end = excluded.trim_end,
			bpm_target = excluded.bpm_target,
			mastery_circle_of_fifths = excluded.mastery_circle_of_fifths,
			mastery_chromatic = excluded.mastery_chromatic,
			sessions = excluded.sessions,
			archived_max_tempo = excluded.archived_max_tempo
	`, row)
	if err != nil {
		return fmt.Errorf("failed to write card: %w", err)
	}
	return nil
}

// Delete removes a card, its payload and its archived sessions together.
// Deleting an unknown id succeeds.
func (r *Repository) Delete(ctx context.Context, id string) error {
	var removed int64
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_archive WHERE card_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete archived sessions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete payload: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete card: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		r.logger.Warn("delete aborted", zap.String("card_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	r.logger.Debug("card deleted", zap.String("card_id", id), zap.Bool("existed", removed > 0))
	return nil
}

// AppendSession adds s to the card's session log and persists the whole card.
// Missing session ID, card ID and date are filled in. The caller's card is
// updated only if the save commits.
func (r *Repository) AppendSession(ctx context.Context, card *domain.Card, s domain.Session) error {
	if card == nil {
		return fmt.Errorf("%w: nil card", domain.ErrInvalidCard)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CardID == "" {
		s.CardID = card.ID
	}
	if s.Date.IsZero() {
		s.Date = r.now().UTC()
	}
	if s.CardID != card.ID {
		return fmt.Errorf("%w: session for card %q appended to %q", domain.ErrInvalidSession, s.CardID, card.ID)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	staged := card.Clone()
	staged.Sessions = append(staged.Sessions, s)
	if err := r.Save(ctx, &staged, nil); err != nil {
		return err
	}
	*card = staged
	return nil
}

// ArchivedSessions returns sessions moved off the card, oldest first.
func (r *Repository) ArchivedSessions(ctx context.Context, cardID string) ([]domain.Session, error) {
	var bodies []string
	err := r.db.Conn().SelectContext(ctx, &bodies,
		`SELECT body FROM session_archive WHERE card_id = ? ORDER BY position`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived sessions for %s: %w", cardID, err)
	}
	sessions := make([]domain.Session, 0, len(bodies))
	for _, body := range bodies {
		var s domain.Session
		if err := json.Unmarshal([]byte(body), &s); err != nil {
			return nil, fmt.Errorf("archived session for %s: %w", cardID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// splitOverflow trims c.Sessions to the cap and returns the removed sessions,
// oldest first.
func (r *Repository) splitOverflow(c *domain.Card) []domain.Session {
	n := len(c.Sessions) - r.maxSessions
	if n <= 0 {
		return nil
	}
	overflow := c.Sessions[:n:n]
	c.Sessions = append([]domain.Session(nil), c.Sessions[n:]...)
	return overflow
}

func archiveSessions(ctx context.Context, tx *sqlx.Tx, cardID string, sessions []domain.Session, now time.Time) error {
	if len(sessions) == 0 {
		return nil
	}
	var last int
	if err := tx.GetContext(ctx, &last,
		`SELECT COALESCE(MAX(position), -1) FROM session_archive WHERE card_id = ?`, cardID); err != nil {
		return fmt.Errorf("failed to read archive position: %w", err)
	}
	for i, s := range sessions {
		body, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_archive (card_id, session_id, position, body, archived_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(card_id, session_id) DO NOTHING
		`, cardID, s.ID, last+1+i, string(body), formatTime(now)); err != nil {
			return fmt.Errorf("failed to archive session %s: %w", s.ID, err)
		}
	}
	return nil
}
