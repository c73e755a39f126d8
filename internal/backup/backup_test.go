package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conorfennell/phrasebook/internal/config"
	"github.com/conorfennell/phrasebook/internal/domain"
)

type memSource struct {
	cards    []domain.Card
	payloads map[string][]byte
}

func (m *memSource) ListAll(context.Context) ([]domain.Card, error) {
	return m.cards, nil
}

func (m *memSource) GetPayload(_ context.Context, id string) ([]byte, error) {
	return m.payloads[id], nil
}

func newExporter(t *testing.T, src Source) (*Exporter, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "backup")
	cfg := config.BackupConfig{Dir: dir, AuthorName: "Practice Bot", AuthorEmail: "bot@example.com"}
	e := New(cfg, src, zap.NewNop())
	e.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return e, dir
}

func commitCount(t *testing.T, dir string) int {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	iter, err := repo.Log(&git.LogOptions{})
	require.NoError(t, err)
	n := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	}))
	return n
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	a := domain.NewCard("Lick A", domain.Trim{StartSec: 0, EndSec: 2}, now)
	a.AudioBlobID = a.ID
	b := domain.NewCard("Lick B", domain.Trim{StartSec: 1, EndSec: 3}, now)
	b.AudioBlobID = b.ID
	src := &memSource{
		cards:    []domain.Card{a, b},
		payloads: map[string][]byte{a.ID: []byte("aaaa"), b.ID: []byte("bbbb")},
	}
	e, dir := newExporter(t, src)

	t.Run("first run initialises and commits", func(t *testing.T) {
		res, err := e.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Cards)
		assert.Equal(t, 4, res.Written)
		assert.False(t, res.Commit.IsZero())

		doc, err := os.ReadFile(filepath.Join(dir, "cards", a.ID+".yaml"))
		require.NoError(t, err)
		var got domain.Card
		require.NoError(t, yaml.Unmarshal(doc, &got))
		assert.Equal(t, "Lick A", got.Title)
		assert.Equal(t, a.Trim, got.Trim)

		audio, err := os.ReadFile(filepath.Join(dir, "audio", b.ID+".bin"))
		require.NoError(t, err)
		assert.Equal(t, []byte("bbbb"), audio)

		repo, err := git.PlainOpen(dir)
		require.NoError(t, err)
		commit, err := repo.CommitObject(res.Commit)
		require.NoError(t, err)
		assert.Equal(t, "Practice Bot", commit.Author.Name)
		assert.Equal(t, "bot@example.com", commit.Author.Email)
	})

	t.Run("unchanged library makes no commit", func(t *testing.T) {
		res, err := e.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Written)
		assert.True(t, res.Commit.IsZero())
		assert.Equal(t, 1, commitCount(t, dir))
	})

	t.Run("edited card is rewritten", func(t *testing.T) {
		src.cards[0].Comments = "land on the third"
		res, err := e.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Written)
		assert.False(t, res.Commit.IsZero())
		assert.Equal(t, 2, commitCount(t, dir))
	})

	t.Run("deleted card files are removed", func(t *testing.T) {
		src.cards = src.cards[:1]
		delete(src.payloads, b.ID)

		res, err := e.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Removed)
		assert.False(t, res.Commit.IsZero())
		assert.NoFileExists(t, filepath.Join(dir, "cards", b.ID+".yaml"))
		assert.NoFileExists(t, filepath.Join(dir, "audio", b.ID+".bin"))
		assert.FileExists(t, filepath.Join(dir, "cards", a.ID+".yaml"))
		assert.Equal(t, 3, commitCount(t, dir))
	})
}

func TestRunEmptyLibrary(t *testing.T) {
	e, dir := newExporter(t, &memSource{})
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Cards)
	assert.True(t, res.Commit.IsZero())
	assert.DirExists(t, filepath.Join(dir, ".git"))
}

func TestWriteIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.bin")

	written, err := writeIfChanged(path, []byte("abcd"))
	require.NoError(t, err)
	assert.True(t, written, "missing file is written")

	written, err = writeIfChanged(path, []byte("abcd"))
	require.NoError(t, err)
	assert.False(t, written, "identical bytes are left alone")

	written, err = writeIfChanged(path, []byte("abce"))
	require.NoError(t, err)
	assert.True(t, written, "same length, different bytes")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("abce"), got)
}
