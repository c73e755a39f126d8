// Package manifest reads YAML files that describe many cards at once.
//
//	cards:
//	  - title: Donna Lee, bars 1-4
//	    source: Charlie Parker
//	    tags: [bebop]
//	    audio: clips/donna-lee.ogg
//	    trim: {start_sec: 1.5, end_sec: 6}
//	    bpm_target: 180
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conorfennell/phrasebook/internal/domain"
)

// ErrInvalidEntry is wrapped by errors about a single manifest entry.
var ErrInvalidEntry = errors.New("invalid manifest entry")

// Manifest is a parsed import file.
type Manifest struct {
	Cards []Entry `yaml:"cards"`

	// Dir is the directory audio paths are resolved against.
	Dir string `yaml:"-"`
}

// Entry describes one card to create.
type Entry struct {
	Title     string      `yaml:"title"`
	Source    string      `yaml:"source"`
	Comments  string      `yaml:"comments"`
	Tags      []string    `yaml:"tags"`
	Audio     string      `yaml:"audio"`
	Trim      domain.Trim `yaml:"trim"`
	BPMTarget int         `yaml:"bpm_target"`
}

// ParseFile reads the manifest at path. Relative audio paths are resolved
// against the manifest's directory.
func ParseFile(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file, filepath.Dir(path))
}

// Parse decodes a manifest from r. Unknown keys are rejected, as is any entry
// without audio or with an invalid trim window.
func Parse(r io.Reader, dir string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Dir: dir}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	for i, e := range m.Cards {
		if e.Audio == "" {
			return nil, fmt.Errorf("%w: cards[%d] (%q) has no audio", ErrInvalidEntry, i, e.Title)
		}
		if err := e.Trim.Validate(); err != nil {
			return nil, fmt.Errorf("%w: cards[%d] (%q): %w", ErrInvalidEntry, i, e.Title, err)
		}
		if e.BPMTarget < 0 {
			return nil, fmt.Errorf("%w: cards[%d] (%q) has negative bpm_target", ErrInvalidEntry, i, e.Title)
		}
	}
	return m, nil
}

// AudioPath returns the absolute or manifest-relative location of e's audio.
func (m *Manifest) AudioPath(e Entry) string {
	if filepath.IsAbs(e.Audio) {
		return e.Audio
	}
	return filepath.Join(m.Dir, e.Audio)
}

// Card builds a new card for e. The payload is attached separately.
func (e Entry) Card(now time.Time) domain.Card {
	card := domain.NewCard(e.Title, e.Trim, now)
	card.Source = e.Source
	card.Comments = e.Comments
	card.Tags = append([]string(nil), e.Tags...)
	card.BPMTarget = e.BPMTarget
	return card
}
