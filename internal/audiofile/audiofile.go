// Package audiofile reads recorded audio from disk and checks that it looks
// like audio before it is stored as a card payload.
package audiofile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotAudio is returned for content that is not a recognised audio container.
var ErrNotAudio = errors.New("not an audio file")

// Containers that browser recorders emit for audio-only streams.
var audioContainers = []string{
	"application/ogg",
	"video/webm",
	"video/mp4",
}

// Detect returns the MIME type of b, or ErrNotAudio when b is empty or not an
// audio container.
func Detect(b []byte) (string, error) {
	if len(b) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrNotAudio)
	}
	mtype := mimetype.Detect(b)
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return mtype.String(), nil
		}
	}
	for _, c := range audioContainers {
		if mtype.Is(c) {
			return mtype.String(), nil
		}
	}
	return "", fmt.Errorf("%w: detected %s", ErrNotAudio, mtype.String())
}

// Read loads the file at path and checks that it is audio.
func Read(path string) ([]byte, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio file %s: %w", path, err)
	}
	mime, err := Detect(b)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return b, mime, nil
}

// Extension is the usual file extension for payload b, including the leading
// dot, or ".bin" when it is unknown.
func Extension(b []byte) string {
	if ext := mimetype.Detect(b).Extension(); ext != "" {
		return ext
	}
	return ".bin"
}
