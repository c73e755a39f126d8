// Package digest computes content fingerprints for cards and their audio.
package digest

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/conorfennell/phrasebook/internal/domain"
)

// Normalize joins the parts of a card that identify the phrase it holds.
// Title and source are trimmed, lowercased and given unix line endings; the
// trim window is written in its shortest decimal form.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	return strings.Join([]string{
		normalizePart(card.Title),
		normalizePart(card.Source),
		strconv.FormatFloat(card.Trim.StartSec, 'g', -1, 64),
		strconv.FormatFloat(card.Trim.EndSec, 'g', -1, 64),
	}, "\n")
}

// Card returns the SHA-256 hex digest of the normalized card.
func Card(card domain.Card) string {
	return Bytes([]byte(Normalize(card)))
}

// Bytes returns the SHA-256 hex digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum)
}
