package audiofile

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wavHeader builds a minimal RIFF/WAVE file with n bytes of silence.
func wavHeader(n int) []byte {
	b := make([]byte, 44+n)
	copy(b[0:], "RIFF")
	binary.LittleEndian.PutUint32(b[4:], uint32(36+n))
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1)
	binary.LittleEndian.PutUint16(b[22:], 1)
	binary.LittleEndian.PutUint32(b[24:], 8000)
	binary.LittleEndian.PutUint32(b[28:], 16000)
	binary.LittleEndian.PutUint16(b[32:], 2)
	binary.LittleEndian.PutUint16(b[34:], 16)
	copy(b[36:], "data")
	binary.LittleEndian.PutUint32(b[40:], uint32(n))
	return b
}

func TestDetect(t *testing.T) {
	testCases := []struct {
		name    string
		input   []byte
		wantErr bool
	}{
		{name: "WAV", input: wavHeader(64)},
		{name: "Ogg", input: append([]byte("OggS\x00\x02"), make([]byte, 64)...)},
		{name: "Plain text", input: []byte("these are not the notes you are looking for"), wantErr: true},
		{name: "PNG", input: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), wantErr: true},
		{name: "Empty", input: nil, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mime, err := Detect(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrNotAudio)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, mime)
		})
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "lick.wav")
	require.NoError(t, os.WriteFile(wav, wavHeader(128), 0o644))
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))

	b, mime, err := Read(wav)
	require.NoError(t, err)
	assert.Len(t, b, 44+128)
	assert.Equal(t, "audio/wav", mime)
	assert.Equal(t, ".wav", Extension(b))

	_, _, err = Read(txt)
	assert.ErrorIs(t, err, ErrNotAudio)

	_, _, err = Read(filepath.Join(dir, "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
