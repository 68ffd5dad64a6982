package security

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeHash(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"empty", nil, "5381"},
		{"single byte", []byte("a"), "177670"},
		{"two bytes", []byte("ab"), "5863208"},
		{"high byte is signed", []byte{0xFF}, "177572"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CodeHash(bytes.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeHashWraps(t *testing.T) {
	// long inputs overflow uint32 many times and must stay decimal
	got, err := CodeHash(strings.NewReader(strings.Repeat("counter-strike", 10000)))
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{1,10}$`, got)
}

func TestFileCodeHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.bin")
	require.NoError(t, os.WriteFile(path, []byte("ab"), 0o600))

	got, err := FileCodeHash(path)
	require.NoError(t, err)
	assert.Equal(t, "5863208", got)

	_, err = FileCodeHash(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestExecutableCodeHash(t *testing.T) {
	sum := ExecutableCodeHash()
	assert.NotEmpty(t, sum)

	exe, err := os.Executable()
	require.NoError(t, err)
	want, err := FileCodeHash(exe)
	require.NoError(t, err)
	assert.Equal(t, want, sum)
}
