package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestDetectMimeAndExt(t *testing.T) {
	mimeType, ext := DetectMimeAndExt(pngHeader)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, ".png", ext)

	mimeType, _ = DetectMimeAndExt([]byte("plain text content"))
	assert.Contains(t, mimeType, "text/plain")

	mimeType, ext = DetectMimeAndExt(nil)
	assert.Equal(t, "application/octet-stream", mimeType)
	assert.Equal(t, ".png", ext)
}

func TestDetectFileMimeAndExt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, os.WriteFile(path, pngHeader, 0644))

	mimeType, ext := DetectFileMimeAndExt(path)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, ".png", ext)

	mimeType, _ = DetectFileMimeAndExt(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, "application/octet-stream", mimeType)
}
