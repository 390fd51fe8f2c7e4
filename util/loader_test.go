package util

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-pillcheck/images"
)

func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()
	tray := image.NewRGBA(image.Rect(0, 0, 32, 24))

	for name, format := range map[string]images.ImageFormat{
		"b-tray.png":  images.FormatPNG,
		"a-tray.jpg":  images.FormatJPEG,
		"c-tray.webp": images.FormatWebP,
	} {
		data, err := images.Encode(tray, format)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o700))

	files, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, filepath.Join(dir, "a-tray.jpg"), files[0].Path)
	assert.Equal(t, images.FormatJPEG, files[0].Image.Format)
	assert.Equal(t, images.FormatWebP, files[2].Image.Format)
	for _, file := range files {
		assert.Equal(t, 32, file.Image.Width)
		assert.Equal(t, 24, file.Image.Height)
	}
}

func TestLoadDirectoryImagesErrors(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o600))
	_, err = LoadDirectoryImageFiles(dir)
	assert.Error(t, err)
}
