package compress

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestFormatFromExt(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{name: "a.jpg", want: FormatJPEG},
		{name: "a.JPEG", want: FormatJPEG},
		{name: "dir/a.png", want: FormatPNG},
		{name: "a.webp", want: FormatWebP},
		{name: "a.gif", wantErr: true},
		{name: "noext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromExt(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompressFile_ToJPEGWithResize(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "photo.png")
	to := filepath.Join(dir, "out", "photo.jpg")
	writeTestPNG(t, from, 200, 100)

	result, err := New(Config{Quality: 70, MaxWidth: 50}).CompressFile(from, to)
	require.NoError(t, err)

	assert.Equal(t, FormatJPEG, result.Format)
	assert.Equal(t, 50, result.Width)
	assert.Equal(t, 25, result.Height, "aspect ratio is kept")
	assert.Positive(t, result.BytesAfter)

	f, err := os.Open(to)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 25, cfg.Height)
}

func TestCompressFile_InPlacePNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	writeTestPNG(t, path, 64, 64)

	result, err := New(Config{}).CompressFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, result.To)
	assert.Equal(t, 64, result.Width)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

func TestCompressFile_ToWebP(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "photo.png")
	to := filepath.Join(dir, "photo.webp")
	writeTestPNG(t, from, 100, 100)

	_, err := New(Config{Quality: 75}).CompressFile(from, to)
	require.NoError(t, err)

	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("RIFF")), "output does not look like a WebP file")
}

func TestCompressFile_SmallImageIsNotUpscaled(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "small.png")
	writeTestPNG(t, from, 20, 10)

	result, err := New(Config{MaxWidth: 100}).CompressFile(from, filepath.Join(dir, "small.jpg"))
	require.NoError(t, err)
	assert.Equal(t, 20, result.Width)
	assert.Equal(t, 10, result.Height)
}

func TestCompressFile_RejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(from, []byte("just some text"), 0644))

	_, err := New(Config{}).CompressFile(from, "")
	assert.ErrorIs(t, err, ErrNotImage)

	data, err := os.ReadFile(from)
	require.NoError(t, err)
	assert.Equal(t, "just some text", string(data), "source is untouched on failure")
}

func TestCompressFile_UnsupportedOutput(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "photo.png")
	writeTestPNG(t, from, 10, 10)

	_, err := New(Config{}).CompressFile(from, filepath.Join(dir, "photo.gif"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCompressFile_MissingSource(t *testing.T) {
	_, err := New(Config{}).CompressFile(filepath.Join(t.TempDir(), "nope.png"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_DefaultsQuality(t *testing.T) {
	assert.Equal(t, 80, New(Config{}).Config.Quality)
	assert.Equal(t, 80, New(Config{Quality: 500}).Config.Quality)
	assert.Equal(t, 60, New(Config{Quality: 60}).Config.Quality)
}

func TestCompressFile_InPlaceKeepsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	writeTestPNG(t, path, 16, 16)
	require.NoError(t, os.Chmod(path, 0640))

	_, err := New(Config{}).CompressFile(path, "")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}
