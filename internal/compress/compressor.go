// Package compress re-encodes images to shrink them before upload.
package compress

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

var (
	ErrNotImage          = errors.New("input is not an image")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Format is an output encoding
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// FormatFromExt picks the output encoding from a file name
func FormatFromExt(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// ImageSource abstracts the reading of an image
type ImageSource interface {
	Open() (io.ReadCloser, error)
	Name() string
}

// FileSource implements ImageSource for local filesystem
type FileSource struct {
	Path string
}

func (f *FileSource) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

func (f *FileSource) Name() string {
	return filepath.Base(f.Path)
}

// Config holds configuration for the compressor
type Config struct {
	// Quality for lossy encoders, 1-100
	Quality int

	// MaxWidth downscales wider images, keeping the aspect ratio. 0 disables.
	MaxWidth int
}

// Compressor handles decode -> resize -> encode
type Compressor struct {
	Config Config
}

// New creates a compressor
func New(config Config) *Compressor {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 80
	}
	return &Compressor{Config: config}
}

// Result describes a finished compression
type Result struct {
	From        string
	To          string
	Format      Format
	Width       int
	Height      int
	BytesBefore int64
	BytesAfter  int64
}

// Saved returns the number of bytes saved, negative when the output grew
func (r *Result) Saved() int64 {
	return r.BytesBefore - r.BytesAfter
}

// CompressFile compresses from into to. An empty to overwrites from.
func (c *Compressor) CompressFile(from, to string) (*Result, error) {
	if to == "" {
		to = from
	}

	format, err := FormatFromExt(to)
	if err != nil {
		return nil, err
	}

	before, err := os.Stat(from)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(to)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Write next to the destination so the final rename stays on one filesystem
	tmp, err := os.CreateTemp(dir, ".allez-*"+filepath.Ext(to))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bounds, err := c.Compress(&FileSource{Path: from}, tmp, format)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}

	// CreateTemp uses 0600, keep the source permissions instead
	if err := os.Chmod(tmp.Name(), before.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("failed to set permissions on %s: %w", to, err)
	}

	if err := os.Rename(tmp.Name(), to); err != nil {
		return nil, fmt.Errorf("failed to replace %s: %w", to, err)
	}

	after, err := os.Stat(to)
	if err != nil {
		return nil, err
	}

	result := &Result{
		From:        from,
		To:          to,
		Format:      format,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		BytesBefore: before.Size(),
		BytesAfter:  after.Size(),
	}

	log.Debug().
		Str("from", from).
		Str("to", to).
		Int64("before", result.BytesBefore).
		Int64("after", result.BytesAfter).
		Msg("Image compressed")

	return result, nil
}

// Compress decodes src, downscales it if needed and encodes it to w.
// It returns the bounds of the encoded image.
func (c *Compressor) Compress(src ImageSource, w io.Writer, format Format) (image.Rectangle, error) {
	// 1. Sniff
	if err := c.checkImage(src); err != nil {
		return image.Rectangle{}, err
	}

	// 2. Decode
	reader, err := src.Open()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("failed to open source for decoding: %w", err)
	}
	defer reader.Close()

	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("failed to decode image: %w", err)
	}

	// 3. Resize
	if c.Config.MaxWidth > 0 && img.Bounds().Dx() > c.Config.MaxWidth {
		img = imaging.Resize(img, c.Config.MaxWidth, 0, imaging.Lanczos)
	}

	// 4. Encode
	if err := c.encode(w, img, format); err != nil {
		return image.Rectangle{}, err
	}
	return img.Bounds(), nil
}

func (c *Compressor) checkImage(src ImageSource) error {
	reader, err := src.Open()
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer reader.Close()

	mtype, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("failed to detect type of %s: %w", src.Name(), err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return fmt.Errorf("%w: %s is %s", ErrNotImage, src.Name(), mtype.String())
	}
	return nil
}

func (c *Compressor) encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatJPEG:
		if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(c.Config.Quality)); err != nil {
			return fmt.Errorf("failed to encode JPEG: %w", err)
		}
	case FormatPNG:
		if err := imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
			return fmt.Errorf("failed to encode PNG: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(w, img, &webp.Options{Quality: float32(c.Config.Quality)}); err != nil {
			return fmt.Errorf("failed to encode WebP: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return nil
}
