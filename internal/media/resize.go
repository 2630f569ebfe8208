package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"time"

	"thumbnail-gallery/internal/metrics"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MaxImagePixels bounds the decoded size of a source image (~40MP, about
// 160MB as RGBA).
const MaxImagePixels = 40_000_000

// JPEGQuality is used by every backend when encoding thumbnails.
const JPEGQuality = 85

var (
	// ErrUnsupportedFormat marks source bytes no backend can decode.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrImageTooLarge marks sources above MaxImagePixels.
	ErrImageTooLarge = errors.New("image too large")
)

// UnsupportedFormatError reports an image that could not be turned into
// thumbnails. The image has been removed by the time this is reported.
type UnsupportedFormatError struct {
	ImageID int64
	Err     error
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("image %d: %v", e.ImageID, e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// Resizer produces one encoded thumbnail for one tier.
type Resizer interface {
	Name() string
	Resize(data []byte, tier Tier) ([]byte, error)
}

// NewResizer returns the backend registered under name. The vips backend
// requires InitVips to have succeeded.
func NewResizer(name string) (Resizer, error) {
	switch name {
	case "", "imaging":
		return ImagingResizer{}, nil
	case "nfnt":
		return NfntResizer{}, nil
	case "vips":
		if !IsVipsAvailable() {
			return nil, errors.New("libvips not initialized")
		}
		return VipsResizer{}, nil
	default:
		return nil, fmt.Errorf("unknown resize backend %q", name)
	}
}

// Timed wraps a Resizer so each call is recorded in the resize histogram.
func Timed(r Resizer) Resizer {
	return timedResizer{r}
}

type timedResizer struct {
	Resizer
}

func (t timedResizer) Resize(data []byte, tier Tier) ([]byte, error) {
	start := time.Now()
	out, err := t.Resizer.Resize(data, tier)
	metrics.ResizeDuration.WithLabelValues(tier.String(), t.Name()).Observe(time.Since(start).Seconds())
	return out, err
}

// checkSource validates the header and dimensions of data before a full
// decode.
func checkSource(data []byte) (string, error) {
	format := DetectFormat(data)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		metrics.ThumbnailDecodeByFormat.WithLabelValues("unknown").Inc()
		return format, fmt.Errorf("%w (%s): %v", ErrUnsupportedFormat, format, err)
	}
	metrics.ThumbnailDecodeByFormat.WithLabelValues(format).Inc()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return format, fmt.Errorf("%w: empty %s image", ErrUnsupportedFormat, format)
	}
	if cfg.Width*cfg.Height > MaxImagePixels {
		return format, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return format, nil
}

// DetectFormat identifies an image by its magic bytes.
func DetectFormat(data []byte) string {
	header := data
	if len(header) > 32 {
		header = header[:32]
	}

	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg"
	case len(header) >= 8 && bytes.Equal(header[:4], []byte{0x89, 'P', 'N', 'G'}):
		return "png"
	case len(header) >= 4 && bytes.Equal(header[:4], []byte("GIF8")):
		return "gif"
	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return "webp"
	case len(header) >= 2 && header[0] == 'B' && header[1] == 'M':
		return "bmp"
	case len(header) >= 4 && (bytes.Equal(header[:4], []byte{'I', 'I', 0x2A, 0x00}) ||
		bytes.Equal(header[:4], []byte{'M', 'M', 0x00, 0x2A})):
		return "tiff"
	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return "heif"
		case "avif", "avis":
			return "avif"
		}
	}
	return "unknown"
}
