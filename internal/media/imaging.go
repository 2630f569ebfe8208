package media

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// ImagingResizer is the pure-Go default backend.
type ImagingResizer struct{}

func (ImagingResizer) Name() string { return "imaging" }

func (ImagingResizer) Resize(data []byte, tier Tier) ([]byte, error) {
	if _, err := checkSource(data); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	size := tier.Size()
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
