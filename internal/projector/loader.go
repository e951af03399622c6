package projector

import (
	"errors"
	"fmt"
	"image"
	"os"

	// Register decoders for the picture formats panoramas commonly ship in.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrSizeMismatch is returned when the decoded picture dimensions
	// disagree with the crop rectangle from the scene metadata.
	ErrSizeMismatch = errors.New("picture size does not match crop size from scene metadata")
	// ErrInvalidDisplaySize is returned for negative display dimensions.
	ErrInvalidDisplaySize = errors.New("invalid display size")
	// ErrBufferTooLarge is returned when a requested pixel buffer exceeds the
	// supported size.
	ErrBufferTooLarge = errors.New("pixel buffer size exceeds limit")
)

// maxBufferPixels bounds single buffer allocations (1 GiB of RGBA pixels).
const maxBufferPixels = 1 << 28

// LoadPicture decodes a panorama picture into an NRGBA buffer.
func LoadPicture(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not load picture %q: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("could not decode picture %q: %w", path, err)
	}

	return toNRGBA(img), nil
}

// toNRGBA returns img as an NRGBA buffer anchored at the origin, converting
// only when necessary.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == image.Pt(0, 0) {
		return n
	}

	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return out
}

// newWhiteBuffer allocates a w*h NRGBA buffer with every byte set to 255,
// matching the initial white background and fixed opaque alpha of all
// projection buffers.
func newWhiteBuffer(w, h int) (*image.NRGBA, error) {
	if w < 0 || h < 0 {
		return nil, ErrInvalidDisplaySize
	}
	if w > 0 && h > maxBufferPixels/w {
		return nil, fmt.Errorf("%w: %dx%d", ErrBufferTooLarge, w, h)
	}

	buf := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range buf.Pix {
		buf.Pix[i] = 255
	}
	return buf, nil
}
