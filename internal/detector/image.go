package detector

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// DecodeImage decodes image bytes, applying the EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// OpenImage reads and decodes an image file, applying the EXIF orientation.
func OpenImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return img, nil
}

// Dimensions returns the pixel size of img.
func Dimensions(img image.Image) facematch.Dimensions {
	b := img.Bounds()
	return facematch.Dimensions{Width: b.Dx(), Height: b.Dy()}
}

// fitWithin shrinks img so its longest side is at most maxSize. The factor
// maps source coordinates to the returned image (1 when unchanged).
func fitWithin(img image.Image, maxSize int) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxSize <= 0 || longest <= maxSize {
		return img, 1
	}
	fitted := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	return fitted, float64(fitted.Bounds().Dx()) / float64(b.Dx())
}

// scaleImage resizes img by factor. Factor 1 returns img unchanged.
func scaleImage(img image.Image, factor float64) image.Image {
	if factor == 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// encodeJPEG encodes img for upload to the detector service.
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(constants.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
