package attachments

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ResizeImageBytes decodes an image, resizes it per spec §4.1's aspect
// ratio rule, and re-encodes it as JPEG at the given quality. maxW/maxH of
// 0 disables that bound; if both are 0 the source is re-encoded unresized.
// Returns the encoded bytes and the output MIME type ("image/jpeg").
func ResizeImageBytes(data []byte, maxW, maxH, quality int) ([]byte, string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}

	dst := resizeWithin(src, maxW, maxH)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, "", fmt.Errorf("encoding resized image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// resizeWithin scales src to fit within (maxW, maxH) preserving aspect
// ratio, per spec §4.1: ratio = min(maxW/w, maxH/h) when both bounds are
// set, otherwise the single non-zero bound alone. An image already within
// bounds is returned unscaled. Resampling uses draw.CatmullRom, the
// highest-quality kernel golang.org/x/image/draw offers and the closest
// ecosystem equivalent to a Lanczos resize.
func resizeWithin(src image.Image, maxW, maxH int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return src
	}

	ratio := targetRatio(w, h, maxW, maxH)
	if ratio >= 1.0 {
		return src
	}

	newW := maxInt(1, int(float64(w)*ratio))
	newH := maxInt(1, int(float64(h)*ratio))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func targetRatio(w, h, maxW, maxH int) float64 {
	switch {
	case maxW > 0 && maxH > 0:
		rw := float64(maxW) / float64(w)
		rh := float64(maxH) / float64(h)
		if rw < rh {
			return rw
		}
		return rh
	case maxW > 0:
		return float64(maxW) / float64(w)
	case maxH > 0:
		return float64(maxH) / float64(h)
	default:
		return 1.0
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// toDataURI encodes data as a base64 data: URI with the given MIME type,
// the wire form ResolveForRequest produces for inlined attachments.
func toDataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
