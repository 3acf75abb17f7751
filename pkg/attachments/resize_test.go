package attachments

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestResizeImageBytesWithinBoundsKeepsAspectRatio(t *testing.T) {
	data := encodeTestJPEG(t, 400, 200)

	resized, mime, err := ResizeImageBytes(data, 100, 100, 85)
	if err != nil {
		t.Fatalf("ResizeImageBytes: %v", err)
	}
	if mime != "image/jpeg" {
		t.Errorf("mime = %q, want image/jpeg", mime)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("decoding resized image: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("resized dims = (%d,%d), want (100,50)", cfg.Width, cfg.Height)
	}
}

func TestResizeImageBytesSkipsUpscale(t *testing.T) {
	data := encodeTestJPEG(t, 50, 50)

	resized, _, err := ResizeImageBytes(data, 200, 200, 85)
	if err != nil {
		t.Fatalf("ResizeImageBytes: %v", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("decoding resized image: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 50 {
		t.Errorf("resized dims = (%d,%d), want unchanged (50,50)", cfg.Width, cfg.Height)
	}
}

func TestTargetRatioSingleBound(t *testing.T) {
	if r := targetRatio(200, 100, 100, 0); r != 0.5 {
		t.Errorf("targetRatio with only maxW = %v, want 0.5", r)
	}
	if r := targetRatio(100, 200, 0, 100); r != 0.5 {
		t.Errorf("targetRatio with only maxH = %v, want 0.5", r)
	}
	if r := targetRatio(100, 100, 0, 0); r != 1.0 {
		t.Errorf("targetRatio with no bounds = %v, want 1.0", r)
	}
}
