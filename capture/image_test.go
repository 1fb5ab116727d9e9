package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestDownscaleClampsLongestSide(t *testing.T) {
	data := encodePNG(t, 400, 100)
	out, err := Downscale(data, 200)
	if err != nil {
		t.Fatalf("Downscale() error = %v", err)
	}
	w, h := decodeSize(t, out)
	if w != 200 || h != 50 {
		t.Fatalf("scaled to %dx%d, want 200x50", w, h)
	}
}

func TestDownscalePortraitUsesHeight(t *testing.T) {
	data := encodePNG(t, 100, 400)
	out, err := Downscale(data, 100)
	if err != nil {
		t.Fatalf("Downscale() error = %v", err)
	}
	w, h := decodeSize(t, out)
	if w != 25 || h != 100 {
		t.Fatalf("scaled to %dx%d, want 25x100", w, h)
	}
}

func TestDownscaleWithinBoundIsUntouched(t *testing.T) {
	data := encodePNG(t, 100, 80)
	out, err := Downscale(data, 200)
	if err != nil {
		t.Fatalf("Downscale() error = %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("frame within bound was re-encoded")
	}
}

func TestDownscaleDisabled(t *testing.T) {
	data := []byte("not an image")
	out, err := Downscale(data, 0)
	if err != nil || !bytes.Equal(out, data) {
		t.Fatalf("maxDim 0 must pass data through, got %v", err)
	}
}

func TestDownscaleRejectsGarbage(t *testing.T) {
	if _, err := Downscale([]byte("garbage"), 100); err == nil {
		t.Fatalf("expected decode error")
	}
}
