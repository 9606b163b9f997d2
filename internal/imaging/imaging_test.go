package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeRejectsEmptyAndGarbage(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage for nil input, got %v", err)
	}
	if _, err := Decode([]byte{}); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage for empty input, got %v", err)
	}
	if _, err := Decode([]byte("definitely not an image")); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage for garbage input, got %v", err)
	}
}

func TestDecodeAcceptsPNG(t *testing.T) {
	data := encodePNG(t, image.NewRGBA(image.Rect(0, 0, 8, 6)))

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Fatalf("unexpected bounds: %v", img.Bounds())
	}
}

func TestResizeMaxDimensionScalesDown(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1280, 640))

	dst := ResizeMaxDimension(src, 640)
	if dst.Bounds().Dx() != 640 || dst.Bounds().Dy() != 320 {
		t.Fatalf("expected 640x320, got %v", dst.Bounds())
	}
}

func TestResizeMaxDimensionKeepsSmallImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 320, 240))

	dst := ResizeMaxDimension(src, 640)
	if dst.Bounds().Dx() != 320 || dst.Bounds().Dy() != 240 {
		t.Fatalf("expected unchanged dimensions, got %v", dst.Bounds())
	}
}

func TestCropFacePadsRegion(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 200))

	// 20x20 box gets 6 pixels of padding on each side.
	out := CropFace(src, Box{X1: 40, Y1: 40, X2: 60, Y2: 60})
	if out.Bounds().Dx() != 32 || out.Bounds().Dy() != 32 {
		t.Fatalf("expected 32x32 crop, got %v", out.Bounds())
	}
	if out.Bounds().Min != (image.Point{}) {
		t.Fatalf("expected crop anchored at origin, got %v", out.Bounds())
	}
}

func TestCropFaceClampsToImageEdges(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))

	// Padding would extend past the top-left corner.
	out := CropFace(src, Box{X1: 2, Y1: 2, X2: 22, Y2: 22})
	if out.Bounds().Dx() != 28 || out.Bounds().Dy() != 28 {
		t.Fatalf("expected 28x28 clamped crop, got %v", out.Bounds())
	}
}

func TestCropFaceNeverReturnsEmpty(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))

	out := CropFace(src, Box{X1: 50, Y1: 50, X2: 50, Y2: 50})
	if out.Bounds().Empty() {
		t.Fatal("expected non-empty crop for a degenerate box")
	}
}

func TestCropFacePreservesPixels(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	src.Set(50, 50, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	out := CropFace(src, Box{X1: 40, Y1: 40, X2: 60, Y2: 60})
	// The crop starts at (34,34), so the marked source pixel lands at (16,16).
	got := out.RGBAAt(16, 16)
	if got.R != 200 || got.G != 10 || got.B != 10 {
		t.Fatalf("expected marked pixel carried into the crop, got %+v", got)
	}
}

func TestEdgeDensityFlatAndStriped(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	if density := EdgeDensity(flat); density != 0 {
		t.Fatalf("expected zero density for flat image, got %f", density)
	}

	striped := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x%4 < 2 {
				striped.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	if density := EdgeDensity(striped); density <= 0.3 {
		t.Fatalf("expected high density for dense stripes, got %f", density)
	}

	tiny := image.NewGray(image.Rect(0, 0, 2, 2))
	if density := EdgeDensity(tiny); density != 0 {
		t.Fatalf("expected zero density below the kernel size, got %f", density)
	}
}

func TestGrayscaleDimensions(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 50, 40))

	gray := Grayscale(src)
	if gray.Bounds().Dx() != 40 || gray.Bounds().Dy() != 30 {
		t.Fatalf("unexpected grayscale bounds: %v", gray.Bounds())
	}
	if gray.Bounds().Min != (image.Point{}) {
		t.Fatalf("expected zero-based bounds, got %v", gray.Bounds())
	}
}
