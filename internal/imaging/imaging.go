package imaging

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

// ErrEmptyImage is returned when the input bytes are empty or cannot be
// decoded as a supported image format. It is the only error the face
// pipeline surfaces to callers; every other failure resolves to a default.
var ErrEmptyImage = errors.New("imaging: empty or undecodable image")

// faceRegionPadding is the fraction of the box width/height added on each
// side when cropping a detected face.
const faceRegionPadding = 0.3

// Box is a face bounding box in source-image pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 int
}

// Valid reports whether the box encloses a positive area.
func (b Box) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Decode parses raw upload bytes into an image. JPEG and PNG are supported.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// ToRGBA returns the image as an *image.RGBA, copying only when necessary.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, xdraw.Src)
	return rgba
}

// ResizeMaxDimension scales the image down so its longest side is at most
// maxDim pixels, preserving aspect ratio. Images already within the limit
// are returned as an RGBA copy without scaling.
func ResizeMaxDimension(img image.Image, maxDim int) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDim || longest == 0 {
		return ToRGBA(img)
	}

	scale := float64(maxDim) / float64(longest)
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}

// CropFace extracts the padded face region for a detected box. The padding
// is clamped to the image bounds rather than rejected, so the result is
// never empty; degenerate input yields a 1x1 region.
func CropFace(img image.Image, box Box) *image.RGBA {
	src := ToRGBA(img)
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()

	padX := int(math.Round(float64(box.X2-box.X1) * faceRegionPadding))
	padY := int(math.Round(float64(box.Y2-box.Y1) * faceRegionPadding))

	x1 := clampInt(box.X1-padX, 0, w)
	y1 := clampInt(box.Y1-padY, 0, h)
	x2 := clampInt(box.X2+padX, 0, w)
	y2 := clampInt(box.Y2+padY, 0, h)
	if x2 <= x1 {
		x1 = clampInt(x1, 0, w-1)
		x2 = x1 + 1
	}
	if y2 <= y1 {
		y1 = clampInt(y1, 0, h-1)
		y2 = y1 + 1
	}

	region := src.SubImage(image.Rect(x1, y1, x2, y2)).(*image.RGBA)
	// Re-anchor at the origin so downstream pixel math can assume zero-based
	// bounds.
	out := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	xdraw.Draw(out, out.Bounds(), region, region.Bounds().Min, xdraw.Src)
	return out
}

// Grayscale converts the image to 8-bit luma.
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(gray, gray.Bounds(), img, bounds.Min, xdraw.Src)
	return gray
}

// Sobel gradient thresholds for the edge map.
const (
	edgeLowThreshold  = 100
	edgeHighThreshold = 200
)

// EdgeDensity computes the fraction of edge pixels in a grayscale image
// using a Sobel gradient with high/low hysteresis thresholds: a pixel is an
// edge when its gradient magnitude exceeds the high threshold, or exceeds
// the low threshold while touching a strong edge.
func EdgeDensity(gray *image.Gray) float64 {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}

	strong := make([]bool, w*h)
	weak := make([]bool, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := int(gray.GrayAt(x+1, y-1).Y) + 2*int(gray.GrayAt(x+1, y).Y) + int(gray.GrayAt(x+1, y+1).Y) -
				int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x-1, y).Y) - int(gray.GrayAt(x-1, y+1).Y)
			gy := int(gray.GrayAt(x-1, y+1).Y) + 2*int(gray.GrayAt(x, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y) -
				int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x, y-1).Y) - int(gray.GrayAt(x+1, y-1).Y)
			mag := math.Hypot(float64(gx), float64(gy))
			if mag >= edgeHighThreshold {
				strong[y*w+x] = true
			} else if mag >= edgeLowThreshold {
				weak[y*w+x] = true
			}
		}
	}

	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			idx := y*w + x
			if strong[idx] {
				edges++
				continue
			}
			if weak[idx] && hasStrongNeighbor(strong, x, y, w) {
				edges++
			}
		}
	}
	return float64(edges) / float64(w*h)
}

func hasStrongNeighbor(strong []bool, x, y, w int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if strong[(y+dy)*w+(x+dx)] {
				return true
			}
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
