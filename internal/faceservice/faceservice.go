package faceservice

import (
	"context"
	"image"

	"github.com/example/auracheck/internal/imaging"
)

// Detection is a single face located in an image.
type Detection struct {
	Box        imaging.Box
	Confidence float64
}

// EmotionResult carries the dominant emotion classification for a face.
// Confidence is the raw per-class probability in percent, as reported by
// the analysis model.
type EmotionResult struct {
	Dominant   string
	Confidence float64
}

// DemographicsResult carries the age/gender estimate for a face.
type DemographicsResult struct {
	Age    float64
	Gender string
}

// CompareResult is the outcome of an embedding-distance comparison between
// two face images.
type CompareResult struct {
	Verified bool
	Distance float64
}

// Landmark is a 2D facial landmark with coordinates normalized to [0,1]
// relative to the image dimensions.
type Landmark struct {
	X float64
	Y float64
}

// Detector locates faces in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Analyzer exposes the emotion and demographics capabilities of the
// analysis model. Implementations must not require a detectable face;
// they analyze whatever region they are given.
type Analyzer interface {
	AnalyzeEmotion(ctx context.Context, img image.Image) (*EmotionResult, error)
	AnalyzeDemographics(ctx context.Context, img image.Image) (*DemographicsResult, error)
}

// Comparer measures embedding distance between a probe face and a stored
// reference face.
type Comparer interface {
	Compare(ctx context.Context, probe, reference image.Image, threshold float64) (*CompareResult, error)
}

// Landmarker runs the face-mesh landmark model. A nil landmark slice with a
// nil error means no face was found in the image.
type Landmarker interface {
	// Available reports whether the landmark capability is usable at all.
	// When it is not, liveness checking fails closed.
	Available() bool
	Landmarks(ctx context.Context, rgb image.Image) ([]Landmark, error)
}
