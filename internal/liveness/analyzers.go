package liveness

import (
	"context"
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/example/auracheck/internal/faceservice"
	"github.com/example/auracheck/internal/imaging"
)

// Neutral defaults substituted when an analyzer fails or times out.
const (
	defaultEmotionScore     = 0.5
	defaultLandmarkScore    = 0.5
	defaultDemographicScore = 0.6
	defaultTextureScore     = 0.6
)

// maxEmotionScore caps the emotion signal so a single over-confident
// classification cannot dominate the fusion.
const maxEmotionScore = 0.95

// Face-mesh topology indices. The landmark model emits at least
// meshPointCount ordered points per face; each eye is described by six
// points ordered corner, upper pair, corner, lower pair.
const meshPointCount = 468

var (
	leftEyeIndices  = [6]int{362, 385, 387, 263, 373, 380}
	rightEyeIndices = [6]int{33, 160, 158, 133, 153, 144}

	// Bilateral landmark pairs measured against the nose tip for the
	// symmetry signal: face edges, mouth corners, eyebrows.
	symmetryPairs = [3][2]int{{234, 454}, {93, 323}, {70, 300}}
)

const noseTipIndex = 1

func (c *Checker) analyzeEmotion(ctx context.Context, img image.Image) float64 {
	res, err := c.analyzer.AnalyzeEmotion(ctx, img)
	if err != nil {
		c.logger.Warn("emotion analysis failed", zap.Error(err))
		return defaultEmotionScore
	}
	score := res.Confidence / 100
	if score > maxEmotionScore {
		score = maxEmotionScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (c *Checker) analyzeLandmarks(ctx context.Context, rgb image.Image) landmarkScores {
	neutral := landmarkScores{eyeAspect: defaultLandmarkScore, symmetry: defaultLandmarkScore}

	points, err := c.landmarker.Landmarks(ctx, rgb)
	if err != nil {
		c.logger.Warn("landmark analysis failed", zap.Error(err))
		return neutral
	}
	if len(points) < meshPointCount {
		return neutral
	}

	return landmarkScores{
		eyeAspect: eyeAspectScore(points),
		symmetry:  symmetryScore(points),
	}
}

// eyeAspectScore maps the average eye aspect ratio of both eyes onto [0,1].
// Open eyes on a live face land well above the 0.15 floor; flat replays
// tend to collapse the vertical gaps.
func eyeAspectScore(points []faceservice.Landmark) float64 {
	left := eyeAspectRatio(points, leftEyeIndices)
	right := eyeAspectRatio(points, rightEyeIndices)
	avg := (left + right) / 2
	return clamp01((avg - 0.15) / 0.15)
}

// eyeAspectRatio implements EAR = (|p1-p5| + |p2-p4|) / (2*|p0-p3|) over the
// six ordered eye landmarks.
func eyeAspectRatio(points []faceservice.Landmark, idx [6]int) float64 {
	v1 := landmarkDistance(points[idx[1]], points[idx[5]])
	v2 := landmarkDistance(points[idx[2]], points[idx[4]])
	h := landmarkDistance(points[idx[0]], points[idx[3]])
	if h == 0 {
		return 0
	}
	return (v1 + v2) / (2 * h)
}

// symmetryScore compares the nose-tip distance to each side of three
// bilateral landmark pairs. Per-pair asymmetry is 1 - min/max; the final
// score inverts the average so perfectly symmetric faces score 1.
func symmetryScore(points []faceservice.Landmark) float64 {
	nose := points[noseTipIndex]

	var asymmetry float64
	for _, pair := range symmetryPairs {
		leftDist := landmarkDistance(nose, points[pair[0]])
		rightDist := landmarkDistance(nose, points[pair[1]])
		maxDist := math.Max(leftDist, rightDist)
		if maxDist == 0 {
			continue
		}
		asymmetry += 1 - math.Min(leftDist, rightDist)/maxDist
	}
	return 1 - asymmetry/float64(len(symmetryPairs))
}

func (c *Checker) analyzeDemographics(ctx context.Context, img image.Image) float64 {
	res, err := c.analyzer.AnalyzeDemographics(ctx, img)
	if err != nil {
		c.logger.Warn("demographics analysis failed", zap.Error(err))
		return defaultDemographicScore
	}
	// Fractional age estimates are characteristic of real faces; spoofed
	// inputs tend to produce round integers from this model.
	if res.Age != math.Trunc(res.Age) {
		return 0.8
	}
	return 0.6
}

// analyzeTexture scores edge density of the grayscale face region. Flat
// photo or screen replays are too smooth; heavy noise suggests recapture
// artifacts; a moderate band maps into [0.7, 0.95].
func (c *Checker) analyzeTexture(img image.Image) float64 {
	gray := imaging.Grayscale(img)
	density := imaging.EdgeDensity(gray)

	switch {
	case density < 0.01:
		return 0.4
	case density > 0.3:
		return 0.5
	default:
		return 0.7 + math.Min(0.25, density)
	}
}

func landmarkDistance(a, b faceservice.Landmark) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
