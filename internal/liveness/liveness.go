// Package liveness scores whether a face image came from a live, present
// subject rather than a photo, video, or mask replay. Four independent
// signal analyzers run concurrently and their scores are fused into a
// single weighted decision. Every failure path resolves to a conservative
// default: the check fails closed, never open.
package liveness

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/example/auracheck/internal/faceservice"
	"github.com/example/auracheck/internal/imaging"
)

// maxDimension is the longest image side fed to the analyzers. Larger
// inputs are downscaled once up front and the result shared read-only.
const maxDimension = 640

// DefaultThreshold is the minimum aggregate score accepted as live.
const DefaultThreshold = 0.65

// DefaultAnalyzerTimeout bounds the wait for each individual analyzer.
const DefaultAnalyzerTimeout = 3 * time.Second

// Result is the outcome of one liveness check.
type Result struct {
	IsLive bool    `json:"is_live"`
	Score  float64 `json:"score"`
}

// Scores holds the five signal scores produced by the four analyzers, each
// in [0,1]. The landmark analyzer contributes two of them.
type Scores struct {
	Emotion     float64
	EyeAspect   float64
	Symmetry    float64
	Demographic float64
	Texture     float64
}

// Weights is the fusion weight vector. It is an explicit, tunable artifact
// rather than literals embedded in the aggregation.
type Weights struct {
	Emotion     float64
	EyeAspect   float64
	Symmetry    float64
	Demographic float64
	Texture     float64
}

// DefaultWeights reflects the relative reliability of each signal; the
// landmark analyzer carries 0.40 combined across its two scores.
var DefaultWeights = Weights{
	Emotion:     0.25,
	EyeAspect:   0.20,
	Symmetry:    0.20,
	Demographic: 0.15,
	Texture:     0.20,
}

// Combine returns the weighted average of the signal scores, normalized by
// the weight sum so the result stays in [0,1] even for weight vectors that
// do not sum to one.
func (w Weights) Combine(s Scores) float64 {
	total := w.Emotion + w.EyeAspect + w.Symmetry + w.Demographic + w.Texture
	if total == 0 {
		return 0
	}
	sum := s.Emotion*w.Emotion +
		s.EyeAspect*w.EyeAspect +
		s.Symmetry*w.Symmetry +
		s.Demographic*w.Demographic +
		s.Texture*w.Texture
	return sum / total
}

// CheckerConfig tunes a Checker. Zero values fall back to the defaults.
type CheckerConfig struct {
	Threshold       float64
	AnalyzerTimeout time.Duration
	Weights         Weights
}

// Checker runs the multi-factor liveness check.
type Checker struct {
	analyzer   faceservice.Analyzer
	landmarker faceservice.Landmarker
	threshold  float64
	timeout    time.Duration
	weights    Weights
	logger     *zap.Logger
}

// NewChecker builds a liveness checker over the given model collaborators.
func NewChecker(analyzer faceservice.Analyzer, landmarker faceservice.Landmarker, cfg CheckerConfig, logger *zap.Logger) *Checker {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.AnalyzerTimeout == 0 {
		cfg.AnalyzerTimeout = DefaultAnalyzerTimeout
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	return &Checker{
		analyzer:   analyzer,
		landmarker: landmarker,
		threshold:  cfg.Threshold,
		timeout:    cfg.AnalyzerTimeout,
		weights:    cfg.Weights,
		logger:     logger.Named("liveness"),
	}
}

type landmarkScores struct {
	eyeAspect float64
	symmetry  float64
}

// Check runs the four analyzers concurrently against the face image and
// fuses their scores into a liveness decision. A slow or failing analyzer
// is substituted with its neutral default; a failure of the check as a
// whole, a missing landmark capability, or caller abort all yield the
// fail-closed (false, 0) result.
func (c *Checker) Check(ctx context.Context, img image.Image) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("liveness check panicked", zap.Any("panic", r))
			result = Result{}
		}
	}()

	if img == nil || img.Bounds().Empty() {
		c.logger.Error("liveness check got empty input image")
		return Result{}
	}
	if c.landmarker == nil || !c.landmarker.Available() {
		c.logger.Error("landmark model unavailable, failing closed")
		return Result{}
	}

	// One resize and RGB conversion shared read-only by all analyzers.
	rgb := imaging.ResizeMaxDimension(img, maxDimension)

	emotionCh := make(chan float64, 1)
	landmarkCh := make(chan landmarkScores, 1)
	demographicCh := make(chan float64, 1)
	textureCh := make(chan float64, 1)

	c.runAnalyzer("emotion", emotionCh, defaultEmotionScore, func() float64 {
		return c.analyzeEmotion(ctx, rgb)
	})
	c.runAnalyzer("demographics", demographicCh, defaultDemographicScore, func() float64 {
		return c.analyzeDemographics(ctx, rgb)
	})
	c.runAnalyzer("texture", textureCh, defaultTextureScore, func() float64 {
		return c.analyzeTexture(rgb)
	})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("landmark analyzer panicked", zap.Any("panic", r))
				landmarkCh <- landmarkScores{eyeAspect: defaultLandmarkScore, symmetry: defaultLandmarkScore}
			}
		}()
		landmarkCh <- c.analyzeLandmarks(ctx, rgb)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	scores := Scores{
		Emotion:     awaitScore(waitCtx, emotionCh, defaultEmotionScore),
		Demographic: awaitScore(waitCtx, demographicCh, defaultDemographicScore),
		Texture:     awaitScore(waitCtx, textureCh, defaultTextureScore),
	}
	lm := awaitLandmarks(waitCtx, landmarkCh)
	scores.EyeAspect = lm.eyeAspect
	scores.Symmetry = lm.symmetry

	// Caller abort: abandon in-flight analyzers and fail closed. The
	// buffered channels let their goroutines finish without blocking.
	if ctx.Err() != nil {
		c.logger.Warn("liveness check abandoned", zap.Error(ctx.Err()))
		return Result{}
	}

	score := c.weights.Combine(scores)
	result = Result{IsLive: score >= c.threshold, Score: score}
	c.logger.Info("liveness check completed",
		zap.Float64("score", score),
		zap.Bool("is_live", result.IsLive))
	return result
}

// runAnalyzer executes one scalar analyzer in its own goroutine. A panic
// inside the analyzer resolves to its neutral default.
func (c *Checker) runAnalyzer(name string, ch chan<- float64, fallback float64, fn func() float64) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("analyzer panicked", zap.String("analyzer", name), zap.Any("panic", r))
				ch <- fallback
			}
		}()
		ch <- fn()
	}()
}

func awaitScore(ctx context.Context, ch <-chan float64, fallback float64) float64 {
	select {
	case v := <-ch:
		return v
	case <-ctx.Done():
		return fallback
	}
}

func awaitLandmarks(ctx context.Context, ch <-chan landmarkScores) landmarkScores {
	select {
	case v := <-ch:
		return v
	case <-ctx.Done():
		return landmarkScores{eyeAspect: defaultLandmarkScore, symmetry: defaultLandmarkScore}
	}
}
