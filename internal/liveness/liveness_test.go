package liveness

import (
	"context"
	"image"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/auracheck/internal/faceservice"
)

type stubAnalyzer struct {
	emotion         *faceservice.EmotionResult
	emotionErr      error
	emotionDelay    time.Duration
	demographics    *faceservice.DemographicsResult
	demographicsErr error
}

func (s *stubAnalyzer) AnalyzeEmotion(ctx context.Context, img image.Image) (*faceservice.EmotionResult, error) {
	if s.emotionDelay > 0 {
		select {
		case <-time.After(s.emotionDelay):
		case <-ctx.Done():
		}
	}
	if s.emotionErr != nil {
		return nil, s.emotionErr
	}
	return s.emotion, nil
}

func (s *stubAnalyzer) AnalyzeDemographics(ctx context.Context, img image.Image) (*faceservice.DemographicsResult, error) {
	if s.demographicsErr != nil {
		return nil, s.demographicsErr
	}
	return s.demographics, nil
}

type stubLandmarker struct {
	points      []faceservice.Landmark
	err         error
	unavailable bool
}

func (s *stubLandmarker) Available() bool {
	return !s.unavailable
}

func (s *stubLandmarker) Landmarks(ctx context.Context, rgb image.Image) ([]faceservice.Landmark, error) {
	return s.points, s.err
}

func solidImage(size int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, size, size))
}

// makeMeshLandmarks builds a full landmark set where both eyes have EAR 1
// (vertical gaps equal to the horizontal gap) and the three symmetry pairs
// sit mirrored around the nose tip.
func makeMeshLandmarks() []faceservice.Landmark {
	points := make([]faceservice.Landmark, meshPointCount)

	set := func(idx int, x, y float64) {
		points[idx] = faceservice.Landmark{X: x, Y: y}
	}

	// Left eye: corners at x 0.60/0.90, vertical gaps of 0.30.
	set(362, 0.60, 0.50)
	set(385, 0.70, 0.65)
	set(387, 0.80, 0.65)
	set(263, 0.90, 0.50)
	set(373, 0.80, 0.35)
	set(380, 0.70, 0.35)

	// Right eye, same geometry.
	set(33, 0.10, 0.50)
	set(160, 0.20, 0.65)
	set(158, 0.30, 0.65)
	set(133, 0.40, 0.50)
	set(153, 0.30, 0.35)
	set(144, 0.20, 0.35)

	// Nose tip and mirrored symmetry pairs.
	set(1, 0.50, 0.50)
	set(234, 0.20, 0.50)
	set(454, 0.80, 0.50)
	set(93, 0.35, 0.70)
	set(323, 0.65, 0.70)
	set(70, 0.40, 0.30)
	set(300, 0.60, 0.30)

	return points
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWeightsCombineBounds(t *testing.T) {
	ones := Scores{Emotion: 1, EyeAspect: 1, Symmetry: 1, Demographic: 1, Texture: 1}
	if score := DefaultWeights.Combine(ones); !almostEqual(score, 1.0) {
		t.Fatalf("expected score 1.0 for perfect signals, got %f", score)
	}
	if score := DefaultWeights.Combine(Scores{}); !almostEqual(score, 0.0) {
		t.Fatalf("expected score 0.0 for zero signals, got %f", score)
	}
	if 1.0 < DefaultThreshold {
		t.Fatal("perfect signals must clear the default threshold")
	}
}

func TestWeightsCombineNormalizesWeightSum(t *testing.T) {
	unnormalized := Weights{Emotion: 1, EyeAspect: 1, Symmetry: 1, Demographic: 1, Texture: 1}
	half := Scores{Emotion: 0.5, EyeAspect: 0.5, Symmetry: 0.5, Demographic: 0.5, Texture: 0.5}
	if score := unnormalized.Combine(half); !almostEqual(score, 0.5) {
		t.Fatalf("expected normalized score 0.5, got %f", score)
	}
}

func TestCheckCombinesAnalyzerScores(t *testing.T) {
	analyzer := &stubAnalyzer{
		emotion:      &faceservice.EmotionResult{Dominant: "neutral", Confidence: 90},
		demographics: &faceservice.DemographicsResult{Age: 24.7},
	}
	landmarker := &stubLandmarker{points: makeMeshLandmarks()}
	checker := NewChecker(analyzer, landmarker, CheckerConfig{}, zap.NewNop())

	result := checker.Check(context.Background(), solidImage(64))

	// emotion 0.9, ear 1.0, symmetry 1.0, demographic 0.8 (fractional age),
	// texture 0.4 (solid image is too smooth).
	expected := DefaultWeights.Combine(Scores{
		Emotion:     0.9,
		EyeAspect:   1.0,
		Symmetry:    1.0,
		Demographic: 0.8,
		Texture:     0.4,
	})
	if !almostEqual(result.Score, expected) {
		t.Fatalf("expected score %f, got %f", expected, result.Score)
	}
	if !result.IsLive {
		t.Fatalf("expected live decision at score %f", result.Score)
	}
}

func TestCheckIsDeterministicForFrozenInputs(t *testing.T) {
	analyzer := &stubAnalyzer{
		emotion:      &faceservice.EmotionResult{Dominant: "happy", Confidence: 70},
		demographics: &faceservice.DemographicsResult{Age: 31},
	}
	landmarker := &stubLandmarker{points: makeMeshLandmarks()}
	checker := NewChecker(analyzer, landmarker, CheckerConfig{}, zap.NewNop())

	img := solidImage(64)
	first := checker.Check(context.Background(), img)
	second := checker.Check(context.Background(), img)
	if first != second {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestCheckSubstitutesTimedOutAnalyzer(t *testing.T) {
	analyzer := &stubAnalyzer{
		emotion:      &faceservice.EmotionResult{Dominant: "neutral", Confidence: 100},
		emotionDelay: 5 * time.Second,
		demographics: &faceservice.DemographicsResult{Age: 30.5},
	}
	landmarker := &stubLandmarker{points: nil} // no face found: neutral defaults
	checker := NewChecker(analyzer, landmarker, CheckerConfig{AnalyzerTimeout: 50 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	result := checker.Check(context.Background(), solidImage(64))
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("aggregator blocked past the analyzer timeout: %s", elapsed)
	}

	// emotion timed out: 0.5; landmarks absent: 0.5/0.5; demographic 0.8;
	// texture 0.4.
	expected := DefaultWeights.Combine(Scores{
		Emotion:     0.5,
		EyeAspect:   0.5,
		Symmetry:    0.5,
		Demographic: 0.8,
		Texture:     0.4,
	})
	if !almostEqual(result.Score, expected) {
		t.Fatalf("expected score %f, got %f", expected, result.Score)
	}
	if result.IsLive {
		t.Fatal("expected non-live decision for degraded signals")
	}
}

func TestCheckFailsClosedWhenLandmarkerUnavailable(t *testing.T) {
	analyzer := &stubAnalyzer{
		emotion:      &faceservice.EmotionResult{Confidence: 90},
		demographics: &faceservice.DemographicsResult{Age: 30.5},
	}
	checker := NewChecker(analyzer, &stubLandmarker{unavailable: true}, CheckerConfig{}, zap.NewNop())

	result := checker.Check(context.Background(), solidImage(64))
	if result.IsLive || result.Score != 0 {
		t.Fatalf("expected fail-closed result, got %+v", result)
	}
}

func TestCheckFailsClosedOnEmptyImage(t *testing.T) {
	checker := NewChecker(&stubAnalyzer{}, &stubLandmarker{}, CheckerConfig{}, zap.NewNop())

	if result := checker.Check(context.Background(), nil); result.IsLive || result.Score != 0 {
		t.Fatalf("expected fail-closed result for nil image, got %+v", result)
	}
	if result := checker.Check(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0))); result.IsLive || result.Score != 0 {
		t.Fatalf("expected fail-closed result for empty image, got %+v", result)
	}
}

func TestCheckFailsClosedOnCallerAbort(t *testing.T) {
	analyzer := &stubAnalyzer{
		emotion:      &faceservice.EmotionResult{Confidence: 90},
		emotionDelay: 5 * time.Second,
		demographics: &faceservice.DemographicsResult{Age: 30.5},
	}
	checker := NewChecker(analyzer, &stubLandmarker{points: makeMeshLandmarks()}, CheckerConfig{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := checker.Check(ctx, solidImage(64))
	if time.Since(start) > time.Second {
		t.Fatal("aborted check should not block on in-flight analyzers")
	}
	if result.IsLive || result.Score != 0 {
		t.Fatalf("expected fail-closed result on abort, got %+v", result)
	}
}
