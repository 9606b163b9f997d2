package verification

import (
	"math"
	"reflect"
	"testing"

	"github.com/example/auracheck/internal/liveness"
)

func TestFuseRequiresEveryFactor(t *testing.T) {
	live := liveness.Result{IsLive: true, Score: 0.8}
	match := FaceMatch{Verified: true, Distance: 0.3}
	location := LocationDecision{Verified: true, Message: "Within authorized radius of Lab (12.0m)"}

	outcome := Fuse(live, match, location, nil)
	if !outcome.Verified {
		t.Fatal("expected verified outcome when all factors pass")
	}
	if len(outcome.Factors) != 3 {
		t.Fatalf("expected 3 factors without a PIN, got %d", len(outcome.Factors))
	}

	cases := []struct {
		name     string
		live     liveness.Result
		match    FaceMatch
		location LocationDecision
	}{
		{"face mismatch", live, FaceMatch{Verified: false, Distance: 1.4}, location},
		{"liveness failed", liveness.Result{IsLive: false, Score: 0.3}, match, location},
		{"out of bounds", live, match, LocationDecision{Verified: false, Message: "Not near any authorized location"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Fuse(tc.live, tc.match, tc.location, nil)
			if out.Verified {
				t.Fatal("expected rejection when one factor fails")
			}
			if len(out.Factors) != 3 {
				t.Fatalf("expected full breakdown even on failure, got %d factors", len(out.Factors))
			}
		})
	}
}

func TestFuseOrdersFactorsDeterministically(t *testing.T) {
	live := liveness.Result{IsLive: true, Score: 0.9}
	match := FaceMatch{Verified: true, Distance: 0.1}
	location := LocationDecision{Verified: true}
	pin := &PinDecision{Verified: true}

	outcome := Fuse(live, match, location, pin)

	names := make([]string, 0, len(outcome.Factors))
	for _, f := range outcome.Factors {
		names = append(names, f.Factor)
	}
	want := []string{FactorFaceRecognition, FactorLiveness, FactorLocation, FactorPinCode}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("expected factor order %v, got %v", want, names)
	}

	again := Fuse(live, match, location, pin)
	if !reflect.DeepEqual(outcome.Verified, again.Verified) || len(outcome.Factors) != len(again.Factors) {
		t.Fatal("expected identical outcome for identical inputs")
	}
}

func TestFuseSubmittedPinMustPass(t *testing.T) {
	live := liveness.Result{IsLive: true, Score: 0.9}
	match := FaceMatch{Verified: true, Distance: 0.1}
	location := LocationDecision{Verified: true}

	outcome := Fuse(live, match, location, &PinDecision{Verified: false})
	if outcome.Verified {
		t.Fatal("expected rejection when the submitted PIN fails")
	}
	if len(outcome.Factors) != 4 {
		t.Fatalf("expected 4 factors with a PIN, got %d", len(outcome.Factors))
	}
	last := outcome.Factors[3]
	if last.Factor != FactorPinCode || last.Verified {
		t.Fatalf("expected failed pin_code factor last, got %+v", last)
	}
}

func TestFaceMatchConfidenceMapping(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 100},
		{0.4, 80},
		{1, 50},
		{2, 0},
		{3, 0},
		{-0.5, 100},
	}
	for _, tc := range cases {
		got := FaceMatch{Distance: tc.distance}.Confidence()
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("distance %f: expected confidence %f, got %f", tc.distance, tc.want, got)
		}
	}
}

func TestFuseReportsConfidences(t *testing.T) {
	outcome := Fuse(
		liveness.Result{IsLive: true, Score: 0.72},
		FaceMatch{Verified: true, Distance: 0.5},
		LocationDecision{Verified: true},
		nil,
	)

	face := outcome.Factors[0]
	if face.Confidence == nil || math.Abs(*face.Confidence-75) > 1e-9 {
		t.Fatalf("expected face confidence 75, got %+v", face.Confidence)
	}
	lv := outcome.Factors[1]
	if lv.Confidence == nil || math.Abs(*lv.Confidence-72) > 1e-9 {
		t.Fatalf("expected liveness confidence 72, got %+v", lv.Confidence)
	}
}
