// Package verification fuses the independent attendance factors (face
// match, liveness, geofenced location, optional PIN) into a single
// deterministic pass/fail outcome with a full per-factor breakdown.
package verification

import (
	"github.com/example/auracheck/internal/liveness"
)

// Factor names, emitted in this fixed order. The PIN factor appears only
// when a PIN was submitted.
const (
	FactorFaceRecognition = "face_recognition"
	FactorLiveness        = "liveness"
	FactorLocation        = "location"
	FactorPinCode         = "pin_code"
)

// Factor is one entry of the verification breakdown.
type Factor struct {
	Factor     string   `json:"factor"`
	Verified   bool     `json:"verified"`
	Confidence *float64 `json:"confidence,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// FaceMatch is the embedding-distance decision against the stored
// reference face.
type FaceMatch struct {
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
}

// Confidence maps embedding distance onto a [0,100] confidence. The
// mapping assumes the model's distance metric ranges roughly over [0,2];
// a replacement embedding model needs this recalibrated, not reused.
func (m FaceMatch) Confidence() float64 {
	confidence := 100 * (1 - m.Distance/2)
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}

// LocationDecision is the geofence outcome.
type LocationDecision struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// PinDecision is the optional PIN factor outcome.
type PinDecision struct {
	Verified bool `json:"verified"`
}

// Outcome is the fused verification result.
type Outcome struct {
	Verified bool     `json:"verified"`
	Factors  []Factor `json:"factors"`
}

// Fuse combines the factor decisions into one outcome. All required
// factors must independently pass; a submitted PIN must pass too, while an
// omitted PIN is not counted against the result. Every factor is evaluated
// and reported even after one has failed, so the breakdown always carries
// the full diagnostic picture.
func Fuse(live liveness.Result, match FaceMatch, location LocationDecision, pin *PinDecision) Outcome {
	matchConfidence := match.Confidence()
	livenessConfidence := live.Score * 100

	factors := []Factor{
		{Factor: FactorFaceRecognition, Verified: match.Verified, Confidence: &matchConfidence},
		{Factor: FactorLiveness, Verified: live.IsLive, Confidence: &livenessConfidence},
		{Factor: FactorLocation, Verified: location.Verified, Message: location.Message},
	}

	verified := match.Verified && live.IsLive && location.Verified
	if pin != nil {
		factors = append(factors, Factor{Factor: FactorPinCode, Verified: pin.Verified})
		verified = verified && pin.Verified
	}

	return Outcome{Verified: verified, Factors: factors}
}
