package verification

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/example/auracheck/internal/liveness"
)

// Attendance statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Record is the immutable attendance outcome assembled from one fused
// verification pass. It is created exactly once per pass and never mutated
// afterward; corrections happen through the override fields, which are set
// by a different authority, not by this engine.
type Record struct {
	AttendanceID     string
	StudentID        string
	SessionID        string
	DeviceID         string
	Status           string
	CheckInTimestamp *time.Time
	Timestamp        time.Time

	Factors       []Factor
	FaceDistance  float64
	LivenessScore float64
	Location      *GeoPoint
	LocationInfo  LocationDecision
}

// AttendanceID derives a stable 20-character identifier from the subject
// and check-in time.
func AttendanceID(studentID string, timestamp time.Time) string {
	sum := sha256.Sum256([]byte(studentID + "-" + timestamp.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:20]
}

// BuildRecord assembles the persistable attendance record from a fusion
// outcome and its context.
func BuildRecord(studentID, sessionID, deviceID string, timestamp time.Time, outcome Outcome, match FaceMatch, live liveness.Result, point *GeoPoint, location LocationDecision) *Record {
	record := &Record{
		AttendanceID:  AttendanceID(studentID, timestamp),
		StudentID:     studentID,
		SessionID:     sessionID,
		DeviceID:      deviceID,
		Status:        StatusAbsent,
		Timestamp:     timestamp,
		Factors:       outcome.Factors,
		FaceDistance:  match.Distance,
		LivenessScore: live.Score,
		Location:      point,
		LocationInfo:  location,
	}
	if outcome.Verified {
		record.Status = StatusPresent
		checkIn := timestamp
		record.CheckInTimestamp = &checkIn
	}
	return record
}
