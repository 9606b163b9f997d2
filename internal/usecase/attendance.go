package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/auracheck/internal/config"
	"github.com/example/auracheck/internal/cryptography"
	"github.com/example/auracheck/internal/faceservice"
	"github.com/example/auracheck/internal/imaging"
	"github.com/example/auracheck/internal/liveness"
	"github.com/example/auracheck/internal/logging"
	"github.com/example/auracheck/internal/repository"
	"github.com/example/auracheck/internal/verification"
)

// AttendanceRepository defines the persistence operations needed by the
// use case.
type AttendanceRepository interface {
	GetUser(ctx context.Context, id string) (*repository.User, error)
	UpdateReferenceFace(ctx context.Context, userID string, face []byte, livenessScore float64) error
	SaveRecord(ctx context.Context, record *repository.AttendanceRecord) error
	FindRecordByAttendanceIDAndStudent(ctx context.Context, attendanceID, studentID string) (*repository.AttendanceRecord, error)
	AppendHistory(ctx context.Context, entry *repository.AttendanceHistory) error
	SaveSecurityEvent(ctx context.Context, event *repository.SecurityEvent) error
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// LivenessChecker abstracts the liveness engine for the use case.
type LivenessChecker interface {
	Check(ctx context.Context, img image.Image) liveness.Result
}

// Errors surfaced to the route layer.
var (
	ErrNoFaceDetected     = errors.New("no face detected in image")
	ErrMultipleFaces      = errors.New("multiple faces detected")
	ErrNoReferenceFace    = errors.New("no reference face registered")
	ErrLivenessFailed     = errors.New("liveness check failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AttendanceUseCase encapsulates the attendance verification flow.
type AttendanceUseCase struct {
	repo           AttendanceRepository
	cache          Cache
	detector       faceservice.Detector
	comparer       faceservice.Comparer
	checker        LivenessChecker
	logger         *zap.Logger
	matchThreshold float64
	defaultRadius  float64
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewAttendanceUseCase constructs a new use case instance.
func NewAttendanceUseCase(repo AttendanceRepository, cache Cache, detector faceservice.Detector, comparer faceservice.Comparer, checker LivenessChecker, cfg *config.Config, logger *zap.Logger) *AttendanceUseCase {
	return &AttendanceUseCase{
		repo:           repo,
		cache:          cache,
		detector:       detector,
		comparer:       comparer,
		checker:        checker,
		logger:         logger.Named("attendance_usecase"),
		matchThreshold: cfg.FaceMatchThreshold,
		defaultRadius:  cfg.AllowedLocationRadius,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// VerifyInput carries one attendance verification request.
type VerifyInput struct {
	StudentID string
	SessionID string
	DeviceID  string
	PinCode   string
	Image     []byte
	Latitude  *float64
	Longitude *float64
	Locations []verification.AuthorizedLocation
}

// VerifyOutput is the response payload for a verification request.
type VerifyOutput struct {
	AttendanceID string                `json:"attendance_id"`
	Timestamp    time.Time             `json:"timestamp"`
	Verified     bool                  `json:"verified"`
	Factors      []verification.Factor `json:"verification_details"`
}

type matchOutcome struct {
	result *faceservice.CompareResult
	err    error
}

// VerifyAttendance runs the full multi-factor pipeline: face detection and
// region extraction, concurrent liveness and face-match evaluation,
// geofence and optional PIN decisions, fusion, and persistence of the
// resulting attendance record.
func (uc *AttendanceUseCase) VerifyAttendance(ctx context.Context, in *VerifyInput) (*VerifyOutput, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify_attendance", requestID)

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, processingKey(requestID), "processing", time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return nil, err
	}

	img, err := imaging.Decode(in.Image)
	if err != nil {
		return nil, err
	}

	user, err := uc.repo.GetUser(ctx, in.StudentID)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.load_user", requestID, err)
		opLogger.Error("failed to load user profile", zap.Error(wrapped))
		return nil, wrapped
	}

	crop, err := uc.locateFace(ctx, img)
	if err != nil {
		return nil, err
	}

	if len(user.ReferenceFace) == 0 {
		return nil, ErrNoReferenceFace
	}
	reference, err := imaging.Decode(user.ReferenceFace)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_reference", requestID, err)
		opLogger.Error("stored reference face is unreadable", zap.Error(wrapped))
		return nil, wrapped
	}

	// Liveness and face match are independent reads of the same crop; run
	// them side by side.
	liveCh := make(chan liveness.Result, 1)
	matchCh := make(chan matchOutcome, 1)
	go func() { liveCh <- uc.checker.Check(ctx, crop) }()
	go func() {
		result, compareErr := uc.comparer.Compare(ctx, crop, reference, uc.matchThreshold)
		matchCh <- matchOutcome{result: result, err: compareErr}
	}()
	live := <-liveCh
	matched := <-matchCh
	if matched.err != nil {
		wrapped := logging.NewOperationError("usecase.face_compare", requestID, matched.err)
		opLogger.Error("face comparison failed", zap.Error(wrapped))
		return nil, wrapped
	}
	match := verification.FaceMatch{Verified: matched.result.Verified, Distance: matched.result.Distance}

	if !live.IsLive {
		uc.recordSecurityEvent(ctx, opLogger, in, live.Score)
	}

	var point *verification.GeoPoint
	if in.Latitude != nil && in.Longitude != nil {
		point = &verification.GeoPoint{Latitude: *in.Latitude, Longitude: *in.Longitude}
	}
	location := verification.VerifyLocation(point, in.Locations, uc.defaultRadius)

	var pin *verification.PinDecision
	if in.PinCode != "" {
		decision := verification.VerifyPin(in.PinCode, user.PinHash)
		pin = &decision
	}

	outcome := verification.Fuse(live, match, location, pin)
	timestamp := time.Now().UTC()
	record := verification.BuildRecord(in.StudentID, in.SessionID, in.DeviceID, timestamp, outcome, match, live, point, location)

	model, err := attendanceModel(record)
	if err != nil {
		opLogger.Error("failed to serialize factors", zap.Error(err))
		return nil, err
	}
	if err := uc.repo.SaveRecord(ctx, model); err != nil {
		wrapped := logging.NewOperationError("usecase.save_record", requestID, err)
		opLogger.Error("failed to persist attendance record", zap.Error(wrapped))
		return nil, wrapped
	}

	if err := uc.repo.AppendHistory(ctx, &repository.AttendanceHistory{
		AttendanceID:     record.AttendanceID,
		StudentID:        record.StudentID,
		Verified:         outcome.Verified,
		LocationVerified: location.Verified,
		CreatedAt:        timestamp,
	}); err != nil {
		opLogger.Warn("failed to append attendance history", zap.Error(err))
	}

	serialized, err := json.Marshal(model)
	if err != nil {
		opLogger.Error("failed to serialize attendance record", zap.Error(err))
		return nil, err
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, recordKey(record.AttendanceID), string(serialized), 5*time.Minute)
	}); err != nil {
		opLogger.Error("failed to cache attendance record", zap.Error(err))
		return nil, err
	}

	return &VerifyOutput{
		AttendanceID: record.AttendanceID,
		Timestamp:    timestamp,
		Verified:     outcome.Verified,
		Factors:      outcome.Factors,
	}, nil
}

// RegisterFace validates and stores a user's reference face. The upload
// must contain exactly one live face.
func (uc *AttendanceUseCase) RegisterFace(ctx context.Context, userID string, imageBytes []byte) (liveness.Result, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.register_face", userID)

	img, err := imaging.Decode(imageBytes)
	if err != nil {
		return liveness.Result{}, err
	}

	crop, err := uc.locateFace(ctx, img)
	if err != nil {
		return liveness.Result{}, err
	}

	live := uc.checker.Check(ctx, crop)
	if !live.IsLive {
		opLogger.Warn("liveness check failed during registration", zap.Float64("score", live.Score))
		return live, ErrLivenessFailed
	}

	if err := uc.repo.UpdateReferenceFace(ctx, userID, imageBytes, live.Score); err != nil {
		wrapped := logging.NewOperationError("usecase.update_reference_face", userID, err)
		opLogger.Error("failed to store reference face", zap.Error(wrapped))
		return live, wrapped
	}
	return live, nil
}

// Authenticate checks login credentials against the stored password hash.
func (uc *AttendanceUseCase) Authenticate(ctx context.Context, userID, password string) (*repository.User, error) {
	user, err := uc.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" || !cryptography.VerifyHash(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetRecord retrieves a cached attendance record or loads it from
// persistence.
func (uc *AttendanceUseCase) GetRecord(ctx context.Context, studentID, attendanceID string) (*repository.AttendanceRecord, error) {
	if cached, err := uc.withRedisGet(ctx, attendanceID, "cache.get.record", recordKey(attendanceID)); err == nil {
		var record repository.AttendanceRecord
		if err := json.Unmarshal([]byte(cached), &record); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_record", attendanceID).Warn("failed to decode cached record", zap.Error(err))
		} else if record.StudentID == studentID {
			return &record, nil
		}
	} else if !isCacheMiss(err) {
		logging.WithOperation(uc.logger, "usecase.get_record", attendanceID).Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindRecordByAttendanceIDAndStudent(ctx, attendanceID, studentID)
}

func (uc *AttendanceUseCase) locateFace(ctx context.Context, img image.Image) (image.Image, error) {
	detections, err := uc.detector.Detect(ctx, img)
	if err != nil {
		return nil, logging.NewOperationError("usecase.detect_faces", "", err)
	}
	if len(detections) == 0 {
		return nil, ErrNoFaceDetected
	}
	if len(detections) > 1 {
		return nil, ErrMultipleFaces
	}
	return imaging.CropFace(img, detections[0].Box), nil
}

func (uc *AttendanceUseCase) recordSecurityEvent(ctx context.Context, opLogger *zap.Logger, in *VerifyInput, score float64) {
	event := &repository.SecurityEvent{
		StudentID:     in.StudentID,
		EventType:     "liveness_check_failed",
		LivenessScore: score,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		DeviceID:      in.DeviceID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := uc.repo.SaveSecurityEvent(ctx, event); err != nil {
		opLogger.Warn("failed to record security event", zap.Error(err))
	}
}

func attendanceModel(record *verification.Record) (*repository.AttendanceRecord, error) {
	factors, err := json.Marshal(record.Factors)
	if err != nil {
		return nil, err
	}

	model := &repository.AttendanceRecord{
		AttendanceID:     record.AttendanceID,
		StudentID:        record.StudentID,
		SessionID:        record.SessionID,
		DeviceID:         record.DeviceID,
		Status:           record.Status,
		CheckInTimestamp: record.CheckInTimestamp,
		FaceDistance:     record.FaceDistance,
		LivenessScore:    record.LivenessScore,
		LocationVerified: record.LocationInfo.Verified,
		LocationMessage:  record.LocationInfo.Message,
		Factors:          string(factors),
		CreatedAt:        record.Timestamp,
		UpdatedAt:        record.Timestamp,
	}
	if record.Location != nil {
		lat := record.Location.Latitude
		lng := record.Location.Longitude
		model.Latitude = &lat
		model.Longitude = &lng
	}
	return model, nil
}

func processingKey(requestID string) string {
	return fmt.Sprintf("attendance:req:%s", requestID)
}

func recordKey(attendanceID string) string {
	return fmt.Sprintf("attendance:%s", attendanceID)
}
