package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// User is a registered subject with an optional reference face and PIN.
type User struct {
	ID                     string `gorm:"primaryKey;size:64"`
	FullName               string `gorm:"column:full_name;size:128"`
	PasswordHash           string `gorm:"column:password_hash;size:256"`
	PinHash                string `gorm:"column:pin_hash;size:256"`
	ReferenceFace          []byte `gorm:"column:reference_face;type:bytea"`
	ReferenceLivenessScore float64   `gorm:"column:reference_liveness_score"`
	CreatedAt              time.Time `gorm:"column:created_at"`
	UpdatedAt              time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}

// AttendanceRecord is a persisted attendance verification outcome.
type AttendanceRecord struct {
	ID                    uint       `gorm:"primaryKey"`
	AttendanceID          string     `gorm:"column:attendance_id;uniqueIndex;size:64"`
	StudentID             string     `gorm:"column:student_id;index;size:64"`
	SessionID             string     `gorm:"column:session_id;index;size:64"`
	DeviceID              string     `gorm:"column:device_id;size:64"`
	Status                string     `gorm:"column:status;size:16"`
	CheckInTimestamp      *time.Time `gorm:"column:check_in_timestamp"`
	FaceDistance          float64    `gorm:"column:face_distance"`
	LivenessScore         float64    `gorm:"column:liveness_score"`
	Latitude              *float64   `gorm:"column:latitude"`
	Longitude             *float64   `gorm:"column:longitude"`
	LocationVerified      bool       `gorm:"column:location_verified"`
	LocationMessage       string     `gorm:"column:location_message;type:text"`
	Factors               string     `gorm:"column:factors;type:jsonb"`
	IsOverridden          bool       `gorm:"column:is_overridden"`
	OverrideBy            *string    `gorm:"column:override_by;size:64"`
	OverrideJustification *string    `gorm:"column:override_justification;type:text"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (AttendanceRecord) TableName() string {
	return "attendance_records"
}

// AttendanceHistory is the per-subject audit trail entry.
type AttendanceHistory struct {
	ID               uint      `gorm:"primaryKey"`
	AttendanceID     string    `gorm:"column:attendance_id;index;size:64"`
	StudentID        string    `gorm:"column:student_id;index;size:64"`
	Verified         bool      `gorm:"column:verified"`
	LocationVerified bool      `gorm:"column:location_verified"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AttendanceHistory) TableName() string {
	return "attendance_history"
}

// SecurityEvent records suspicious verification attempts, such as failed
// liveness checks.
type SecurityEvent struct {
	ID            uint      `gorm:"primaryKey"`
	StudentID     string    `gorm:"column:student_id;index;size:64"`
	EventType     string    `gorm:"column:event_type;size:64"`
	LivenessScore float64   `gorm:"column:liveness_score"`
	Latitude      *float64  `gorm:"column:latitude"`
	Longitude     *float64  `gorm:"column:longitude"`
	DeviceID      string    `gorm:"column:device_id;size:64"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (SecurityEvent) TableName() string {
	return "security_events"
}

// MetricsAggregation holds raw attendance aggregates.
type MetricsAggregation struct {
	TotalCount           int64
	PresentCount         int64
	AverageLivenessScore float64
}

// AttendanceRepository provides persistence APIs for users and attendance.
type AttendanceRepository struct {
	db *gorm.DB
}

// NewAttendanceRepository creates a new repository instance.
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// AutoMigrate ensures the schema is available.
func (r *AttendanceRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&User{},
		&AttendanceRecord{},
		&AttendanceHistory{},
		&SecurityEvent{},
	)
}

// GetUser loads a user profile by id.
func (r *AttendanceRepository) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateReferenceFace stores the registered reference face on the profile.
func (r *AttendanceRepository) UpdateReferenceFace(ctx context.Context, userID string, face []byte, livenessScore float64) error {
	return r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"reference_face":           face,
		"reference_liveness_score": livenessScore,
		"updated_at":               time.Now().UTC(),
	}).Error
}

// SaveRecord persists an attendance record.
func (r *AttendanceRepository) SaveRecord(ctx context.Context, record *AttendanceRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindRecordByAttendanceIDAndStudent retrieves a record matching the
// attendance id and its owner.
func (r *AttendanceRepository) FindRecordByAttendanceIDAndStudent(ctx context.Context, attendanceID, studentID string) (*AttendanceRecord, error) {
	var record AttendanceRecord
	if err := r.db.WithContext(ctx).First(&record, "attendance_id = ? AND student_id = ?", attendanceID, studentID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// AppendHistory adds an audit trail entry.
func (r *AttendanceRepository) AppendHistory(ctx context.Context, entry *AttendanceHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// SaveSecurityEvent records a suspicious verification attempt.
func (r *AttendanceRepository) SaveSecurityEvent(ctx context.Context, event *SecurityEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// AggregateMetrics computes attendance aggregates across all records.
func (r *AttendanceRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var aggregation MetricsAggregation
	err := r.db.WithContext(ctx).
		Model(&AttendanceRecord{}).
		Select("COUNT(*) AS total_count, " +
			"COUNT(*) FILTER (WHERE status = 'present') AS present_count, " +
			"COALESCE(AVG(liveness_score), 0) AS average_liveness_score").
		Scan(&aggregation).Error
	if err != nil {
		return nil, err
	}
	return &aggregation, nil
}
