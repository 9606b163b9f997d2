package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/example/auracheck/internal/auth"
	"github.com/example/auracheck/internal/config"
	"github.com/example/auracheck/internal/imaging"
	"github.com/example/auracheck/internal/usecase"
	"github.com/example/auracheck/internal/verification"
)

// MaxUploadSize bounds accepted image uploads.
const MaxUploadSize = 10 << 20 // 10 MiB

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.AttendanceUseCase, authMiddleware gin.HandlerFunc, cfg *config.Config) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/login", loginHandler(uc, cfg))

	protected := router.Group("/attendance", authMiddleware)
	protected.POST("/register", registerFaceHandler(uc))
	protected.POST("/verify", verifyAttendanceHandler(uc))
	protected.GET("/metrics", metricsHandler(uc))
	protected.GET("/:id", recordHandler(uc))
}

func loginHandler(uc *usecase.AttendanceUseCase, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok || username == "" || password == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing credentials"})
			return
		}

		user, err := uc.Authenticate(c.Request.Context(), username, password)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found. Please register first."})
				return
			}
			if errors.Is(err, usecase.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
			return
		}

		expiresAt := time.Now().Add(cfg.JWTExpiration)
		claims := jwt.MapClaims{
			"sub":  user.ID,
			"name": user.FullName,
			"exp":  jwt.NewNumericDate(expiresAt),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
			"user":       gin.H{"id": user.ID, "name": user.FullName},
		})
	}
}

func registerFaceHandler(uc *usecase.AttendanceUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		data, ok := readImageUpload(c)
		if !ok {
			return
		}

		live, err := uc.RegisterFace(c.Request.Context(), userID, data)
		if err != nil {
			if errors.Is(err, usecase.ErrLivenessFailed) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Liveness check failed. Please ensure you are using a real face.",
					"score": live.Score,
				})
				return
			}
			respondUseCaseError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         "success",
			"message":        "Face registered successfully",
			"liveness_score": live.Score,
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func verifyAttendanceHandler(uc *usecase.AttendanceUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		data, ok := readImageUpload(c)
		if !ok {
			return
		}

		sessionID := c.PostForm("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required for attendance verification"})
			return
		}

		input := &usecase.VerifyInput{
			StudentID: userID,
			SessionID: sessionID,
			DeviceID:  c.PostForm("device_id"),
			PinCode:   c.PostForm("pin_code"),
			Image:     data,
			Latitude:  parseFloatField(c, "latitude"),
			Longitude: parseFloatField(c, "longitude"),
			Locations: parseAuthorizedLocations(c),
		}

		output, err := uc.VerifyAttendance(c.Request.Context(), input)
		if err != nil {
			respondUseCaseError(c, err)
			return
		}

		c.JSON(http.StatusOK, output)
	}
}

func recordHandler(uc *usecase.AttendanceUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		attendanceID := c.Param("id")
		record, err := uc.GetRecord(c.Request.Context(), userID, attendanceID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}

		var factors []verification.Factor
		if err := json.Unmarshal([]byte(record.Factors), &factors); err != nil {
			factors = nil
		}

		c.JSON(http.StatusOK, gin.H{
			"attendance_id":      record.AttendanceID,
			"student_id":         record.StudentID,
			"session_id":         record.SessionID,
			"status":             record.Status,
			"check_in_timestamp": record.CheckInTimestamp,
			"verification_details": factors,
			"is_overridden":      record.IsOverridden,
			"created_at":         record.CreatedAt,
		})
	}
}

func metricsHandler(uc *usecase.AttendanceUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// readImageUpload validates and reads the multipart image field. On
// failure it writes the error response and returns false.
func readImageUpload(c *gin.Context) ([]byte, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return nil, false
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
		return nil, false
	}

	contentType := file.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only png and jpeg images are accepted"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return nil, false
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
		return nil, false
	}
	return data, true
}

func parseFloatField(c *gin.Context, name string) *float64 {
	raw := c.PostForm(name)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &value
}

// parseAuthorizedLocations accepts either a JSON list in
// authorized_locations or single-location fallback fields.
func parseAuthorizedLocations(c *gin.Context) []verification.AuthorizedLocation {
	if raw := c.PostForm("authorized_locations"); raw != "" {
		var locations []verification.AuthorizedLocation
		if err := json.Unmarshal([]byte(raw), &locations); err == nil {
			return locations
		}
		return nil
	}

	lat := parseFloatField(c, "auth_latitude")
	lng := parseFloatField(c, "auth_longitude")
	if lat == nil || lng == nil {
		return nil
	}

	location := verification.AuthorizedLocation{
		Latitude:  *lat,
		Longitude: *lng,
		Name:      c.PostForm("auth_name"),
	}
	if radius := parseFloatField(c, "auth_radius"); radius != nil {
		location.Radius = *radius
	}
	if location.Name == "" {
		location.Name = "Verification point"
	}
	return []verification.AuthorizedLocation{location}
}

func respondUseCaseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, imaging.ErrEmptyImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image"})
	case errors.Is(err, usecase.ErrNoFaceDetected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No face detected in image"})
	case errors.Is(err, usecase.ErrMultipleFaces):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Multiple faces detected, please provide an image with only your face"})
	case errors.Is(err, usecase.ErrNoReferenceFace):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No reference face registered for this user"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User profile not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
