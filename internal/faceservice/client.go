package faceservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/auracheck/internal/imaging"
	"github.com/example/auracheck/internal/logging"
)

const defaultRequestTimeout = 10 * time.Second

// Client talks to the face analysis service over its REST API. It covers
// detection, emotion/demographics analysis, embedding comparison, and the
// landmark model.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client for the face analysis service at baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger.Named("faceservice"),
	}
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Faces []struct {
		Box        [4]int  `json:"box"`
		Confidence float64 `json:"confidence"`
	} `json:"faces"`
}

// Detect returns the bounding boxes of all faces found in the image.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, logging.NewOperationError("faceservice.detect", "", err)
	}

	var resp detectResponse
	if err := c.post(ctx, "/detect", detectRequest{Image: encoded}, &resp); err != nil {
		return nil, logging.NewOperationError("faceservice.detect", "", err)
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		detections = append(detections, Detection{
			Box:        boxFromCorners(face.Box),
			Confidence: face.Confidence,
		})
	}
	return detections, nil
}

type analyzeRequest struct {
	Image   string   `json:"image"`
	Actions []string `json:"actions"`
	// EnforceDetection false lets the model analyze pre-cropped regions
	// without running its own detector.
	EnforceDetection bool `json:"enforce_detection"`
}

type analyzeResponse struct {
	Results []struct {
		DominantEmotion string             `json:"dominant_emotion"`
		Emotion         map[string]float64 `json:"emotion"`
		Age             float64            `json:"age"`
		Gender          string             `json:"gender"`
	} `json:"results"`
}

// AnalyzeEmotion classifies the dominant emotion of the face region.
func (c *Client) AnalyzeEmotion(ctx context.Context, img image.Image) (*EmotionResult, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, logging.NewOperationError("faceservice.analyze_emotion", "", err)
	}

	var resp analyzeResponse
	req := analyzeRequest{Image: encoded, Actions: []string{"emotion"}, EnforceDetection: false}
	if err := c.post(ctx, "/analyze", req, &resp); err != nil {
		return nil, logging.NewOperationError("faceservice.analyze_emotion", "", err)
	}
	if len(resp.Results) == 0 {
		return nil, logging.NewOperationError("faceservice.analyze_emotion", "", fmt.Errorf("empty analysis result"))
	}

	first := resp.Results[0]
	return &EmotionResult{
		Dominant:   first.DominantEmotion,
		Confidence: first.Emotion[first.DominantEmotion],
	}, nil
}

// AnalyzeDemographics estimates age and gender for the face region.
func (c *Client) AnalyzeDemographics(ctx context.Context, img image.Image) (*DemographicsResult, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, logging.NewOperationError("faceservice.analyze_demographics", "", err)
	}

	var resp analyzeResponse
	req := analyzeRequest{Image: encoded, Actions: []string{"age", "gender"}, EnforceDetection: false}
	if err := c.post(ctx, "/analyze", req, &resp); err != nil {
		return nil, logging.NewOperationError("faceservice.analyze_demographics", "", err)
	}
	if len(resp.Results) == 0 {
		return nil, logging.NewOperationError("faceservice.analyze_demographics", "", fmt.Errorf("empty analysis result"))
	}

	first := resp.Results[0]
	return &DemographicsResult{Age: first.Age, Gender: first.Gender}, nil
}

type compareRequest struct {
	Probe     string  `json:"probe"`
	Reference string  `json:"reference"`
	Threshold float64 `json:"threshold"`
}

type compareResponse struct {
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
}

// Compare measures the embedding distance between two face images.
func (c *Client) Compare(ctx context.Context, probe, reference image.Image, threshold float64) (*CompareResult, error) {
	probeEncoded, err := encodeImage(probe)
	if err != nil {
		return nil, logging.NewOperationError("faceservice.compare", "", err)
	}
	refEncoded, err := encodeImage(reference)
	if err != nil {
		return nil, logging.NewOperationError("faceservice.compare", "", err)
	}

	var resp compareResponse
	req := compareRequest{Probe: probeEncoded, Reference: refEncoded, Threshold: threshold}
	if err := c.post(ctx, "/verify", req, &resp); err != nil {
		return nil, logging.NewOperationError("faceservice.compare", "", err)
	}
	return &CompareResult{Verified: resp.Verified, Distance: resp.Distance}, nil
}

type landmarksResponse struct {
	Faces [][]struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"faces"`
}

// Available reports whether the landmark model endpoint is configured.
func (c *Client) Available() bool {
	return c != nil && c.baseURL != ""
}

// Landmarks runs the face-mesh model and returns the ordered landmark list
// for the first detected face, or nil when no face is found.
func (c *Client) Landmarks(ctx context.Context, rgb image.Image) ([]Landmark, error) {
	encoded, err := encodeImage(rgb)
	if err != nil {
		return nil, logging.NewOperationError("faceservice.landmarks", "", err)
	}

	var resp landmarksResponse
	if err := c.post(ctx, "/landmarks", detectRequest{Image: encoded}, &resp); err != nil {
		return nil, logging.NewOperationError("faceservice.landmarks", "", err)
	}
	if len(resp.Faces) == 0 {
		return nil, nil
	}

	points := make([]Landmark, 0, len(resp.Faces[0]))
	for _, p := range resp.Faces[0] {
		points = append(points, Landmark{X: p.X, Y: p.Y})
	}
	return points, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("face service returned status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func encodeImage(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func boxFromCorners(corners [4]int) imaging.Box {
	return imaging.Box{X1: corners[0], Y1: corners[1], X2: corners[2], Y2: corners[3]}
}

// The model service handle is process-wide: configured once at startup and
// lazily constructed on first use, never reconfigured mid-process.
var (
	sharedOnce   sync.Once
	sharedClient *Client
	sharedURL    string
	sharedLogger *zap.Logger
)

// Configure records the endpoint used by Shared. Calls after the first
// Shared invocation have no effect.
func Configure(baseURL string, logger *zap.Logger) {
	sharedURL = baseURL
	sharedLogger = logger
}

// Shared returns the process-wide face service client, constructing it on
// first use.
func Shared() *Client {
	sharedOnce.Do(func() {
		logger := sharedLogger
		if logger == nil {
			logger = zap.NewNop()
		}
		sharedClient = NewClient(sharedURL, logger)
	})
	return sharedClient
}
