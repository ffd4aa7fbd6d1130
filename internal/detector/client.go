package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/kozaktomas/face-search/internal/facematch"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultDetectorURL = "http://localhost:8000"
	detectEndpoint     = "/detect/faces"
)

// Client detects faces using the face-analysis server
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new detector client. A zero timeout means no limit.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP creates a detector client using a custom http.Client
func NewClientWithHTTP(baseURL string, client *http.Client) *Client {
	c := NewClient(baseURL, 0)
	c.client = client
	return c
}

// faceDetection is a single detected face as returned by the server.
// Older servers send bbox corners, det_score and embedding instead.
type faceDetection struct {
	Box        []float64   `json:"box"` // [x, y, w, h]
	BBox       []float64   `json:"bbox"` // [x1, y1, x2, y2]
	Score      *float64    `json:"score"`
	DetScore   float64     `json:"det_score"`
	Descriptor []float32   `json:"descriptor"`
	Embedding  []float32   `json:"embedding"`
	Landmarks  [][]float64 `json:"landmarks"`
}

// detectResponse is the body of a /detect/faces response
type detectResponse struct {
	Faces []faceDetection `json:"faces"`
	Model string          `json:"model"`
}

// DetectFaces sends img to the server and returns the faces it found in
// img's coordinates.
func (c *Client) DetectFaces(ctx context.Context, img image.Image) ([]facematch.Face, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}
	return c.DetectFacesInData(ctx, data)
}

// DetectFacesInData is DetectFaces for already encoded image bytes.
func (c *Client) DetectFacesInData(ctx context.Context, data []byte) ([]facematch.Face, error) {
	body, err := c.postMultipartImage(ctx, detectEndpoint, data)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]facematch.Face, 0, len(resp.Faces))
	for _, d := range resp.Faces {
		faces = append(faces, d.toFace())
	}
	return faces, nil
}

func (d faceDetection) toFace() facematch.Face {
	f := facematch.Face{Descriptor: d.Descriptor, Scale: 1}
	if len(f.Descriptor) == 0 {
		f.Descriptor = d.Embedding
	}

	switch {
	case len(d.Box) == 4:
		f.Box = facematch.Box{X: d.Box[0], Y: d.Box[1], Width: d.Box[2], Height: d.Box[3]}
	case len(d.BBox) == 4:
		f.Box = facematch.BoxFromCorners(d.BBox)
	}

	if d.Score != nil {
		f.DetectionScore = *d.Score
	} else {
		f.DetectionScore = d.DetScore
	}

	if len(d.Landmarks) > 0 {
		// A malformed point keeps its slot so later landmarks stay at
		// their model index.
		f.Landmarks = make([]facematch.Point, len(d.Landmarks))
		for i, p := range d.Landmarks {
			if len(p) < 2 {
				f.Landmarks[i] = facematch.MissingPoint()
				continue
			}
			f.Landmarks[i] = facematch.Point{X: p[0], Y: p[1]}
		}
	}
	return f
}

// postMultipartImage posts the image as the "file" part of a multipart form
// and returns the response body.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
