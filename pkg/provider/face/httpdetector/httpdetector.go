// Package httpdetector provides a face.Detector backed by a detection sidecar
// reachable over HTTP.
//
// The sidecar hosts the trained face, landmark and expression models. Load
// probes GET {base}/healthz; Detect posts the frame as a JPEG body to
// POST {base}/detect and expects a reply of the form:
//
//	{"faces":[{"box":{"x":..,"y":..,"width":..,"height":..},
//	           "landmarks":{"leftEye":{"x":..,"y":..}, ...},
//	           "points":[{"x":..,"y":..}, ...],
//	           "expressions":{"happy":0.7, ...}}]}
//
// Either "landmarks" (the reduced subset) or "points" (the full 68-point
// model) may be present; points are reduced to eye, nose and mouth centroids.
package httpdetector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/interviewcoach/pkg/provider/face"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

const (
	defaultTimeout = 2 * time.Second
	jpegQuality    = 80
)

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithHTTPClient overrides the HTTP client. Options apply in order, so a
// later WithTimeout changes this client's Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Detector) { d.client = c }
}

// WithTimeout sets the per-request timeout. Defaults to 2 s.
func WithTimeout(t time.Duration) Option {
	return func(d *Detector) { d.client.Timeout = t }
}

// Detector implements face.Detector against a detection sidecar.
type Detector struct {
	baseURL string
	client  *http.Client
}

var _ face.Detector = (*Detector)(nil)

// New creates a Detector for the sidecar at baseURL (e.g.
// "http://localhost:7070"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Detector, error) {
	if baseURL == "" {
		return nil, errors.New("httpdetector: baseURL must not be empty")
	}
	d := &Detector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Load checks that the sidecar is up and its models are loaded.
func (d *Detector) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("httpdetector: create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpdetector: load: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpdetector: load: sidecar returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Detect sends img to the sidecar and returns the decoded faces.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]face.Detection, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("httpdetector: encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("httpdetector: create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpdetector: detect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpdetector: detect: sidecar returned HTTP %d", resp.StatusCode)
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("httpdetector: parse JSON response: %w", err)
	}

	out := make([]face.Detection, 0, len(result.Faces))
	for _, f := range result.Faces {
		det := face.Detection{
			Box:         f.Box,
			Landmarks:   f.Landmarks,
			Expressions: f.Expressions,
		}
		if det.Landmarks == nil && len(f.Points) >= 68 {
			lm := reducePoints(f.Points)
			det.Landmarks = &lm
		}
		if det.Expressions == nil {
			det.Expressions = map[string]float64{}
		}
		out = append(out, det)
	}
	return out, nil
}

type detectResponse struct {
	Faces []struct {
		Box         types.BoundingBox  `json:"box"`
		Landmarks   *types.Landmarks   `json:"landmarks"`
		Points      []types.Point      `json:"points"`
		Expressions map[string]float64 `json:"expressions"`
	} `json:"faces"`
}

// reducePoints maps the 68-point landmark model onto the centroid subset.
// Indices follow the iBUG 300-W layout.
func reducePoints(p []types.Point) types.Landmarks {
	return types.Landmarks{
		LeftEye:  centroid(p[36:42]),
		RightEye: centroid(p[42:48]),
		Nose:     centroid(p[27:36]),
		Mouth:    centroid(p[48:68]),
	}
}

func centroid(pts []types.Point) types.Point {
	var c types.Point
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return types.Point{X: c.X / n, Y: c.Y / n}
}
