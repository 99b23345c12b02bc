package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"monasterywatch/internal/config"
)

// Result is the scorer's verdict on one baseline/current pair. Fields beyond
// SSIMScore and Severity are optional depending on which code path the
// service took; callers must tolerate partial population.
type Result struct {
	SSIMScore            float64  `json:"ssim_score"`
	Severity             string   `json:"severity"`
	ChangeDetected       *bool    `json:"change_detected,omitempty"`
	DifferenceImage      string   `json:"difference_image,omitempty"` // base64 JPEG
	DifferencePercentage *float64 `json:"difference_percentage,omitempty"`
	ContourCount         *int     `json:"contour_count,omitempty"`
	AffectedArea         *float64 `json:"affected_area,omitempty"`
	Message              string   `json:"message,omitempty"`
}

// Client talks to the external image-comparison service. The service does
// all the actual pixel work; this client only moves bytes and decodes the
// verdict.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	healthTimeout time.Duration
}

func NewClient(cfg config.ScorerConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		healthTimeout: healthTimeout,
	}
}

// Compare submits both images plus classification metadata as multipart
// form data and returns the decoded verdict. Any transport failure, timeout
// or non-2xx response is returned as an error; the caller decides whether
// to retry.
func (c *Client) Compare(ctx context.Context, baseline, current []byte, location, structureComponent string) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, part := range []struct {
		field, filename string
		data            []byte
	}{
		{"baseline_image", "baseline.jpg", baseline},
		{"current_image", "current.jpg", current},
	} {
		fw, err := writer.CreateFormFile(part.field, part.filename)
		if err != nil {
			return nil, fmt.Errorf("create form file %s: %w", part.field, err)
		}
		if _, err := fw.Write(part.data); err != nil {
			return nil, fmt.Errorf("write form file %s: %w", part.field, err)
		}
	}

	if location != "" {
		if err := writer.WriteField("location", location); err != nil {
			return nil, fmt.Errorf("write location field: %w", err)
		}
	}
	if structureComponent != "" {
		if err := writer.WriteField("structure_component", structureComponent); err != nil {
			return nil, fmt.Errorf("write structure_component field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/compare", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scorer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scorer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode scorer response: %w", err)
	}

	return &result, nil
}

// Health probes the scorer's health endpoint. Used for readiness reporting
// only; individual compare calls are never gated on it.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scorer health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scorer health returned status %d", resp.StatusCode)
	}
	return nil
}
