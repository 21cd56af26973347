package riskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Features is the aggregated attendance snapshot handed to the external
// risk-classification service. The service never sees raw check-in events.
type Features struct {
	StudentID        string  `json:"student_id"`
	CourseID         string  `json:"course_id"`
	TotalSessions    int     `json:"total_sessions"`
	AttendedSessions int     `json:"attended_sessions"`
	AttendancePct    float64 `json:"attendance_pct"`
}

// Client calls the risk-classification microservice.
type Client struct {
	baseURL string
	http    *http.Client
	skip    bool
}

// New creates a client. With skip set the client logs nothing and sends
// nothing, for environments without the service.
func New(baseURL string, skip bool) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		skip:    skip,
	}
}

// Health probes the service's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	if c.skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("risk service unhealthy: %s", resp.Status)
	}
	return nil
}

// PushFeatures submits one student's aggregated features for classification.
func (c *Client) PushFeatures(ctx context.Context, f Features) error {
	if c.skip {
		return nil
	}
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/features", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push features: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push features: unexpected status %s", resp.Status)
	}
	return nil
}
