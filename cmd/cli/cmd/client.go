package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"forgeplane/pkg/api"
)

// Client handles API calls to the forgeplane controller.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do performs one request and decodes the response into out when
// non-nil. Any non-2xx status becomes an APIError.
func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// SubmitJob sends POST /jobs to admit a fabrication job.
func (c *Client) SubmitJob(req api.SubmitJobRequest) (*api.SubmitJobResponse, error) {
	var result api.SubmitJobResponse
	if err := c.do(http.MethodPost, "/jobs", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob sends GET /jobs/{id} to retrieve a job's progress record.
func (c *Client) GetJob(jobID string) (*api.ProgressResponse, error) {
	var result api.ProgressResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/jobs/%s", jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs sends GET /jobs to list the customer's active jobs.
func (c *Client) ListJobs() ([]api.ProgressResponse, error) {
	var result api.ListJobsResponse
	if err := c.do(http.MethodGet, "/jobs", nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// CancelJob sends POST /jobs/{id}/cancel.
func (c *Client) CancelJob(jobID string) (*api.CancelResponse, error) {
	var result api.CancelResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/jobs/%s/cancel", jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEstimate sends GET /estimate for a capability class.
func (c *Client) GetEstimate(capability string) (*api.WaitEstimateResponse, error) {
	var result api.WaitEstimateResponse
	path := "/estimate?capability=" + url.QueryEscape(capability)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListUnits sends GET /units for the pool snapshot.
func (c *Client) ListUnits() ([]api.UnitResponse, error) {
	var result api.ListUnitsResponse
	if err := c.do(http.MethodGet, "/units", nil, &result); err != nil {
		return nil, err
	}
	return result.Units, nil
}

// RegisterUnit sends POST /units to add a unit to the pool.
func (c *Client) RegisterUnit(req api.RegisterUnitRequest) (*api.UnitResponse, error) {
	var result api.UnitResponse
	if err := c.do(http.MethodPost, "/units", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RestoreUnit sends POST /units/{id}/restore to bring a unit back.
func (c *Client) RestoreUnit(unitID string) (*api.UnitResponse, error) {
	var result api.UnitResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/units/%s/restore", unitID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
