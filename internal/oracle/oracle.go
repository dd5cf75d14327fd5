// Package oracle wraps the external AI service that judges whether a
// hand-drawn solution image answers a question correctly.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Oracle judges a solution image against a question's text.
type Oracle interface {
	Verify(ctx context.Context, question, image string) (bool, error)
}

// Client calls the verify-solution HTTP route. The image is a
// self-describing data URL rendered from the learner's strokes.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Question string `json:"question"`
	Image    string `json:"image"`
}

type verifyResponse struct {
	Success bool `json:"success"`
	Data    struct {
		IsCorrect bool `json:"is_correct"`
	} `json:"data"`
}

func (c *Client) Verify(ctx context.Context, question, image string) (bool, error) {
	body, err := json.Marshal(verifyRequest{Question: question, Image: image})
	if err != nil {
		return false, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify-solution", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify solution: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("verify solution: unexpected status %d", resp.StatusCode)
	}

	var parsed verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("decode verify response: %w", err)
	}
	if !parsed.Success {
		return false, fmt.Errorf("verify solution: oracle reported failure")
	}
	return parsed.Data.IsCorrect, nil
}
