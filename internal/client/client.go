// Package client talks to a running prediction service over HTTP.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"housing-forest/internal/ml"
)

type Client struct {
	base string
	rest *resty.Client
}

// New returns a client for the service at base, e.g. http://127.0.0.1:9000.
func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service error: status %d", e.Status)
	}
	return fmt.Sprintf("service error: status %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

type predictRequest struct {
	Features [][]float64 `json:"features"`
}

// Health calls GET /health and fails unless the service reports ok.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&body).
		Get(c.base + "/health")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return &APIError{Status: resp.StatusCode()}
	}
	if body.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", body.Status)
	}
	return nil
}

// Predict sends one batch to POST /predict.
func (c *Client) Predict(ctx context.Context, rows [][]float64) ([]ml.Result, error) {
	if rows == nil {
		rows = [][]float64{}
	}
	var results []ml.Result
	apiErr := &errorBody{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(predictRequest{Features: rows}).
		SetResult(&results).
		SetError(apiErr).
		Post(c.base + "/predict")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	return results, nil
}

// ModelInfo fetches the metadata of the served model.
func (c *Client) ModelInfo(ctx context.Context) (*ml.ModelMetadata, error) {
	md := &ml.ModelMetadata{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(md).
		Get(c.base + "/model/info")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode()}
	}
	return md, nil
}
