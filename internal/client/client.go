package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scorewise/scorewise/internal/api"
	apperrors "github.com/scorewise/scorewise/internal/errors"
)

// Client talks to the prediction service. Every call returns an explicit
// error; callers must branch on it before reading result fields. An
// unreachable service or a non-200 status surfaces as an upstream error, never
// a zero-valued response.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Health checks the liveness endpoint and returns its message.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Predict scores one positional value list.
func (c *Client) Predict(ctx context.Context, values []any) (*api.PredictResponse, error) {
	var out api.PredictResponse
	if err := c.do(ctx, http.MethodPost, "/predict", api.PredictRequest{Values: values}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Features fetches the declared feature metadata.
func (c *Client) Features(ctx context.Context) ([]api.FeatureInfo, error) {
	var out api.FeaturesResponse
	if err := c.do(ctx, http.MethodGet, "/features", nil, &out); err != nil {
		return nil, err
	}
	return out.Features, nil
}

// Importance fetches the global attribution summary artifact.
func (c *Client) Importance(ctx context.Context) (*api.ImportanceResponse, error) {
	var out api.ImportanceResponse
	if err := c.do(ctx, http.MethodGet, "/importance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PopulationFeatures lists the features available for population comparison.
func (c *Client) PopulationFeatures(ctx context.Context) ([]string, error) {
	var out struct {
		Features []string `json:"features"`
	}
	if err := c.do(ctx, http.MethodGet, "/population/features", nil, &out); err != nil {
		return nil, err
	}
	return out.Features, nil
}

// Histogram fetches the population distribution of one feature, optionally
// with the percentile of an applicant value.
func (c *Client) Histogram(ctx context.Context, feature string, value *float64) (*api.HistogramResponse, error) {
	path := "/population/" + url.PathEscape(feature) + "/histogram"
	if value != nil {
		path += fmt.Sprintf("?value=%v", *value)
	}
	var out api.HistogramResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewUpstreamError("prediction service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewUpstreamError(
			fmt.Sprintf("prediction service returned %d: %s", resp.StatusCode, errorDetail(resp.Body)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewUpstreamError("prediction service returned an unreadable response", err)
	}
	return nil
}

// errorDetail pulls the "detail" field out of an error body, falling back to
// the raw text.
func errorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return strings.TrimSpace(string(raw))
}
