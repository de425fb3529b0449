// Package analysis talks to the external food-recognition service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"foodrelay/internal/domain"
	"foodrelay/internal/metrics"

	"github.com/go-playground/validator/v10"
)

const (
	maxResponseBytes = 4 << 20
	maxLoggedBody    = 2048
)

// ClientConfig configures the analysis service client.
type ClientConfig struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client // optional; built from Timeout when nil
	Logger     *slog.Logger
}

// Client posts one AnalysisRequest per call. It never retries.
type Client struct {
	endpoint string
	client   *http.Client
	validate *validator.Validate
	logger   *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = SharedHTTPClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		client:   hc,
		validate: validator.New(),
		logger:   logger,
	}
}

func (c *Client) Endpoint() string { return c.endpoint }

// response is the wire shape. Foods stays raw so a missing array can be
// told apart from an empty one.
type response struct {
	Foods json.RawMessage `json:"foods"`
	domain.Totals
}

// Analyze sends req and decodes the nutrition result. Transport failures
// and timeouts map to ErrAnalysisUnavailable; non-2xx statuses and bodies
// without a foods array map to ErrAnalysisRejected.
func (c *Client) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, &domain.AnalysisError{Kind: domain.ErrAnalysisRejected, Err: fmt.Errorf("invalid request: %w", err)}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	metrics.AnalysesTotal.Inc()
	start := time.Now()
	resp, err := c.client.Do(httpReq)
	metrics.AnalysisLatency.Since(start)
	if err != nil {
		metrics.AnalysesFailed.Inc()
		c.logger.Error("analysis service unreachable", "endpoint", c.endpoint, "elapsed", time.Since(start), "err", err)
		return nil, &domain.AnalysisError{Kind: domain.ErrAnalysisUnavailable, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.AnalysesFailed.Inc()
		return nil, &domain.AnalysisError{Kind: domain.ErrAnalysisUnavailable, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.AnalysesFailed.Inc()
		c.logger.Error("analysis service error",
			"endpoint", c.endpoint,
			"status", resp.StatusCode,
			"body", truncate(string(raw), maxLoggedBody),
			"headers", resp.Header,
		)
		return nil, &domain.AnalysisError{
			Kind:   domain.ErrAnalysisRejected,
			Status: resp.StatusCode,
			Body:   errorPayload(raw),
			Header: resp.Header,
		}
	}

	result, err := decode(raw)
	if err != nil {
		metrics.AnalysesFailed.Inc()
		c.logger.Error("analysis response malformed",
			"endpoint", c.endpoint,
			"status", resp.StatusCode,
			"body", truncate(string(raw), maxLoggedBody),
			"err", err,
		)
		return nil, &domain.AnalysisError{Kind: domain.ErrAnalysisRejected, Status: resp.StatusCode, Header: resp.Header, Err: err}
	}

	c.logger.Info("analysis complete",
		"foods", len(result.Foods),
		"total_calories", result.Calories,
		"elapsed", time.Since(start),
	)
	return result, nil
}

var errMissingFoods = errors.New("response has no foods array")

func decode(raw []byte) (*domain.AnalysisResult, error) {
	var wire response
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	trimmed := bytes.TrimSpace(wire.Foods)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errMissingFoods
	}
	var foods []domain.FoodItem
	if err := json.Unmarshal(trimmed, &foods); err != nil {
		return nil, fmt.Errorf("decode foods: %w", err)
	}
	return &domain.AnalysisResult{Foods: foods, Totals: wire.Totals}, nil
}

// errorPayload extracts the service's structured error when it sent one,
// otherwise a bounded copy of the body.
func errorPayload(raw []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, key := range []string{"error", "message", "detail"} {
			if v, ok := payload[key]; ok {
				if s, ok := v.(string); ok {
					return s
				}
				if b, err := json.Marshal(v); err == nil {
					return string(b)
				}
			}
		}
	}
	return truncate(string(bytes.TrimSpace(raw)), 256)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Healthy checks that the service's origin answers at all. A cold service
// may take most of the timeout to respond.
func (c *Client) Healthy(ctx context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	origin := u.Scheme + "://" + u.Host + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("analysis service not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("analysis service returned %d", resp.StatusCode)
	}
	return nil
}
