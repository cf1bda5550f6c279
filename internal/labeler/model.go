// Package labeler calls the external classifier service to decide whether a
// cleaned tweet describes a real disaster.
package labeler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/crisis-tweet-etl/internal/config"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
)

// The classifier may answer with a bare boolean or with free text such as
// "P(disaster) = 0.87". The strict form is preferred; the permissive one
// catches paraphrases like "probability of disaster: 0.3".
var (
	strictProbRe     = regexp.MustCompile(`(?i)P\(\s*disaster\s*\)\s*[:=]\s*([0-9]*\.?[0-9]+)`)
	permissiveProbRe = regexp.MustCompile(`(?i)disaster[^0-9+\-]*([0-9]*\.?[0-9]+)`)
)

// disasterThreshold converts a probability into a verdict.
const disasterThreshold = 0.5

// Result is one classification verdict with its probability. A boolean-only
// answer maps to probability 1 or 0.
type Result struct {
	IsDisaster  bool
	Probability float64
}

// Client calls the model service's predict endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a labeler client from configuration. ModelURL must be
// set (see config.RequireModelURL).
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.ModelTimeout},
		baseURL:    strings.TrimSuffix(cfg.ModelURL, "/"),
		metrics:    metrics,
		logger:     logger,
	}
}

// Ping probes the model service's readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return fmt.Errorf("create readiness request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model readiness: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model not ready: status %d", resp.StatusCode)
	}
	return nil
}

type predictRequest struct {
	Text string `json:"text"`
}

// predictResponse covers both answer shapes seen from classifier builds:
// {"result": bool-or-string} and {"pred": ..., "probs": "P(disaster)=0.61"}.
type predictResponse struct {
	Result        json.RawMessage `json:"result"`
	Probs         string          `json:"probs"`
	ProbsStr      string          `json:"probs_str"`
	Probabilities string          `json:"probabilities"`
}

// Label classifies one cleaned text. Model errors and unparseable answers
// are returned to the caller; the pipeline decides whether to drop or abort.
func (c *Client) Label(ctx context.Context, text string) (Result, error) {
	payload, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	timer := prometheus.NewTimer(c.metrics.PredictDuration)
	resp, err := c.httpClient.Do(req)
	timer.ObserveDuration()
	if err != nil {
		return Result{}, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("model returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded predictResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Result{}, fmt.Errorf("decode model response: %w", err)
	}

	result, err := parsePredictResponse(decoded)
	if err != nil {
		return Result{}, err
	}

	verdict := "not_disaster"
	if result.IsDisaster {
		verdict = "disaster"
	}
	c.metrics.Predictions.WithLabelValues(verdict).Inc()
	return result, nil
}

// parsePredictResponse picks whichever answer field the model populated.
func parsePredictResponse(resp predictResponse) (Result, error) {
	if len(resp.Result) > 0 {
		return parseResult(resp.Result)
	}
	for _, s := range []string{resp.Probs, resp.ProbsStr, resp.Probabilities} {
		if s == "" {
			continue
		}
		prob, ok := extractProbability(s)
		if !ok {
			return Result{}, fmt.Errorf("no probability found in model result %q", s)
		}
		return Result{IsDisaster: prob >= disasterThreshold, Probability: prob}, nil
	}
	return Result{}, fmt.Errorf("model response missing result field")
}

// parseResult interprets the model's result field: either a JSON boolean or
// a string carrying a probability.
func parseResult(raw json.RawMessage) (Result, error) {

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		prob := 0.0
		if b {
			prob = 1.0
		}
		return Result{IsDisaster: b, Probability: prob}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Result{}, fmt.Errorf("model result is neither bool nor string: %s", raw)
	}

	prob, ok := extractProbability(s)
	if !ok {
		return Result{}, fmt.Errorf("no probability found in model result %q", s)
	}
	return Result{IsDisaster: prob >= disasterThreshold, Probability: prob}, nil
}

func extractProbability(s string) (float64, bool) {
	for _, re := range []*regexp.Regexp{strictProbRe, permissiveProbRe} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		prob, err := strconv.ParseFloat(m[1], 64)
		if err != nil || prob < 0 || prob > 1 {
			continue
		}
		return prob, true
	}
	return 0, false
}
