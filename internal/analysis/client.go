// Package analysis talks to the external gnubg evaluation sidecar. The
// sidecar owns the gnubg process; this client only shapes requests and
// decodes responses. It is consulted solely by bot strategies, never on the
// interactive action path.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Evaluation is the sidecar's position assessment.
type Evaluation struct {
	Equity     float64 `json:"equity"`
	WinProb    float64 `json:"win_prob"`
	GammonProb float64 `json:"gammon_prob"`
	BGProb     float64 `json:"bg_prob"`
}

// MoveHint is one ranked candidate play in gnubg notation.
type MoveHint struct {
	Rank     int     `json:"rank"`
	Notation string  `json:"notation"`
	Equity   float64 `json:"equity"`
}

// CubeDecision is the sidecar's doubling recommendation.
type CubeDecision struct {
	NoDoubleEq     float64 `json:"no_double_eq"`
	DoubleTakeEq   float64 `json:"double_take_eq"`
	DoublePassEq   float64 `json:"double_pass_eq"`
	Recommendation string  `json:"recommendation"`
	Details        string  `json:"details,omitempty"`
}

// ShouldDouble interprets the recommendation string.
func (d CubeDecision) ShouldDouble() bool {
	rec := strings.ToLower(d.Recommendation)
	return strings.Contains(rec, "double") && !strings.HasPrefix(rec, "nodouble") && !strings.HasPrefix(rec, "no double")
}

// Client is a thin HTTP client for the gnubg service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for the sidecar at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Healthy reports whether the sidecar is up with a working gnubg binary.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok"
}

// Evaluate scores the position encoded as SGF.
func (c *Client) Evaluate(ctx context.Context, sgf string, plies int) (Evaluation, error) {
	var out Evaluation
	err := c.post(ctx, "/evaluate", sgf, plies, &out)
	return out, err
}

// Hint returns ranked candidate plays for the position and roll.
func (c *Client) Hint(ctx context.Context, sgf string, plies int) ([]MoveHint, error) {
	var out struct {
		Moves []MoveHint `json:"moves"`
	}
	if err := c.post(ctx, "/hint", sgf, plies, &out); err != nil {
		return nil, err
	}
	return out.Moves, nil
}

// Cube returns the doubling recommendation for the position.
func (c *Client) Cube(ctx context.Context, sgf string, plies int) (CubeDecision, error) {
	var out CubeDecision
	err := c.post(ctx, "/cube", sgf, plies, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path, sgf string, plies int, out any) error {
	payload, err := json.Marshal(map[string]any{
		"sgf":   sgf,
		"plies": plies,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gnubg service %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
