// Package emotion implements the EmotionClassifier collaborator against an
// HTTP text-classification inference endpoint.
package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/calleq/calleq/pkg/core/types"
)

const defaultTopK = 3

// Client calls a hosted text-classification model (HuggingFace-style
// inference API: POST with {"inputs": text}, response is a ranked list of
// {label, score} pairs).
type Client struct {
	endpoint   string
	apiKey     string
	topK       int
	httpClient *http.Client
}

// NewClient creates an emotion classifier client. endpoint is the full
// model inference URL.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     strings.TrimSpace(apiKey),
		topK:       defaultTopK,
		httpClient: httpClient,
	}
}

// Configured reports whether an endpoint has been set.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

// Classify returns the top-3 emotion signals for text, ordered by
// descending confidence.
func (c *Client) Classify(ctx context.Context, text string) ([]types.EmotionSignal, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("emotion endpoint is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}

	body, err := json.Marshal(map[string]any{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("classifier error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	signals, err := decodeSignals(raw)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("classifier returned no labels")
	}

	// Not every hosted model returns labels ranked, so sort before truncating.
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Score > signals[j].Score
	})
	if len(signals) > c.topK {
		signals = signals[:c.topK]
	}
	return signals, nil
}

type wireSignal struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// decodeSignals accepts both the flat form [{label,score},...] and the
// batched form [[{label,score},...]] that inference endpoints return for
// single-input requests.
func decodeSignals(raw []byte) ([]types.EmotionSignal, error) {
	var flat []wireSignal
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) > 0 && flat[0].Label != "" {
		return toSignals(flat), nil
	}

	var batched [][]wireSignal
	if err := json.Unmarshal(raw, &batched); err == nil && len(batched) > 0 {
		return toSignals(batched[0]), nil
	}

	return nil, fmt.Errorf("unrecognized classifier response shape")
}

func toSignals(wire []wireSignal) []types.EmotionSignal {
	out := make([]types.EmotionSignal, 0, len(wire))
	for _, w := range wire {
		if strings.TrimSpace(w.Label) == "" {
			continue
		}
		out = append(out, types.EmotionSignal{Label: strings.ToLower(w.Label), Score: w.Score})
	}
	return out
}
