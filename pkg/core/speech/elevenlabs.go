// Package speech implements the Speaker collaborator with the ElevenLabs
// text-to-speech HTTP API.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "eleven_turbo_v2_5"

	// Synthesized replies are short (two-sentence agent answers); anything
	// past this is a misbehaving upstream.
	maxAudioBytes = 16 << 20
)

// ElevenLabs synthesizes speech via the non-streaming TTS endpoint and
// returns the full audio payload.
type ElevenLabs struct {
	apiKey     string
	voiceID    string
	modelID    string
	baseURL    string
	httpClient *http.Client
}

// NewElevenLabs creates an ElevenLabs speaker for the given voice.
func NewElevenLabs(apiKey, voiceID string, httpClient *http.Client) *ElevenLabs {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ElevenLabs{
		apiKey:     strings.TrimSpace(apiKey),
		voiceID:    strings.TrimSpace(voiceID),
		modelID:    defaultModelID,
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func (e *ElevenLabs) WithBaseURL(base string) *ElevenLabs {
	base = strings.TrimSpace(base)
	if base != "" {
		e.baseURL = strings.TrimRight(base, "/")
	}
	return e
}

// Configured reports whether the speaker has credentials and a voice.
func (e *ElevenLabs) Configured() bool {
	return e != nil && e.apiKey != "" && e.voiceID != ""
}

// Synthesize implements core.Speaker.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !e.Configured() {
		return nil, fmt.Errorf("elevenlabs api key and voice id are required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}

	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", e.baseURL, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("elevenlabs error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	return audio, nil
}
