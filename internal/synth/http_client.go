package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/subdub/subdub/internal/audio"
	"github.com/subdub/subdub/internal/resilience"
)

// HTTPClient speaks to a PCM-over-POST synthesis API: one JSON request
// per utterance, raw 16-bit little-endian PCM in the response body.
type HTTPClient struct {
	apiURL     string
	apiKey     string
	sampleRate int
	httpClient *http.Client
}

type synthesisRequest struct {
	Text         string `json:"text"`
	VoiceID      string `json:"voice_id"`
	OutputFormat string `json:"output_format,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
}

// NewHTTPClient creates a client for the given endpoint. The service
// is asked for PCM at sampleRate; a different rate in the response is
// resampled at this boundary.
func NewHTTPClient(apiURL, apiKey string, sampleRate int) *HTTPClient {
	return &HTTPClient{
		apiURL:     apiURL,
		apiKey:     apiKey,
		sampleRate: sampleRate,
		httpClient: &http.Client{},
	}
}

// Name implements Synthesizer.
func (c *HTTPClient) Name() string { return "http" }

// Synthesize implements Synthesizer.
func (c *HTTPClient) Synthesize(ctx context.Context, text, voice string) (*audio.Buffer, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:         text,
		VoiceID:      voice,
		OutputFormat: "pcm",
		SampleRate:   c.sampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("synthesis request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("synthesis API returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewRetryableError(err)
		}
		return nil, err
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("read synthesis response: %w", err))
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	return audio.DecodePCM16(pcm, c.sampleRate)
}
