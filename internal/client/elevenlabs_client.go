package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/talecraft/api/internal/config"
)

// VoiceSettings tunes the narration of one voice
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// VoiceProfile identifies a voice and how it should sound
type VoiceProfile struct {
	VoiceID  string
	Settings VoiceSettings
}

var (
	PrimaryVoiceSettings = VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.5,
		Style:           0.48,
		UseSpeakerBoost: true,
	}
	FallbackVoiceSettings = VoiceSettings{
		Stability:       0.6,
		SimilarityBoost: 0.75,
		Style:           0.3,
		UseSpeakerBoost: true,
	}
)

// TTSError is a non-2xx answer from the text-to-speech API
type TTSError struct {
	StatusCode int
	Body       string
}

func (e *TTSError) Error() string {
	return fmt.Sprintf("elevenlabs API error (status %d): %s", e.StatusCode, e.Body)
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// ElevenLabsClient handles communication with the ElevenLabs TTS API
type ElevenLabsClient struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	modelID         string
	voiceID         string
	fallbackVoiceID string
}

// NewElevenLabsClient creates a new ElevenLabs API client
func NewElevenLabsClient(cfg *config.ElevenLabsConfig) *ElevenLabsClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &ElevenLabsClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		modelID:         cfg.ModelID,
		voiceID:         cfg.VoiceID,
		fallbackVoiceID: cfg.FallbackVoiceID,
	}
}

// PrimaryVoice returns the configured narration voice
func (c *ElevenLabsClient) PrimaryVoice() VoiceProfile {
	return VoiceProfile{VoiceID: c.voiceID, Settings: PrimaryVoiceSettings}
}

// FallbackVoice returns the alternate voice, ok is false when none is configured
func (c *ElevenLabsClient) FallbackVoice() (VoiceProfile, bool) {
	if c.fallbackVoiceID == "" {
		return VoiceProfile{}, false
	}
	return VoiceProfile{VoiceID: c.fallbackVoiceID, Settings: FallbackVoiceSettings}, true
}

// Synthesize converts text to MPEG audio with the given voice
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error) {
	bodyBytes, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       c.modelID,
		VoiceSettings: voice.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, voice.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TTSError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	return respBody, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ElevenLabsClient) IsConfigured() bool {
	return c.apiKey != "" && c.voiceID != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
