package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// ElevenLabsClient synthesizes speech over the ElevenLabs HTTP streaming
// endpoint and writes PCM 48kHz mono into the sink.
type ElevenLabsClient struct {
	APIKey         string
	DefaultVoiceID string
	HTTPClient     *http.Client
	sink           PCMSink
	log            zerolog.Logger
}

func NewElevenLabsClient(apiKey, defaultVoiceID string, sink PCMSink, logger zerolog.Logger) *ElevenLabsClient {
	if sink == nil {
		sink = NopSink{}
	}
	return &ElevenLabsClient{
		APIKey:         apiKey,
		DefaultVoiceID: defaultVoiceID,
		HTTPClient:     &http.Client{Timeout: 0},
		sink:           sink,
		log:            logger,
	}
}

// Speak streams PCM_48000 audio for the given text into the sink and returns
// after the stream is fully drained. An empty voice falls back to the
// configured default voice id.
func (e *ElevenLabsClient) Speak(ctx context.Context, text, language, voice string) error {
	if e.APIKey == "" {
		return fmt.Errorf("elevenlabs: api key missing")
	}
	voiceID := voice
	if voiceID == "" {
		voiceID = e.DefaultVoiceID
	}
	if voiceID == "" {
		return fmt.Errorf("elevenlabs: voice id missing")
	}
	if text == "" {
		return nil
	}

	u := url.URL{
		Scheme: "https",
		Host:   "api.elevenlabs.io",
		Path:   "/v1/text-to-speech/" + voiceID + "/stream",
	}
	q := u.Query()
	q.Set("model_id", "eleven_flash_v2_5")
	q.Set("output_format", "pcm_48000")
	// lower streaming latency target (0..4 where lower is lower latency, may trade quality)
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": "eleven_flash_v2_5",
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
		// use shorter chunks to reduce tail cutoff; server still streams
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{80, 120, 160, 200},
		},
	}
	if language != "" {
		// flash v2.5 accepts an explicit language hint
		body["language_code"] = language
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}

	bufChunk := make([]byte, 4096)
	logged := false
	for {
		n, rerr := resp.Body.Read(bufChunk)
		if n > 0 {
			if !logged {
				e.log.Debug().Int("first_chunk_bytes", n).Msg("elevenlabs: receiving audio stream")
				logged = true
			}
			out := make([]byte, n)
			copy(out, bufChunk[:n])
			e.sink.WritePCM(out)
		}
		if rerr != nil {
			if rerr == io.EOF {
				e.sink.FlushTail()
				return nil
			}
			return fmt.Errorf("elevenlabs http read error: %w", rerr)
		}
	}
}
