// Package speechout serializes text-to-speech playback across the whole
// process. Exactly one utterance may be in flight at a time, covering the live
// session's output and any other screen's use of the speaker.
package speechout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chadiek/live-interpreter/internal/metrics"
	"github.com/chadiek/live-interpreter/internal/tts"
)

// Coordinator owns the single playback-busy flag. There is no queue and no
// fairness guarantee: a Speak call that finds the coordinator busy is dropped
// and the caller is expected to disable its trigger while Busy() is true.
type Coordinator struct {
	port   tts.Port
	settle time.Duration
	log    zerolog.Logger

	mu     sync.Mutex
	busy   bool
	status string
}

func New(port tts.Port, settle time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{port: port, settle: settle, log: logger}
}

// Busy reports whether an utterance is currently in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Status returns the human-readable playback status, empty when idle.
func (c *Coordinator) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Speak plays one utterance. It returns false without side effects when the
// text is blank or a playback is already in flight. It blocks for the duration
// of the synthesis call plus a short settle delay; the delay keeps a caller
// from re-triggering before the audio device has released. Busy always clears,
// on success and on failure alike.
func (c *Coordinator) Speak(ctx context.Context, text, language string, isTranslation bool, voice string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		metrics.Default.PlaybacksRejected.Inc()
		return false
	}
	c.busy = true
	if isTranslation {
		c.status = "speaking translation…"
	} else {
		c.status = "speaking…"
	}
	c.mu.Unlock()

	metrics.Default.PlaybacksStarted.Inc()
	err := c.port.Speak(ctx, text, language, voice)
	if err != nil {
		metrics.Default.PlaybackFailures.Inc()
		c.log.Error().Err(err).Str("language", language).Msg("speech output failed")
		c.mu.Lock()
		c.status = "speech output error"
		c.mu.Unlock()
	}

	time.Sleep(c.settle)

	c.mu.Lock()
	c.busy = false
	c.status = ""
	c.mu.Unlock()
	return true
}
