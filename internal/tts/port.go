// Package tts turns text into spoken audio. Implementations synthesize PCM
// 48kHz mono and write it into an injected sink; Speak returns once the
// synthesis stream has drained or failed.
package tts

import "context"

// PCMSink consumes 48kHz PCM bytes and performs delivery (e.g. Opus encode to
// WebRTC). Implementations should buffer internally and pace delivery.
type PCMSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued frames immediately.
	Reset()
}

// Port is the speech-output capability: one utterance per call.
type Port interface {
	Speak(ctx context.Context, text, language, voice string) error
}

// NopSink discards audio. Used when no playback transport is attached.
type NopSink struct{}

func (NopSink) WritePCM(_ []byte) {}
func (NopSink) FlushTail()        {}
func (NopSink) Reset()            {}
