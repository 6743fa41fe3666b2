// Package recognition abstracts the streaming speech-to-text engine. A stream
// is opened per language and asynchronously emits partial transcripts, one
// final transcript per detected utterance, and at most one terminal error.
package recognition

import "context"

// EventKind discriminates stream events.
type EventKind int

const (
	// EventPartial carries a live, still-changing transcript fragment.
	EventPartial EventKind = iota
	// EventFinal carries one completed utterance.
	EventFinal
	// EventError signals the stream is dead; no further events follow.
	EventError
)

// Event is one asynchronous recognition result.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Stream is one open recognition cycle for a single language.
type Stream interface {
	// Events delivers partial/final/error events. The channel closes when the
	// stream is closed or errors out.
	Events() <-chan Event
	// SendPCM16KLE feeds 16kHz little-endian mono PCM audio.
	SendPCM16KLE(pcm []byte) error
	// Close tears the stream down. Closing twice, or closing a stream that
	// already errored, is safe.
	Close() error
}

// Port opens recognition streams.
type Port interface {
	Open(ctx context.Context, language string) (Stream, error)
}
