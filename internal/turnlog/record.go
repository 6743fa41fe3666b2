// Package turnlog persists finalized conversation turns, in submission order,
// fire-and-forget from the controller's point of view.
package turnlog

import "context"

// Record is one persisted translate cycle. Exactly one record is emitted per
// successfully translated utterance; the sequence value is assigned by the
// controller immediately before submission and never reused.
type Record struct {
	Mode           string `json:"mode"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	SessionID      string `json:"session_id"`
	SpeakerSlot    string `json:"speaker_slot"`
	Direction      string `json:"direction"`
	Sequence       int64  `json:"sequence"`
}

// ModeContinuous tags records produced by the live turn-taking session.
const ModeContinuous = "continuous"

// Sink is the durable backend the writer drains into.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}
