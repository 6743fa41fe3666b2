package recognition

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestOpen_RejectsMissingKeyOrLanguage(t *testing.T) {
	p := NewAssemblyAIPort("", zerolog.Nop())
	if _, err := p.Open(context.Background(), "en-US"); err == nil {
		t.Fatalf("expected error for empty api key")
	}
	p = NewAssemblyAIPort("key", zerolog.Nop())
	if _, err := p.Open(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty language")
	}
}

func TestTrackVoiceActivity_SetsLastVoiceOnLoudFrame(t *testing.T) {
	s := &assemblyStream{log: zerolog.Nop()}
	samples := make([]byte, 160*2)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(samples[i*2:(i+1)*2], 3000)
	}
	s.trackVoiceActivity(samples)
	s.accMu.Lock()
	defer s.accMu.Unlock()
	if time.Since(s.lastVoiceTime) > time.Second {
		t.Fatalf("expected lastVoiceTime updated by loud frame")
	}
}

func TestCommitDelta_EmitsOnlyUncommittedSuffix(t *testing.T) {
	s := &assemblyStream{log: zerolog.Nop()}
	s.accMu.Lock()
	s.latestFullTranscript = "hello world"
	s.committedFullTranscript = "hello"
	delta := s.commitDeltaLocked()
	s.accMu.Unlock()
	if delta != "world" {
		t.Fatalf("delta: got %q", delta)
	}
	s.accMu.Lock()
	again := s.commitDeltaLocked()
	s.accMu.Unlock()
	if again != "" {
		t.Fatalf("expected no delta after commit, got %q", again)
	}
}

func TestHelpers_LastWordAndContinuation(t *testing.T) {
	if lastWord("") != "" {
		t.Fatalf("lastWord empty mismatch")
	}
	if lastWord("hi there!") != "there" {
		t.Fatalf("lastWord basic mismatch")
	}
	if !isContinuationLikely("we should and") {
		t.Fatalf("expected continuation likely when last word is 'and'")
	}
	if isContinuationLikely("complete sentence.") {
		t.Fatalf("did not expect continuation likely")
	}
}
