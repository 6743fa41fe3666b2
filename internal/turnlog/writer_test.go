package turnlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type captureSink struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func (c *captureSink) Append(_ context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureSink) snapshot() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.recs))
	copy(out, c.recs)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestWriter_PreservesSubmissionOrder(t *testing.T) {
	sink := &captureSink{}
	w := NewWriter(sink, zerolog.Nop())
	defer w.Close()

	for i := int64(0); i < 20; i++ {
		w.Submit(Record{Mode: ModeContinuous, SessionID: "s1", Sequence: i})
	}
	waitFor(t, func() bool { return len(sink.snapshot()) == 20 })
	for i, rec := range sink.snapshot() {
		if rec.Sequence != int64(i) {
			t.Fatalf("record %d out of order: sequence %d", i, rec.Sequence)
		}
	}
}

func TestWriter_SwallowsSinkErrors(t *testing.T) {
	sink := &captureSink{err: errors.New("unreachable")}
	w := NewWriter(sink, zerolog.Nop())
	defer w.Close()

	// must not panic or block the submitter
	for i := 0; i < 5; i++ {
		w.Submit(Record{SessionID: "s1", Sequence: int64(i)})
	}
	time.Sleep(50 * time.Millisecond)
	if len(sink.snapshot()) != 0 {
		t.Fatalf("expected no records through a failing sink")
	}
}

func TestWriter_SubmitAfterCloseIsNoop(t *testing.T) {
	sink := &captureSink{}
	w := NewWriter(sink, zerolog.Nop())
	w.Close()
	w.Submit(Record{SessionID: "s1"})
	time.Sleep(20 * time.Millisecond)
	// either dropped or flushed; the point is no deadlock and no panic
}
