package turnlog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chadiek/live-interpreter/internal/metrics"
)

// Writer drains records into a Sink on a single goroutine so that submission
// order is preserved per session. Submit never blocks the caller beyond a full
// buffer; append failures are logged and counted, not surfaced.
type Writer struct {
	sink    Sink
	queue   chan Record
	done    chan struct{}
	log     zerolog.Logger
	timeout time.Duration
}

// NewWriter starts the drain goroutine. Close releases it.
func NewWriter(sink Sink, logger zerolog.Logger) *Writer {
	w := &Writer{
		sink:    sink,
		queue:   make(chan Record, 128),
		done:    make(chan struct{}),
		log:     logger,
		timeout: 10 * time.Second,
	}
	go w.drain()
	return w
}

// Submit enqueues a record for appending. It blocks only if the buffer is
// full, which keeps ordering without unbounded memory.
func (w *Writer) Submit(rec Record) {
	select {
	case <-w.done:
	case w.queue <- rec:
	}
}

// Close stops the drain loop after the queue empties.
func (w *Writer) Close() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

func (w *Writer) drain() {
	for {
		select {
		case rec := <-w.queue:
			w.append(rec)
		case <-w.done:
			// flush whatever is already queued
			for {
				select {
				case rec := <-w.queue:
					w.append(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) append(rec Record) {
	if w.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.sink.Append(ctx, rec); err != nil {
		metrics.Default.TurnRecordErrors.Inc()
		w.log.Error().Err(err).
			Str("session_id", rec.SessionID).
			Int64("sequence", rec.Sequence).
			Msg("turn log append failed")
		return
	}
	metrics.Default.TurnRecordsSubmitted.Inc()
}
