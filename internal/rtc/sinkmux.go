package rtc

import "sync"

// target is the subset of OpusPacedWriter the mux forwards to.
type target interface {
	WritePCM([]byte)
	FlushTail()
	Reset()
}

// SinkMux is a tts.PCMSink that forwards to the paced writer of the currently
// connected peer, or discards audio when no peer is attached. Speech clients
// are constructed once at startup while browser connections come and go, so
// the mux sits between them.
type SinkMux struct {
	mu  sync.Mutex
	cur target
}

func NewSinkMux() *SinkMux { return &SinkMux{} }

// Attach makes w the active output. Any previous target is simply replaced.
func (m *SinkMux) Attach(w target) {
	m.mu.Lock()
	m.cur = w
	m.mu.Unlock()
}

// Detach clears the active output only if it is still w, so a newer
// connection is never knocked out by an older one tearing down.
func (m *SinkMux) Detach(w target) {
	m.mu.Lock()
	if m.cur == w {
		m.cur = nil
	}
	m.mu.Unlock()
}

func (m *SinkMux) WritePCM(pcm []byte) {
	m.mu.Lock()
	cur := m.cur
	m.mu.Unlock()
	if cur != nil {
		cur.WritePCM(pcm)
	}
}

func (m *SinkMux) FlushTail() {
	m.mu.Lock()
	cur := m.cur
	m.mu.Unlock()
	if cur != nil {
		cur.FlushTail()
	}
}

func (m *SinkMux) Reset() {
	m.mu.Lock()
	cur := m.cur
	m.mu.Unlock()
	if cur != nil {
		cur.Reset()
	}
}
