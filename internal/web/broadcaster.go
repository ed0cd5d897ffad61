package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// LogEvent is one line of the live activity feed.
type LogEvent struct {
	Time string `json:"t"`
	Msg  string `json:"msg"`
}

// LogBroadcaster distributes activity lines to multiple SSE clients.
type LogBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewLogBroadcaster creates a new broadcaster.
func NewLogBroadcaster() *LogBroadcaster {
	return &LogBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *LogBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a message to all subscribed clients.
// Messages are sent as JSON: {"t":"...","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *LogBroadcaster) Broadcast(msg string) {
	evt := LogEvent{
		Time: time.Now().Format(time.RFC3339),
		Msg:  msg,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter wraps the broadcaster as an io.Writer, so the debug
// output can be teed into the live feed. Each Write broadcasts one line.
func BroadcastWriter(b *LogBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *LogBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast(msg)
	}
	return len(p), nil
}
