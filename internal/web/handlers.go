package web

import (
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"
)

// Status is the snapshot served to the monitor page. It is assembled
// while the control loop may be moving the tray, so the numbers are
// advisory; the STATUS command is the serialized source of truth.
type Status struct {
	Homed           bool    `json:"homed"`
	Compartment     int     `json:"compartment"`
	PositionSteps   int64   `json:"position_steps"`
	PositionDegrees float64 `json:"position_degrees"`
	Counts          []int   `json:"counts"`
	TotalDispensed  int     `json:"total_dispensed"`
}

// StatusFunc produces the current snapshot.
type StatusFunc func() Status

// CommandFunc runs one command line and returns the reply line. It is
// the same entry point the serial channel uses, including the busy
// rejection while another command is in flight.
type CommandFunc func(line string) string

// maxCommandBytes bounds the POST /api/command body. Command lines are
// a few dozen bytes; anything bigger is not a command.
const maxCommandBytes = 1 << 10

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *LogBroadcaster
	Status      StatusFunc
	Command     CommandFunc
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If command is nil, POST /api/command will return 503 Service Unavailable.
func NewHandlers(broadcaster *LogBroadcaster, status StatusFunc, command CommandFunc, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Status:      status,
		Command:     command,
		staticFS:    staticFS,
	}
}

// HandleStatus returns the dispenser snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Status == nil {
		http.Error(w, "status not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Status())
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCommand handles POST /api/command. The body is one protocol
// command line as plain text; the response body is the reply line.
// Protocol failures (busy, homing failed, unknown command) are ERROR
// reply lines with HTTP 200, the HTTP status only covers transport
// problems.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.Command == nil {
		http.Error(w, "command channel not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}
	line := strings.TrimSpace(string(body))
	if line == "" {
		http.Error(w, "empty command", http.StatusBadRequest)
		return
	}

	reply := h.Command(line)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, reply+"\n")
}

// HandleLiveStream handles GET /api/live for SSE.
func (h *Handlers) HandleLiveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
