package conductor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
)

// traceEntry is one line of a <timestamp>.jsons trace file.
type traceEntry struct {
	Direction string       `json:"direction"` // "up" or "down"
	Hop       string       `json:"hop"`       // leg read from; for the initialize handshake, the leg written to
	Message   jrpc.Message `json:"message"`
}

// Tracer appends one JSON object per line to a trace file. Opening it is
// fatal to Serve at startup; once open, a write failure is logged and the
// trace is abandoned rather than tearing down the connection. Writes from
// concurrent hops are serialized by mu, so lines never interleave.
type Tracer struct {
	mu       sync.Mutex
	f        *os.File
	abandoned bool
}

// newTracer creates dir if needed and opens <dir>/<YYYYMMDD-HHMMSS>.jsons.
func newTracer(dir string) (*Tracer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	name := time.Now().UTC().Format("20060102-150405") + ".jsons"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &Tracer{f: f}, nil
}

// Write appends one trace entry. A marshal or write failure abandons the
// trace permanently rather than failing the caller.
func (t *Tracer) Write(direction, hop string, msg jrpc.Message) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.abandoned {
		return
	}
	line, err := json.Marshal(traceEntry{Direction: direction, Hop: hop, Message: msg})
	if err != nil {
		t.abandoned = true
		return
	}
	line = append(line, '\n')
	if _, err := t.f.Write(line); err != nil {
		t.abandoned = true
	}
}

// Close closes the underlying trace file.
func (t *Tracer) Close() error {
	if t == nil || t.f == nil {
		return nil
	}
	return t.f.Close()
}
