// Package journal records protocol transitions for observability. Entries
// flow to append-only sinks (a JSONL file, a SQLite database); nothing in
// the coordinator ever reads them back to restore state.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry kinds. One per observable protocol transition.
const (
	KindClaimAcked    = "claim_acked"
	KindClaimRejected = "claim_rejected"
	KindProgress      = "progress"
	KindReady         = "ready"
	KindBlocked       = "blocked"
	KindAuditPass     = "audit_pass"
	KindAuditFail     = "audit_fail"
	KindAbort         = "abort"
	KindTimeout       = "timeout"
	KindRetryExhaust  = "retry_exhausted"
	KindTasks         = "tasks_broadcast"
	KindBuildComplete = "build_complete"
)

// Entry is a single journal record.
type Entry struct {
	Ts        time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Component string    `json:"component,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Recorder accepts journal entries. Implementations must tolerate being
// called from the engine's single event loop; recording failures are an
// observability concern and never surface to the protocol channel.
type Recorder interface {
	Record(e Entry)
}

// Emitter writes entries to a JSONL file. It is safe for concurrent use.
// A nil *Emitter is a valid no-op recorder.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewEmitter opens (or creates, or appends to) the JSONL file at path.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Emitter{file: f, enc: json.NewEncoder(f)}, nil
}

// Record writes one entry. Encoding failures are logged, not returned.
func (e *Emitter) Record(entry Entry) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(entry); err != nil {
		log.Warn().Err(err).Str("kind", entry.Kind).Msg("journal: encode entry")
	}
}

// Close flushes and closes the underlying file. Close on a nil Emitter is
// a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	return nil
}

// Fanout returns a Recorder that forwards each entry to every given
// recorder. Nil recorders are skipped.
func Fanout(recorders ...Recorder) Recorder {
	var active []Recorder
	for _, r := range recorders {
		if r != nil {
			active = append(active, r)
		}
	}
	return fanout(active)
}

type fanout []Recorder

func (f fanout) Record(e Entry) {
	for _, r := range f {
		r.Record(e)
	}
}
