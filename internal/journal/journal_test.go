package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmitterWritesJSONL(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.jsonl")
	em, err := NewEmitter(path)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	em.Record(Entry{Ts: ts, Kind: KindClaimAcked, Component: "codec", Sender: "agent1"})
	em.Record(Entry{Ts: ts.Add(time.Second), Kind: KindProgress, Component: "codec", Sender: "agent1", Detail: "40%"})
	if err := em.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Kind != KindClaimAcked || entries[0].Component != "codec" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Detail != "40%" {
		t.Errorf("entries[1].Detail = %q", entries[1].Detail)
	}
}

func TestEmitterAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.jsonl")
	for i := 0; i < 2; i++ {
		em, err := NewEmitter(path)
		if err != nil {
			t.Fatalf("NewEmitter: %v", err)
		}
		em.Record(Entry{Kind: KindTasks})
		if err := em.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	f, _ := os.Open(path)
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("got %d lines (%q), want reopened file to append", lines, data)
	}
}

func TestNilEmitterIsNoop(t *testing.T) {
	t.Parallel()

	var em *Emitter
	em.Record(Entry{Kind: KindTasks})
	if err := em.Close(); err != nil {
		t.Errorf("Close on nil emitter: %v", err)
	}
}

type countRecorder struct{ n int }

func (c *countRecorder) Record(Entry) { c.n++ }

func TestFanout(t *testing.T) {
	t.Parallel()

	a, b := &countRecorder{}, &countRecorder{}
	rec := Fanout(a, nil, b)
	rec.Record(Entry{Kind: KindTasks})
	rec.Record(Entry{Kind: KindTimeout})

	if a.n != 2 || b.n != 2 {
		t.Errorf("counts = %d, %d; want 2, 2", a.n, b.n)
	}
}
