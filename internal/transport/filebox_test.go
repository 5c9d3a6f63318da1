package transport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestFilebox(t *testing.T) *Filebox {
	t.Helper()
	dir := t.TempDir()
	fb, err := NewFilebox(filepath.Join(dir, "inbox"), filepath.Join(dir, "outbox"))
	if err != nil {
		t.Fatalf("NewFilebox: %v", err)
	}
	if err := fb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(fb.Stop)
	return fb
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append %s: %v", path, err)
	}
}

func TestFileboxTailsInbox(t *testing.T) {
	t.Parallel()

	fb := newTestFilebox(t)

	appendFile(t, fb.InboxPath, "agent1: CLAIM codec\n")
	ln := waitLine(t, fb.Lines)
	if ln.Sender != "agent1" || ln.Text != "CLAIM codec" {
		t.Errorf("line = %+v", ln)
	}

	appendFile(t, fb.InboxPath, "agent2: PROGRESS codec 50\n")
	ln = waitLine(t, fb.Lines)
	if ln.Sender != "agent2" || ln.Text != "PROGRESS codec 50" {
		t.Errorf("line = %+v", ln)
	}
}

func TestFileboxHoldsPartialLines(t *testing.T) {
	t.Parallel()

	fb := newTestFilebox(t)

	// No newline yet: the fragment must not be emitted.
	appendFile(t, fb.InboxPath, "agent1: CLAIM co")
	select {
	case ln := <-fb.Lines:
		t.Fatalf("got premature line %+v", ln)
	case <-time.After(300 * time.Millisecond):
	}

	appendFile(t, fb.InboxPath, "dec\n")
	ln := waitLine(t, fb.Lines)
	if ln.Text != "CLAIM codec" {
		t.Errorf("Text = %q, want reassembled line", ln.Text)
	}
}

func TestFileboxSkipsPreexistingContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	appendFile(t, inbox, "agent1: CLAIM old\n")

	fb, err := NewFilebox(inbox, filepath.Join(dir, "outbox"))
	if err != nil {
		t.Fatalf("NewFilebox: %v", err)
	}
	if err := fb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(fb.Stop)

	appendFile(t, inbox, "agent1: CLAIM new\n")
	ln := waitLine(t, fb.Lines)
	if ln.Text != "CLAIM new" {
		t.Errorf("Text = %q: startup backlog should be skipped", ln.Text)
	}
}

func TestFileboxDeliverAppends(t *testing.T) {
	t.Parallel()

	fb := newTestFilebox(t)

	fb.Deliver("ACK codec agent1")
	fb.Deliver("MERGED codec")

	data, err := os.ReadFile(fb.OutboxPath)
	if err != nil {
		t.Fatalf("reading outbox: %v", err)
	}
	want := "ACK codec agent1\nMERGED codec\n"
	if string(data) != want {
		t.Errorf("outbox = %q, want %q", string(data), want)
	}
	if strings.Count(string(data), "\n") != 2 {
		t.Errorf("outbox should hold one message per line")
	}
}
