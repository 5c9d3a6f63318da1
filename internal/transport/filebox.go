package transport

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Filebox is a file-based line transport: agents append "sender: text"
// lines to an inbox file, and the coordinator appends rendered protocol
// messages to an outbox file. The inbox is tailed with fsnotify, so agents
// can be plain shell processes with no connection to the coordinator.
type Filebox struct {
	InboxPath  string
	OutboxPath string
	Lines      <-chan Line // Read-only external channel

	lines   chan Line // Internal write channel
	quit    chan struct{}
	done    chan struct{}
	watcher *fsnotify.Watcher

	offset  int64  // Bytes of the inbox already consumed
	partial string // Trailing bytes not yet terminated by a newline

	outMu sync.Mutex
}

// NewFilebox creates a transport over the given inbox and outbox paths.
// The inbox is created if missing; content already present at startup is
// skipped so restarts do not replay old commands.
func NewFilebox(inbox, outbox string) (*Filebox, error) {
	f, err := os.OpenFile(inbox, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transport: open inbox %s: %w", inbox, err)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("transport: stat inbox %s: %w", inbox, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("transport: create watcher: %w", err)
	}

	ch := make(chan Line, 16)
	return &Filebox{
		InboxPath:  inbox,
		OutboxPath: outbox,
		Lines:      ch,
		lines:      ch,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		watcher:    fw,
		offset:     info.Size(),
	}, nil
}

// Start begins tailing the inbox file.
func (fb *Filebox) Start() error {
	// Watch the parent directory: watching the file itself breaks when a
	// writer replaces it via rename.
	if err := fb.watcher.Add(filepath.Dir(fb.InboxPath)); err != nil {
		return fmt.Errorf("transport: watch inbox dir: %w", err)
	}
	go fb.loop()
	return nil
}

// Stop closes the watcher and the line channel. Safe to call even when the
// consumer has already stopped reading lines.
func (fb *Filebox) Stop() {
	close(fb.quit)
	fb.watcher.Close()
	<-fb.done // Wait for loop to exit
	close(fb.lines)
}

// Deliver appends one outbound message to the outbox. Write errors are
// logged and dropped; delivery is fire-and-forget.
func (fb *Filebox) Deliver(text string) {
	fb.outMu.Lock()
	defer fb.outMu.Unlock()
	f, err := os.OpenFile(fb.OutboxPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Msg("transport: open outbox")
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, text); err != nil {
		log.Warn().Err(err).Msg("transport: append outbox")
	}
}

func (fb *Filebox) loop() {
	defer close(fb.done)

	inboxName := filepath.Base(fb.InboxPath)
	for {
		select {
		case event, ok := <-fb.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != inboxName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fb.drain()
		case err, ok := <-fb.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("transport: inbox watch")
		}
	}
}

// drain reads everything appended to the inbox since the last consumed
// offset and emits complete lines. A trailing unterminated line is held
// back until its newline arrives.
func (fb *Filebox) drain() {
	f, err := os.Open(fb.InboxPath)
	if err != nil {
		log.Warn().Err(err).Msg("transport: open inbox for read")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Warn().Err(err).Msg("transport: stat inbox")
		return
	}
	if info.Size() < fb.offset {
		// Inbox was truncated or replaced; start over from the top.
		fb.offset = 0
		fb.partial = ""
	}
	if info.Size() == fb.offset {
		return
	}

	if _, err := f.Seek(fb.offset, io.SeekStart); err != nil {
		log.Warn().Err(err).Msg("transport: seek inbox")
		return
	}
	data, err := io.ReadAll(f)
	if err != nil {
		log.Warn().Err(err).Msg("transport: read inbox")
		return
	}
	fb.offset += int64(len(data))

	buf := fb.partial + string(data)
	for {
		line, rest, found := strings.Cut(buf, "\n")
		if !found {
			break
		}
		buf = rest
		if strings.TrimSpace(line) == "" {
			continue
		}
		select {
		case fb.lines <- ParseLine(line, "agent"):
		case <-fb.quit:
			return
		}
	}
	fb.partial = buf
}
