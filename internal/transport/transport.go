// Package transport moves protocol text between agents and the engine.
// The engine only ever sees a stream of (text, sender) lines inbound and a
// fire-and-forget Deliver(text) outbound; everything about where those
// lines physically travel lives here.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Line is one inbound protocol line with its sender identifier.
type Line struct {
	Text   string
	Sender string
}

// ParseLine splits a raw transport line into sender and text. Lines use a
// "sender: text" prefix; lines without one are attributed to fallback.
func ParseLine(raw, fallback string) Line {
	if sender, text, ok := strings.Cut(raw, ":"); ok {
		sender = strings.TrimSpace(sender)
		// A sender id is a single bare token; anything else means the
		// colon belonged to the message body.
		if sender != "" && !strings.ContainsAny(sender, " \t") {
			return Line{Text: strings.TrimSpace(text), Sender: sender}
		}
	}
	return Line{Text: strings.TrimSpace(raw), Sender: fallback}
}

// Console is a line transport over an arbitrary reader/writer pair,
// typically stdin/stdout. Inbound lines carry a "sender: text" prefix;
// outbound messages are written as-is, one per Deliver call.
type Console struct {
	In            io.Reader
	Out           io.Writer
	DefaultSender string

	mu sync.Mutex
}

// Deliver writes one outbound message. Write errors are logged and
// dropped; delivery is fire-and-forget.
func (c *Console) Deliver(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.Out, text); err != nil {
		log.Warn().Err(err).Msg("transport: console deliver")
	}
}

// Lines starts a reader goroutine and returns the inbound line channel.
// The channel closes when the reader hits EOF or an error.
func (c *Console) Lines() <-chan Line {
	out := make(chan Line)
	fallback := c.DefaultSender
	if fallback == "" {
		fallback = "console"
	}
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(c.In)
		for scanner.Scan() {
			raw := scanner.Text()
			if strings.TrimSpace(raw) == "" {
				continue
			}
			out <- ParseLine(raw, fallback)
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("transport: console read")
		}
	}()
	return out
}
