// Package protocol implements the line-oriented coordination protocol spoken
// between the magnetar coordinator and its agents. Parsing turns free-text
// lines into structured events; rendering turns coordinator decisions back
// into fixed-shape lines. The package holds no state.
package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the type of an inbound protocol event.
type Kind int

const (
	KindClaim Kind = iota + 1
	KindProgress
	KindReady
	KindBlocked
	KindAudit
	KindAbort
)

// String returns the protocol keyword for a kind.
func (k Kind) String() string {
	switch k {
	case KindClaim:
		return "CLAIM"
	case KindProgress:
		return "PROGRESS"
	case KindReady:
		return "READY"
	case KindBlocked:
		return "BLOCKED"
	case KindAudit:
		return "AUDIT"
	case KindAbort:
		return "ABORT"
	}
	return "UNKNOWN"
}

// Event is a parsed inbound protocol message. Component names are
// case-insensitive identifiers and arrive lower-cased. Sender is injected
// by the caller, never parsed from the text itself.
type Event struct {
	Kind      Kind
	Component string
	Sender    string
	Percent   int    // PROGRESS
	Ref       string // READY artifact reference (optional)
	Blocker   string // BLOCKED dependency
	Passed    bool   // AUDIT verdict
	Note      string // AUDIT note or ABORT reason (optional)
}

// rule pairs a pattern with an event builder. The grammar is an ordered
// list: the first matching rule wins, so more specific patterns must come
// before looser ones.
type rule struct {
	re    *regexp.Regexp
	build func(m []string) Event
}

var grammar = []rule{
	{
		re: regexp.MustCompile(`(?i)^claim\s+(\S+)\s*$`),
		build: func(m []string) Event {
			return Event{Kind: KindClaim, Component: strings.ToLower(m[1])}
		},
	},
	{
		re: regexp.MustCompile(`(?i)^progress\s+(\S+)\s+(\d{1,3})\s*%?\s*$`),
		build: func(m []string) Event {
			pct, _ := strconv.Atoi(m[2])
			return Event{Kind: KindProgress, Component: strings.ToLower(m[1]), Percent: pct}
		},
	},
	{
		re: regexp.MustCompile(`(?i)^ready\s+(\S+)(?:\s+(\S+))?\s*$`),
		build: func(m []string) Event {
			return Event{Kind: KindReady, Component: strings.ToLower(m[1]), Ref: m[2]}
		},
	},
	{
		re: regexp.MustCompile(`(?i)^blocked\s+(\S+)\s+(?:on\s+)?(\S+)\s*$`),
		build: func(m []string) Event {
			return Event{Kind: KindBlocked, Component: strings.ToLower(m[1]), Blocker: strings.ToLower(m[2])}
		},
	},
	{
		re: regexp.MustCompile(`(?i)^audit\s+(\S+)\s+(pass|fail)\b\s*(.*)$`),
		build: func(m []string) Event {
			return Event{
				Kind:      KindAudit,
				Component: strings.ToLower(m[1]),
				Passed:    strings.EqualFold(m[2], "pass"),
				Note:      strings.TrimSpace(m[3]),
			}
		},
	},
	{
		re: regexp.MustCompile(`(?i)^abort\s+(\S+)\s*(.*)$`),
		build: func(m []string) Event {
			return Event{Kind: KindAbort, Component: strings.ToLower(m[1]), Note: strings.TrimSpace(m[2])}
		},
	},
}

// Parse matches a raw text line against the protocol grammar. The boolean
// result is false when the line is not a protocol message; callers ignore
// such lines rather than treating them as errors. Keywords match
// case-insensitively, and markdown emphasis wrapping the keyword
// (e.g. "**CLAIM** parser") is stripped before matching.
func Parse(text, senderID string) (Event, bool) {
	line := normalize(text)
	if line == "" {
		return Event{}, false
	}
	for _, r := range grammar {
		if m := r.re.FindStringSubmatch(line); m != nil {
			ev := r.build(m)
			ev.Sender = senderID
			return ev, true
		}
	}
	return Event{}, false
}

// normalize trims the line and strips markdown emphasis markers from the
// leading keyword token. Emphasis inside later tokens is left alone, since
// underscores are legal in component names.
func normalize(text string) string {
	line := strings.TrimSpace(text)
	if line == "" {
		return ""
	}
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return strings.Trim(line[:i], "*_`") + " " + strings.TrimSpace(line[i:])
	}
	return strings.Trim(line, "*_`")
}
