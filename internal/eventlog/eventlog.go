// Package eventlog records session-global copy events and tab-focus
// intervals.
//
// The log has a single logical writer (the session's event handlers) and is
// read by every field's paste handler. Writes and reads are serialized with
// a mutex; paste handlers take a Snapshot so the last copy and the active
// focus interval are observed under one critical section and stay mutually
// consistent.
package eventlog

import (
	"sync"
	"time"

	"pastewatch/internal/token"
)

// CopyHistoryCapacity bounds the recent-copy ring. The oldest entry is
// evicted FIFO once the ring is full.
const CopyHistoryCapacity = 10

// CopiedInfo is one accepted copy event.
type CopiedInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Tokens    []string  `json:"tokens"`
	Size      int       `json:"size"`
}

// FocusInterval is a contiguous span during which the monitored page was
// the active tab. At most one interval is open at a time; FocusedOut is the
// zero time while the interval is open.
type FocusInterval struct {
	FocusedIn  time.Time `json:"focused_in"`
	FocusedOut time.Time `json:"focused_out,omitzero"`
	DurationMs int64     `json:"duration_ms"`
	GapMs      int64     `json:"gap_ms"`
	IsFocused  bool      `json:"is_focused"`
}

// Closed reports whether the interval has ended.
func (f FocusInterval) Closed() bool {
	return !f.FocusedOut.IsZero()
}

// Snapshot is an atomically consistent view of the state a paste handler
// needs: the most recent accepted copy and the currently open focus
// interval. Either pointer may be nil.
type Snapshot struct {
	LastCopy       *CopiedInfo
	ActiveInterval *FocusInterval
}

// Log tracks copy events and tab-focus transitions for one monitoring
// session.
type Log struct {
	mu sync.Mutex

	tokenizer         *token.Tokenizer
	copySizeThreshold int

	lastCopy    *CopiedInfo
	copyHistory []CopiedInfo

	closed     []FocusInterval
	active     *FocusInterval
	lastClosed time.Time
}

// New creates a Log. Copies shorter than copySizeThreshold are ignored.
// Monitoring starts with the page focused, so an initial focus interval is
// opened at now.
func New(tokenizer *token.Tokenizer, copySizeThreshold int, now time.Time) *Log {
	l := &Log{
		tokenizer:         tokenizer,
		copySizeThreshold: copySizeThreshold,
	}
	l.openInterval(now)
	return l
}

// RecordCopy ingests a copy event. Content below the size threshold is
// dropped; accepted content becomes the last copy and enters the bounded
// history.
func (l *Log) RecordCopy(content string, at time.Time) {
	if len(content) < l.copySizeThreshold {
		return
	}

	info := CopiedInfo{
		Timestamp: at,
		Content:   content,
		Tokens:    l.tokenizer.Tokenize(content),
		Size:      len(content),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastCopy = &info
	l.copyHistory = append(l.copyHistory, info)
	if len(l.copyHistory) > CopyHistoryCapacity {
		l.copyHistory = l.copyHistory[len(l.copyHistory)-CopyHistoryCapacity:]
	}
}

// SetHidden ingests a visibility transition. Hiding closes the active
// interval; showing opens a new one whose GapMs is the elapsed time since
// the prior interval closed (0 when there is no prior close). Redundant
// transitions are ignored.
func (l *Log) SetHidden(hidden bool, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hidden {
		l.closeInterval(at)
		return
	}
	if l.active == nil {
		l.openInterval(at)
	}
}

func (l *Log) openInterval(at time.Time) {
	gap := int64(0)
	if !l.lastClosed.IsZero() {
		gap = at.Sub(l.lastClosed).Milliseconds()
	}
	l.active = &FocusInterval{
		FocusedIn: at,
		GapMs:     gap,
		IsFocused: true,
	}
}

func (l *Log) closeInterval(at time.Time) {
	if l.active == nil {
		return
	}
	interval := *l.active
	interval.FocusedOut = at
	interval.DurationMs = at.Sub(interval.FocusedIn).Milliseconds()
	interval.IsFocused = false

	l.closed = append(l.closed, interval)
	l.active = nil
	l.lastClosed = at
}

// Snapshot returns the last copy and active interval read under one lock.
// The returned values are copies; mutating them does not affect the log.
func (l *Log) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	var snap Snapshot
	if l.lastCopy != nil {
		c := *l.lastCopy
		snap.LastCopy = &c
	}
	if l.active != nil {
		a := *l.active
		snap.ActiveInterval = &a
	}
	return snap
}

// Intervals returns the closed focus-interval history followed by the
// active interval, if any. The slice is a copy.
func (l *Log) Intervals() []FocusInterval {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]FocusInterval, 0, len(l.closed)+1)
	out = append(out, l.closed...)
	if l.active != nil {
		out = append(out, *l.active)
	}
	return out
}

// CopyHistory returns the bounded recent-copy ring, oldest first.
func (l *Log) CopyHistory() []CopiedInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]CopiedInfo, len(l.copyHistory))
	copy(out, l.copyHistory)
	return out
}

// Reset discards all recorded state and reopens the initial focus interval
// at now. Used when the session restarts or changes user.
func (l *Log) Reset(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastCopy = nil
	l.copyHistory = nil
	l.closed = nil
	l.active = nil
	l.lastClosed = time.Time{}
	l.openInterval(now)
}
