// Package logwatch turns newly appended lines of game log files into events
// fed to the event loop. Files are read incrementally by offset; only the
// bytes appended since the last poll are inspected.
package logwatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"gametools/internal/event"
	"gametools/internal/logger"
)

// Sink receives the events built from matched lines. *event.Manager
// satisfies it.
type Sink interface {
	Add(ctx context.Context, ev event.Event) error
}

// Matcher pairs two regular expressions against each new line. A line
// matches when both expressions match; either may be nil to match always.
// Make builds the event fed to the sink.
type Matcher struct {
	Name   string
	Before *regexp.Regexp
	After  *regexp.Regexp
	Make   func(line string) event.Event
}

func (m Matcher) matches(line string) bool {
	if m.Before != nil && !m.Before.MatchString(line) {
		return false
	}
	if m.After != nil && !m.After.MatchString(line) {
		return false
	}
	return true
}

// LineEvent is the generic event built by config-driven matchers. It lives
// for one tick so queries and stream subscribers observe it.
type LineEvent struct {
	event.Base
	Source string
	Line   string
}

// NewLineEvent wraps one matched log line.
func NewLineEvent(source, line string) *LineEvent {
	ev := &LineEvent{Source: source, Line: line}
	ev.Base = event.NewBase(event.PriorityLast, event.GroupNone,
		func(ctx context.Context, _ event.Event) (event.Status, error) {
			return event.StatusDone, nil
		})
	return ev
}

type source struct {
	path       string
	staleAfter time.Duration

	opened    bool
	offset    int64
	remainder []byte
	decoder   func([]byte) ([]byte, error)
}

// Watcher polls a set of append-only log files and runs every registered
// matcher against each new line in file order. Matches fire in matcher
// registration order.
type Watcher struct {
	sink Sink

	mu       sync.Mutex
	sources  []*source
	matchers []Matcher
	now      func() time.Time
}

// NewWatcher creates a watcher feeding events to sink.
func NewWatcher(sink Sink) *Watcher {
	return &Watcher{sink: sink, now: time.Now}
}

// AddFile registers a log file. When staleAfter is positive and the file's
// last modification is older than that at first open, pre-existing lines
// are discarded instead of being replayed as live events.
func (w *Watcher) AddFile(path string, staleAfter time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sources = append(w.sources, &source{path: path, staleAfter: staleAfter})
}

// Register appends a line matcher. Registration order is firing order.
func (w *Watcher) Register(m Matcher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.matchers = append(w.matchers, m)
}

// Poll reads the bytes appended to every watched file since the last poll
// and feeds matched lines to the sink. Missing files are skipped; they may
// appear once the game starts writing.
func (w *Watcher) Poll(ctx context.Context) error {
	w.mu.Lock()
	sources := make([]*source, len(w.sources))
	copy(sources, w.sources)
	matchers := make([]Matcher, len(w.matchers))
	copy(matchers, w.matchers)
	now := w.now()
	w.mu.Unlock()

	for _, src := range sources {
		if err := w.pollSource(ctx, src, matchers, now); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) pollSource(ctx context.Context, src *source, matchers []Matcher, now time.Time) error {
	info, err := os.Stat(src.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", src.path, err)
	}

	if !src.opened {
		src.opened = true
		if src.staleAfter > 0 && now.Sub(info.ModTime()) > src.staleAfter {
			// Too old: skip the existing history entirely, but still sniff
			// the encoding from the file head.
			if f, err := os.Open(src.path); err == nil {
				head := make([]byte, 2)
				if n, _ := f.Read(head); n == 2 {
					src.decoder = detectDecoder(head)
				}
				f.Close()
			}
			src.offset = info.Size()
			logger.WithComponent("logwatch").Info().
				Str("path", src.path).
				Int64("skipped_bytes", src.offset).
				Msg("Log file is stale, skipping existing lines")
			return nil
		}
	}

	// Truncation (log rotation) resets the read position.
	if info.Size() < src.offset {
		src.offset = 0
		src.remainder = nil
	}
	if info.Size() == src.offset {
		return nil
	}

	f, err := os.Open(src.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src.path, err)
	}
	defer f.Close()

	chunk := make([]byte, info.Size()-src.offset)
	n, err := f.ReadAt(chunk, src.offset)
	if err != nil && n == 0 {
		return fmt.Errorf("failed to read %s: %w", src.path, err)
	}
	chunk = chunk[:n]
	atStart := src.offset == 0
	src.offset += int64(n)

	if atStart {
		src.decoder = detectDecoder(chunk)
	}
	if src.decoder != nil {
		decoded, err := src.decoder(chunk)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", src.path, err)
		}
		chunk = decoded
	}

	data := append(src.remainder, chunk...)
	lines := bytes.Split(data, []byte("\n"))
	// The final fragment has no newline yet; carry it to the next poll.
	src.remainder = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	for _, raw := range lines {
		line := string(bytes.TrimSuffix(raw, []byte("\r")))
		if line == "" {
			continue
		}
		for _, m := range matchers {
			if !m.matches(line) {
				continue
			}
			ev := m.Make(line)
			if ev == nil {
				continue
			}
			if err := w.sink.Add(ctx, ev); err != nil {
				return fmt.Errorf("matcher %s: %w", m.Name, err)
			}
		}
	}
	return nil
}

// detectDecoder returns a UTF-16 decoder when the file opens with a BOM,
// nil for plain UTF-8.
func detectDecoder(head []byte) func([]byte) ([]byte, error) {
	var endian unicode.Endianness
	switch {
	case len(head) >= 2 && head[0] == 0xff && head[1] == 0xfe:
		endian = unicode.LittleEndian
	case len(head) >= 2 && head[0] == 0xfe && head[1] == 0xff:
		endian = unicode.BigEndian
	default:
		return nil
	}

	return func(chunk []byte) ([]byte, error) {
		dec := unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, chunk)
		if err != nil {
			return nil, err
		}
		// Drop the BOM rune if this chunk carried it.
		return bytes.TrimPrefix(out, []byte{0xef, 0xbb, 0xbf}), nil
	}
}

// Watch drives Poll from file system notifications until ctx is cancelled.
// Polling via the event loop remains the default; Watch is for callers that
// prefer push-based wakeups.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	defer fsw.Close()

	w.mu.Lock()
	paths := make([]string, 0, len(w.sources))
	for _, src := range w.sources {
		paths = append(paths, src.path)
	}
	w.mu.Unlock()

	log := logger.WithComponent("logwatch")
	for _, path := range paths {
		if err := fsw.Add(path); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("Cannot watch log file, relying on polling")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.Poll(ctx); err != nil {
				return err
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}
