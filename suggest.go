/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	eventSuggestions = "suggestions"
	eventLoading     = "suggest_loading"
	eventClear       = "suggest_clear"
	eventError       = "suggest_error"
)

// SuggestionSource is the part of TagService the autocomplete needs.
type SuggestionSource interface {
	Suggestions(ctx context.Context, term string) (*TagList, error)
}

type Suggestion struct {
	Name      string `json:"name"`
	Used      bool   `json:"used"`
	Highlight string `json:"highlight"`
}

type SuggestEvent struct {
	Type    string       `json:"type"`
	Seq     uint64       `json:"seq"`
	Term    string       `json:"term,omitempty"`
	Items   []Suggestion `json:"items,omitempty"`
	Error   string       `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Suggester debounces keystrokes into autocomplete lookups. Every lookup
// gets the next sequence number, and a result is only emitted if its
// number is still the latest issued when it arrives.
//
// emit is called with the suggester's lock held, so it must not call back
// into the Suggester.
type Suggester struct {
	source SuggestionSource
	used   func(name string) bool
	emit   func(SuggestEvent)
	delay  time.Duration
	limit  int

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	timer      *time.Timer
	keystrokes uint64
	seq        uint64
	closed     bool
}

func newSuggester(source SuggestionSource, delay time.Duration, limit int, used func(string) bool, emit func(SuggestEvent)) *Suggester {
	ctx, cancel := context.WithCancel(context.Background())

	if used == nil {
		used = func(string) bool { return false }
	}

	return &Suggester{
		source: source,
		used:   used,
		emit:   emit,
		delay:  delay,
		limit:  limit,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Input records a keystroke. Only the last one within the debounce window
// triggers a lookup.
func (s *Suggester) Input(term string) {
	term = strings.TrimSpace(term)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.keystrokes++
	k := s.keystrokes

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if utf8.RuneCountInString(term) < minTermLength {
		// Supersede any lookup in flight so it can't refill a cleared list.
		s.seq++
		s.emit(SuggestEvent{Type: eventClear, Seq: s.seq})
		return
	}

	s.timer = time.AfterFunc(s.delay, func() {
		s.fire(k, term)
	})
}

func (s *Suggester) fire(k uint64, term string) {
	s.mu.Lock()
	if s.closed || k != s.keystrokes {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.seq++
	seq := s.seq
	s.emit(SuggestEvent{Type: eventLoading, Seq: seq, Term: term})
	s.mu.Unlock()

	list, err := s.source.Suggestions(s.ctx, term)

	s.deliver(seq, term, list, err)
}

func (s *Suggester) deliver(seq uint64, term string, list *TagList, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || seq != s.seq {
		return
	}

	if err != nil {
		s.emit(suggestError(seq, term, err))
		return
	}

	items := []Suggestion{}
	for _, tag := range list.Tags {
		if len(items) == s.limit {
			break
		}
		items = append(items, Suggestion{
			Name:      tag.Name,
			Used:      s.used(tag.Name),
			Highlight: highlightMatch(tag.Name, term),
		})
	}

	s.emit(SuggestEvent{Type: eventSuggestions, Seq: seq, Term: term, Items: items})
}

// Close stops pending work; nothing is emitted afterwards.
func (s *Suggester) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel()
}

func suggestError(seq uint64, term string, err error) SuggestEvent {
	ev := SuggestEvent{Type: eventError, Seq: seq, Term: term}

	var upErr *UpstreamError

	switch {
	case errors.Is(err, ErrRateLimited):
		ev.Error = codeRateLimited
		ev.Message = "⏳ AO3 rate limit hit, wait a moment"
	case errors.As(err, &upErr):
		ev.Error = codeUpstreamError
		ev.Message = "Could not reach AO3"
	default:
		ev.Error = codeFetchFailed
		ev.Message = "Could not reach AO3"
	}

	return ev
}

// highlightMatch escapes text and wraps case-insensitive matches of query
// in <strong>.
func highlightMatch(text, query string) string {
	escaped := html.EscapeString(text)
	if query == "" {
		return escaped
	}

	re, err := regexp.Compile(`(?i)(` + regexp.QuoteMeta(html.EscapeString(query)) + `)`)
	if err != nil {
		return escaped
	}

	return re.ReplaceAllString(escaped, "<strong>$1</strong>")
}
