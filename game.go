/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

type GameState int

const (
	NotStarted GameState = iota
	Active
	Ended
)

func (s GameState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// RejectReason explains why a proposed tag was not added. Rejections are
// game rules, not failures, and never change the chain.
type RejectReason string

const (
	ReasonDuplicate      RejectReason = "duplicate_tag"
	ReasonNoCooccurrence RejectReason = "no_cooccurrence"
	ReasonBelowThreshold RejectReason = "below_threshold"
)

var (
	ErrAlreadyStarted   = errors.New("game already started")
	ErrNotActive        = errors.New("game is not active")
	ErrProposalPending  = errors.New("another tag is already being checked")
	ErrEmptyTag         = errors.New("tag must not be empty")
	ErrUnknownThreshold = errors.New("unknown difficulty threshold")
)

// CooccurrenceCounter reports how many works carry every given tag.
type CooccurrenceCounter interface {
	Cooccurrence(ctx context.Context, tags []string) (Count, error)
}

// Verdict is the outcome of a proposal that reached a decision.
type Verdict struct {
	Tag       string       `json:"tag"`
	Accepted  bool         `json:"accepted"`
	Reason    RejectReason `json:"reason,omitempty"`
	Count     int          `json:"count"`
	Unparsed  bool         `json:"unparsed,omitempty"`
	Message   string       `json:"message,omitempty"`
	Milestone string       `json:"milestone,omitempty"`
}

// Game holds one player's chain. All methods are safe for concurrent use;
// at most one proposal is resolved at a time.
type Game struct {
	ID     string
	Player string

	mu         sync.Mutex
	state      GameState
	threshold  int
	chain      []string
	counts     []int
	used       map[string]struct{}
	pending    bool
	createdAt  time.Time
	lastActive time.Time
}

type GameSnapshot struct {
	ID         string   `json:"id"`
	State      string   `json:"state"`
	Threshold  int      `json:"threshold"`
	Chain      []string `json:"chain"`
	LinkCounts []int    `json:"link_counts"`
	Length     int      `json:"length"`
	LastCount  *int     `json:"last_count"`
	MinCount   *int     `json:"min_count"`
	MaxCount   *int     `json:"max_count"`
	Pending    bool     `json:"pending"`
}

func tagKey(tag string) string {
	return strings.ToLower(tag)
}

func NewGame(id, player string) *Game {
	now := time.Now()

	return &Game{
		ID:         id,
		Player:     player,
		state:      NotStarted,
		used:       make(map[string]struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (g *Game) Start(starter string, threshold int) error {
	starter = strings.TrimSpace(starter)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != NotStarted {
		return ErrAlreadyStarted
	}
	if starter == "" {
		return ErrEmptyTag
	}
	if threshold < 1 {
		return ErrUnknownThreshold
	}

	g.threshold = threshold
	g.chain = []string{starter}
	g.counts = []int{}
	g.used = map[string]struct{}{tagKey(starter): {}}
	g.state = Active
	g.lastActive = time.Now()

	return nil
}

// Propose checks candidate against the whole chain so far and appends it
// if it co-occurs at least threshold times. The lookup runs without the
// lock held; a second call while one is outstanding returns
// ErrProposalPending and changes nothing.
func (g *Game) Propose(ctx context.Context, counter CooccurrenceCounter, candidate string) (Verdict, error) {
	candidate = strings.TrimSpace(candidate)

	g.mu.Lock()

	if g.state != Active {
		g.mu.Unlock()
		return Verdict{}, ErrNotActive
	}
	if g.pending {
		g.mu.Unlock()
		return Verdict{}, ErrProposalPending
	}
	if candidate == "" {
		g.mu.Unlock()
		return Verdict{}, ErrEmptyTag
	}

	g.lastActive = time.Now()

	if _, ok := g.used[tagKey(candidate)]; ok {
		g.mu.Unlock()
		return Verdict{
			Tag:     candidate,
			Reason:  ReasonDuplicate,
			Message: fmt.Sprintf("%q is already in your chain!", candidate),
		}, nil
	}

	g.pending = true
	tags := append(slices.Clone(g.chain), candidate)
	threshold := g.threshold

	g.mu.Unlock()

	count, err := counter.Cooccurrence(ctx, tags)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = false
	g.lastActive = time.Now()

	if err != nil {
		return Verdict{}, err
	}
	// Ended while the lookup was out; the chain is final.
	if g.state != Active {
		return Verdict{}, ErrNotActive
	}

	v := Verdict{
		Tag:      candidate,
		Count:    count.Value,
		Unparsed: !count.Parsed,
	}

	switch {
	case count.Value <= 0:
		v.Reason = ReasonNoCooccurrence
		v.Message = fmt.Sprintf("%q doesn't co-occur with all %d tags in your chain.", candidate, len(g.chain))
	case count.Value < threshold:
		v.Reason = ReasonBelowThreshold
		v.Message = fmt.Sprintf("%q + your chain only has %s works together (need %s+).",
			candidate, formatCount(count.Value), formatCount(threshold))
	default:
		v.Accepted = true
		g.chain = append(g.chain, candidate)
		g.counts = append(g.counts, count.Value)
		g.used[tagKey(candidate)] = struct{}{}
	}

	return v, nil
}

// End finishes an active game and returns the final chain length.
func (g *Game) End() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Active {
		return 0, ErrNotActive
	}

	g.state = Ended
	g.lastActive = time.Now()

	return len(g.chain), nil
}

func (g *Game) State() GameState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

func (g *Game) Threshold() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.threshold
}

func (g *Game) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.chain)
}

func (g *Game) Chain() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.chain)
}

func (g *Game) LinkCounts() []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.counts)
}

// IsUsed reports whether name is already in the chain, ignoring case.
func (g *Game) IsUsed(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.used[tagKey(name)]

	return ok
}

func (g *Game) LastCount() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.counts) == 0 {
		return 0, false
	}

	return g.counts[len(g.counts)-1], true
}

func (g *Game) MinCount() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.counts) == 0 {
		return 0, false
	}

	return slices.Min(g.counts), true
}

func (g *Game) MaxCount() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.counts) == 0 {
		return 0, false
	}

	return slices.Max(g.counts), true
}

func (g *Game) idleSince() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.lastActive
}

func (g *Game) Snapshot() GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := GameSnapshot{
		ID:         g.ID,
		State:      g.state.String(),
		Threshold:  g.threshold,
		Chain:      slices.Clone(g.chain),
		LinkCounts: slices.Clone(g.counts),
		Length:     len(g.chain),
		Pending:    g.pending,
	}
	if snap.Chain == nil {
		snap.Chain = []string{}
	}
	if snap.LinkCounts == nil {
		snap.LinkCounts = []int{}
	}

	if len(g.counts) > 0 {
		last, lo, hi := g.counts[len(g.counts)-1], slices.Min(g.counts), slices.Max(g.counts)
		snap.LastCount, snap.MinCount, snap.MaxCount = &last, &lo, &hi
	}

	return snap
}

// shareText is the clipboard/QR summary of a chain.
func (g *Game) shareText(label string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if label == "" {
		label = fmt.Sprint(g.threshold)
	}

	return fmt.Sprintf("🔗 Tag Chain (%s) — %d tags!\n\n%s", label, len(g.chain), strings.Join(g.chain, " → "))
}
