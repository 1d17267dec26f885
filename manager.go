/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrNotYourGame  = errors.New("game belongs to another player")
)

// EndResult is what a player sees when a game is over.
type EndResult struct {
	Game     GameSnapshot `json:"game"`
	Best     int          `json:"best"`
	Improved bool         `json:"improved"`
	Title    string       `json:"title"`
	Message  string       `json:"message"`
	Share    string       `json:"share"`
}

// GameManager holds every live game keyed by ID, so each player's chain is
// an isolated instance.
type GameManager struct {
	cfg    *Config
	data   *GameData
	svc    TagService
	scores ScoreStore

	mu          sync.Mutex
	games       map[string]*Game
	idleTimeout time.Duration
}

func newGameManager(cfg *Config, data *GameData, svc TagService, scores ScoreStore) *GameManager {
	return &GameManager{
		cfg:         cfg,
		data:        data,
		svc:         svc,
		scores:      scores,
		games:       make(map[string]*Game),
		idleTimeout: cfg.sessionTimeout,
	}
}

// newGameID generates a crypto-random game ID that doesn't collide with an
// existing game. Callers must hold gm.mu.
func (gm *GameManager) newGameIDLocked() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := gm.games[id]; !exists {
			return id
		}
	}
}

// Start creates and starts a game for player. A blank starter picks a
// random one; a zero threshold picks the default difficulty.
func (gm *GameManager) Start(player, starter string, threshold int) (*Game, error) {
	if threshold == 0 {
		threshold = gm.data.defaultThreshold()
	}
	if _, ok := gm.data.difficulty(threshold); !ok {
		return nil, ErrUnknownThreshold
	}
	if starter == "" {
		starter = gm.data.randomStarter()
	}

	gm.mu.Lock()
	game := NewGame(gm.newGameIDLocked(), player)
	if err := game.Start(starter, threshold); err != nil {
		gm.mu.Unlock()
		return nil, err
	}
	gm.games[game.ID] = game
	gm.mu.Unlock()

	logf(gm.cfg, "GAMES: Started %s at %d with %q", game.ID, threshold, starter)

	return game, nil
}

// Get returns the game with id if it belongs to player.
func (gm *GameManager) Get(id, player string) (*Game, error) {
	gm.mu.Lock()
	game, ok := gm.games[id]
	gm.mu.Unlock()

	if !ok {
		return nil, ErrGameNotFound
	}
	if game.Player != player {
		return nil, ErrNotYourGame
	}

	return game, nil
}

// Propose runs a proposal against the manager's tag service and adds the
// milestone text when an accepted tag reaches one.
func (gm *GameManager) Propose(ctx context.Context, game *Game, tag string) (Verdict, error) {
	v, err := game.Propose(ctx, gm.svc, tag)
	if err != nil {
		return v, err
	}

	if v.Accepted {
		if text, ok := gm.data.milestone(game.Len()); ok {
			v.Milestone = text
		}
		logf(gm.cfg, "GAMES: %s accepted %q (%d works)", game.ID, v.Tag, v.Count)
	} else {
		if v.Unparsed {
			logf(gm.cfg, "GAMES: WARNING %s found no result count for %q, treating as 0", game.ID, v.Tag)
		}
		logf(gm.cfg, "GAMES: %s rejected %q (%s)", game.ID, v.Tag, v.Reason)
	}

	return v, nil
}

// End finishes the game and folds its length into the player's best score.
func (gm *GameManager) End(ctx context.Context, game *Game) (EndResult, error) {
	length, err := game.End()
	if err != nil {
		return EndResult{}, err
	}

	threshold := game.Threshold()

	best, improved, err := gm.scores.Record(ctx, game.Player, threshold, length)
	if err != nil {
		return EndResult{}, err
	}

	if improved {
		logf(gm.cfg, "SCORE: New best of %d at %d for game %s", best, threshold, game.ID)
	}

	title, message := gm.data.ending(length)

	return EndResult{
		Game:     game.Snapshot(),
		Best:     best,
		Improved: improved,
		Title:    title,
		Message:  message,
		Share:    gm.shareText(game),
	}, nil
}

func (gm *GameManager) shareText(game *Game) string {
	d, _ := gm.data.difficulty(game.Threshold())

	return game.shareText(d.Label)
}

func (gm *GameManager) count() int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	return len(gm.games)
}

// reap removes games idle since before cutoff.
func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	removed := 0
	for id, game := range gm.games {
		if game.idleSince().Before(cutoff) {
			delete(gm.games, id)
			removed++
		}
	}

	return removed
}

// reaperLoop periodically removes games that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop(ctx context.Context) {
	if gm.idleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := gm.reap(time.Now().Add(-gm.idleTimeout)); n > 0 {
				logf(gm.cfg, "GAMES: Reaped %d idle games", n)
			}
		}
	}
}
