/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTags is a TagService whose answers are set per test.
type fakeTags struct {
	mu sync.Mutex

	suggest func(term string) (*TagList, error)
	count   func(tags []string) (Count, error)

	terms   []string
	lookups [][]string
}

func (f *fakeTags) Suggestions(_ context.Context, term string) (*TagList, error) {
	f.mu.Lock()
	f.terms = append(f.terms, term)
	fn := f.suggest
	f.mu.Unlock()

	if fn == nil {
		return tagList("Angst", "Slow Burn"), nil
	}
	return fn(term)
}

func (f *fakeTags) Cooccurrence(_ context.Context, tags []string) (Count, error) {
	f.mu.Lock()
	f.lookups = append(f.lookups, append([]string(nil), tags...))
	fn := f.count
	f.mu.Unlock()

	if fn == nil {
		return Count{Value: 1000, Parsed: true}, nil
	}
	return fn(tags)
}

func (f *fakeTags) suggestCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.terms...)
}

func (f *fakeTags) countCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.lookups)
}

func fixedCount(n int) func([]string) (Count, error) {
	return func([]string) (Count, error) {
		return Count{Value: n, Parsed: true}, nil
	}
}

func failing(err error) func([]string) (Count, error) {
	return func([]string) (Count, error) {
		return Count{}, err
	}
}

// tagList builds a TagList the way the archive client would decode it.
func tagList(names ...string) *TagList {
	list := &TagList{}
	for _, n := range names {
		list.Tags = append(list.Tags, Tag{ID: n, Name: n})
	}
	list.Raw, _ = json.Marshal(list.Tags)

	return list
}

func numberedTags(n int) *TagList {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Tag %d", i)
	}

	return tagList(names...)
}

func newTestData(t *testing.T) *GameData {
	t.Helper()

	data, err := loadGameData(gameDataYAML)
	require.NoError(t, err)

	return data
}

func newMemoryScores(t *testing.T) *sqliteScores {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	s, err := newSQLiteScores(db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func newTestConfig() *Config {
	return &Config{
		bind:            "127.0.0.1",
		debounce:        0,
		port:            8080,
		rateBurst:       10,
		rateLimit:       60,
		scorePath:       "tagchain.db",
		scoreStore:      scoreStoreSQLite,
		sessionTimeout:  time.Hour,
		suggestionLimit: 30,
		upstream:        "https://archiveofourown.org",
		upstreamTimeout: 15 * time.Second,
		userAgent:       "tagchain-test",
	}
}

func newTestManager(t *testing.T, svc TagService) *GameManager {
	t.Helper()

	return newGameManager(newTestConfig(), newTestData(t), svc, newMemoryScores(t))
}
