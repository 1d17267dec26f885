/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
)

// scoresKey names the record inside the json score file.
const scoresKey = "tagchain_best"

// BestScores maps a difficulty threshold to the longest chain reached at it.
// On the wire it keeps the browser-era shape: {"d500": 7}.
type BestScores map[int]int

func (b BestScores) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, len(b))
	for threshold, length := range b {
		out["d"+strconv.Itoa(threshold)] = length
	}

	return json.Marshal(out)
}

func (b *BestScores) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(BestScores, len(raw))
	for k, v := range raw {
		threshold, err := strconv.Atoi(strings.TrimPrefix(k, "d"))
		if err != nil || !strings.HasPrefix(k, "d") {
			continue
		}
		out[threshold] = v
	}
	*b = out

	return nil
}

// ScoreStore persists best chain lengths per player and threshold. Record
// only ever raises a stored value.
type ScoreStore interface {
	Best(ctx context.Context, player string) (BestScores, error)
	Record(ctx context.Context, player string, threshold, length int) (best int, improved bool, err error)
	Close() error
}

func openScoreStore(kind, path string) (ScoreStore, error) {
	switch kind {
	case scoreStoreSQLite:
		return openSQLiteScores(path)
	case scoreStoreJSON:
		return newJSONScores(path), nil
	}

	return nil, fmt.Errorf("unknown score store %q", kind)
}

const scoresSchema = `
CREATE TABLE IF NOT EXISTS best_scores (
	player     TEXT    NOT NULL,
	threshold  INTEGER NOT NULL,
	length     INTEGER NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (player, threshold)
);
CREATE INDEX IF NOT EXISTS idx_best_scores_player ON best_scores(player)`

type sqliteScores struct {
	db *sql.DB
}

func openSQLiteScores(path string) (*sqliteScores, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	s, err := newSQLiteScores(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func newSQLiteScores(db *sql.DB) (*sqliteScores, error) {
	// One connection keeps :memory: databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	for _, stmt := range strings.Split(scoresSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("migrating score database: %w", err)
		}
	}

	return &sqliteScores{db: db}, nil
}

func (s *sqliteScores) Best(ctx context.Context, player string) (BestScores, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT threshold, length FROM best_scores WHERE player = ?`, player)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	best := BestScores{}
	for rows.Next() {
		var threshold, length int
		if err := rows.Scan(&threshold, &length); err != nil {
			return nil, err
		}
		best[threshold] = length
	}

	return best, rows.Err()
}

func (s *sqliteScores) Record(ctx context.Context, player string, threshold, length int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO best_scores (player, threshold, length, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(player, threshold) DO UPDATE
		SET length = excluded.length, updated_at = excluded.updated_at
		WHERE excluded.length > best_scores.length`,
		player, threshold, length)
	if err != nil {
		return 0, false, err
	}

	changed, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	var best int
	err = tx.QueryRowContext(ctx, `SELECT length FROM best_scores WHERE player = ? AND threshold = ?`, player, threshold).Scan(&best)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}

	return best, changed > 0, nil
}

func (s *sqliteScores) Close() error {
	return s.db.Close()
}

// jsonScores keeps every player's record in one json document. An
// exclusive file lock covers each read-modify-write so separate processes
// sharing the file cannot lose updates.
type jsonScores struct {
	path string
	lock *flock.Flock

	mu sync.Mutex
}

type scoreDocument map[string]map[string]BestScores

func newJSONScores(path string) *jsonScores {
	return &jsonScores{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (j *jsonScores) read() (map[string]BestScores, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]BestScores{}, nil
	}
	if err != nil {
		return nil, err
	}

	doc := scoreDocument{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", j.path, err)
		}
	}

	players := doc[scoresKey]
	if players == nil {
		players = map[string]BestScores{}
	}

	return players, nil
}

func (j *jsonScores) write(players map[string]BestScores) error {
	data, err := json.MarshalIndent(scoreDocument{scoresKey: players}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), j.path)
}

func (j *jsonScores) Best(ctx context.Context, player string) (BestScores, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	locked, err := j.lock.TryRLockContext(ctx, 10*time.Millisecond)
	if !locked {
		return nil, fmt.Errorf("locking %s: %w", j.path, err)
	}
	defer j.lock.Unlock()

	players, err := j.read()
	if err != nil {
		return nil, err
	}

	best := BestScores{}
	for threshold, length := range players[player] {
		best[threshold] = length
	}

	return best, nil
}

func (j *jsonScores) Record(ctx context.Context, player string, threshold, length int) (int, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	locked, err := j.lock.TryLockContext(ctx, 10*time.Millisecond)
	if !locked {
		return 0, false, fmt.Errorf("locking %s: %w", j.path, err)
	}
	defer j.lock.Unlock()

	players, err := j.read()
	if err != nil {
		return 0, false, err
	}

	record := players[player]
	if record == nil {
		record = BestScores{}
		players[player] = record
	}

	if length <= record[threshold] {
		return record[threshold], false, nil
	}

	record[threshold] = length
	if err := j.write(players); err != nil {
		return 0, false, err
	}

	return length, true, nil
}

func (j *jsonScores) Close() error {
	return j.lock.Unlock()
}
