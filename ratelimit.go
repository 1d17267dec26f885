/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 5 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address, so a single
// browser can't make the server hammer the archive on its behalf.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*limiterEntry
}

func newClientLimiter(perMinute, burst int) *clientLimiter {
	return &clientLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		clients: make(map[string]*limiterEntry),
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.clients[client]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = e
	}
	e.lastSeen = time.Now()

	return e.limiter.Allow()
}

func (l *clientLimiter) cleanup(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for client, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, client)
		}
	}
}

func (l *clientLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup(time.Now().Add(-limiterIdle))
		}
	}
}

// rateLimit rejects over-limit requests under prefix with the same 429
// body the proxy uses for upstream throttling. A nil limiter allows all.
func rateLimit(cfg *Config, l *clientLimiter, prefix string, next http.Handler) http.Handler {
	if l == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions && strings.HasPrefix(r.URL.Path, prefix) {
			ip := clientIP(r)
			if !l.allow(ip) {
				logf(cfg, "SERVE: Rate limited %s on %s", ip, r.URL.Path)
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Retry-After", "1")
				_ = writeJSON(w, http.StatusTooManyRequests, apiError{Error: codeRateLimited})
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
