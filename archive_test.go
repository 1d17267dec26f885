/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T, h http.HandlerFunc) *archiveClient {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return newArchiveClient(srv.URL, "tagchain-test", 2*time.Second)
}

func TestArchiveSuggestions(t *testing.T) {
	body := `[{"id":"Slow Burn","name":"Slow Burn"},{"id":"Slow Build","name":"Slow Build"}]`

	a := newTestArchive(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/autocomplete/freeform", r.URL.Path)
		assert.Equal(t, "slow b", r.URL.Query().Get("term"))
		assert.Equal(t, "tagchain-test", r.UserAgent())
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(body))
	})

	list, err := a.Suggestions(context.Background(), "slow b")
	require.NoError(t, err)
	assert.Equal(t, body, string(list.Raw))
	assert.Equal(t, []Tag{
		{ID: "Slow Burn", Name: "Slow Burn"},
		{ID: "Slow Build", Name: "Slow Build"},
	}, list.Tags)
}

func TestArchiveSuggestionsInvalidJSON(t *testing.T) {
	a := newTestArchive(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := a.Suggestions(context.Background(), "angst")

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusOK, upErr.Status)
}

func TestArchiveErrorKinds(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		a := newTestArchive(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := a.Suggestions(context.Background(), "angst")
		assert.ErrorIs(t, err, ErrRateLimited)

		_, err = a.Cooccurrence(context.Background(), []string{"Angst", "Fluff"})
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("upstream error", func(t *testing.T) {
		a := newTestArchive(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := a.Cooccurrence(context.Background(), []string{"Angst", "Fluff"})

		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, http.StatusServiceUnavailable, upErr.Status)
	})

	t.Run("transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		a := newArchiveClient(srv.URL, "tagchain-test", time.Second)

		_, err := a.Suggestions(context.Background(), "angst")

		var trErr *TransportError
		require.ErrorAs(t, err, &trErr)
		assert.False(t, errors.Is(err, ErrRateLimited))
	})
}

func TestArchiveCooccurrence(t *testing.T) {
	a := newTestArchive(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/search", r.URL.Path)
		assert.Equal(t, "Angst,Slow Burn", r.URL.Query().Get("work_search[freeform_names]"))
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		w.Write([]byte(`<h3 class="heading">1,812 Found</h3>`))
	})

	count, err := a.Cooccurrence(context.Background(), []string{"Angst", "Slow Burn"})
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 1812, Parsed: true}, count)
}

func TestArchiveCooccurrenceUnparsed(t *testing.T) {
	a := newTestArchive(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p>Something went wrong</p>`))
	})

	count, err := a.Cooccurrence(context.Background(), []string{"Angst", "Fluff"})
	require.NoError(t, err)
	assert.Equal(t, 0, count.Value)
	assert.False(t, count.Parsed)
}

func TestArchiveFollowsOneRedirect(t *testing.T) {
	a := newTestArchive(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/works/search":
			http.Redirect(w, r, "/works/results", http.StatusFound)
		case "/works/results":
			w.Write([]byte(`<h3>64 Found</h3>`))
		}
	})

	count, err := a.Cooccurrence(context.Background(), []string{"Angst", "Fluff"})
	require.NoError(t, err)
	assert.Equal(t, 64, count.Value)
}

func TestArchiveStopsAfterSecondRedirect(t *testing.T) {
	a := newTestArchive(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/works/search":
			http.Redirect(w, r, "/works/hop", http.StatusFound)
		case "/works/hop":
			http.Redirect(w, r, "/works/results", http.StatusFound)
		case "/works/results":
			t.Error("second redirect should not be followed")
		}
	})

	_, err := a.Cooccurrence(context.Background(), []string{"Angst", "Fluff"})

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusFound, upErr.Status)
}
