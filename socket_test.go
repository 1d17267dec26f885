/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSuggestServer(t *testing.T, svc TagService) (string, *GameManager) {
	t.Helper()

	gm := newTestManager(t, svc)
	mux := httprouter.New()
	mux.GET("/api/suggest", serveSuggestSocket(gm.cfg, gm, svc))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/suggest", gm
}

func readEvent(t *testing.T, conn *websocket.Conn) SuggestEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var ev SuggestEvent
	require.NoError(t, conn.ReadJSON(&ev))

	return ev
}

func TestSuggestSocket(t *testing.T) {
	url, _ := newSuggestServer(t, &fakeTags{})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "input", Term: "a"}))
	assert.Equal(t, eventClear, readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "input", Term: "an"}))

	loading := readEvent(t, conn)
	assert.Equal(t, eventLoading, loading.Type)
	assert.Equal(t, "an", loading.Term)

	ev := readEvent(t, conn)
	require.Equal(t, eventSuggestions, ev.Type)
	assert.Equal(t, loading.Seq, ev.Seq)
	require.Len(t, ev.Items, 2)
	assert.Equal(t, "<strong>An</strong>gst", ev.Items[0].Highlight)
}

func TestSuggestSocketMarksUsedTags(t *testing.T) {
	url, gm := newSuggestServer(t, &fakeTags{})

	game, err := gm.Start("p1", "Angst", 500)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Cookie", playerCookieName+"=p1")

	conn, _, err := websocket.DefaultDialer.Dial(url+"?game="+game.ID, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "input", Term: "an"}))
	require.Equal(t, eventLoading, readEvent(t, conn).Type)

	ev := readEvent(t, conn)
	require.Len(t, ev.Items, 2)
	assert.True(t, ev.Items[0].Used)
	assert.False(t, ev.Items[1].Used)
}

func TestSuggestSocketRejectsForeignGame(t *testing.T) {
	url, gm := newSuggestServer(t, &fakeTags{})

	game, err := gm.Start("p1", "Angst", 500)
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?game="+game.ID, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?game=missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
