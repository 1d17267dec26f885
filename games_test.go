/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t      *testing.T
	mux    *httprouter.Router
	player string
}

func newAPIClient(t *testing.T, svc TagService) (*apiClient, *GameManager) {
	t.Helper()

	gm := newTestManager(t, svc)
	mux := httprouter.New()
	registerGameAPI(gm.cfg, gm, svc, mux, make(chan error, 64))

	return &apiClient{t: t, mux: mux, player: "p1"}, gm
}

func (c *apiClient) do(method, target string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	if c.player != "" {
		req.AddCookie(&http.Cookie{Name: playerCookieName, Value: c.player})
	}

	rec := httptest.NewRecorder()
	c.mux.ServeHTTP(rec, req)

	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func TestGameAPIFlow(t *testing.T) {
	svc := &fakeTags{count: fixedCount(812)}
	api, _ := newAPIClient(t, svc)

	rec := api.do(http.MethodPost, "/api/games", newGameRequest{Starter: "Angst", Threshold: 500})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	snap := decodeAs[GameSnapshot](t, rec)
	assert.Equal(t, "active", snap.State)
	assert.Equal(t, []string{"Angst"}, snap.Chain)

	base := "/api/games/" + snap.ID

	rec = api.do(http.MethodPost, base+"/tags", proposalRequest{Tag: "Slow Burn"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	prop := decodeAs[proposalResponse](t, rec)
	assert.True(t, prop.Verdict.Accepted)
	assert.Equal(t, 812, prop.Verdict.Count)
	assert.Equal(t, []string{"Angst", "Slow Burn"}, prop.Game.Chain)

	rec = api.do(http.MethodPost, base+"/tags", proposalRequest{Tag: "slow burn"})
	require.Equal(t, http.StatusOK, rec.Code)
	prop = decodeAs[proposalResponse](t, rec)
	assert.False(t, prop.Verdict.Accepted)
	assert.Equal(t, ReasonDuplicate, prop.Verdict.Reason)

	rec = api.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeAs[GameSnapshot](t, rec).Length)

	rec = api.do(http.MethodPost, base+"/end", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	end := decodeAs[EndResult](t, rec)
	assert.Equal(t, 2, end.Best)
	assert.True(t, end.Improved)
	assert.Contains(t, end.Share, "Angst → Slow Burn")

	rec = api.do(http.MethodPost, base+"/tags", proposalRequest{Tag: "Fluff"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"game_not_active"}`, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/scores", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"d500":2}`, rec.Body.String())
}

func TestGameAPIDefaults(t *testing.T) {
	api, _ := newAPIClient(t, &fakeTags{})

	rec := api.do(http.MethodPost, "/api/games", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	snap := decodeAs[GameSnapshot](t, rec)
	assert.Equal(t, 500, snap.Threshold)
	assert.Len(t, snap.Chain, 1)
}

func TestGameAPIErrors(t *testing.T) {
	svc := &fakeTags{count: failing(ErrRateLimited)}
	api, gm := newAPIClient(t, svc)

	game, err := gm.Start("p1", "Angst", 500)
	require.NoError(t, err)
	base := "/api/games/" + game.ID

	rec := api.do(http.MethodPost, base+"/tags", proposalRequest{Tag: "Fluff"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate_limited"}`, rec.Body.String())
	assert.Equal(t, 1, game.Len())

	svc.count = failing(&UpstreamError{Status: 503})
	rec = api.do(http.MethodPost, base+"/tags", proposalRequest{Tag: "Fluff"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"ao3_error","status":503}`, rec.Body.String())

	rec = api.do(http.MethodPost, base+"/tags", proposalRequest{Tag: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, base+"/tags", strings.NewReader("{"))
	req.AddCookie(&http.Cookie{Name: playerCookieName, Value: "p1"})
	rec = httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/games/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/games", newGameRequest{Threshold: 750})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"unknown_threshold"}`, rec.Body.String())

	api.player = "p2"
	rec = api.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	api.player = ""
	rec = api.do(http.MethodPost, base+"/end", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, Active, game.State())
}

func TestGameAPISetupIssuesCookie(t *testing.T) {
	api, _ := newAPIClient(t, &fakeTags{})
	api.player = ""

	rec := api.do(http.MethodGet, "/api/setup", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == playerCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Len(t, cookie.Value, 32)
	assert.True(t, cookie.HttpOnly)

	setup := decodeAs[setupResponse](t, rec)
	assert.Len(t, setup.Difficulties, 4)
	assert.Equal(t, 500, setup.Default)
	assert.Len(t, setup.Starters, starterSample)
	assert.Empty(t, setup.Best)
}

func TestGameAPIShareQR(t *testing.T) {
	api, gm := newAPIClient(t, &fakeTags{})

	game, err := gm.Start("p1", "Angst", 500)
	require.NoError(t, err)

	rec := api.do(http.MethodGet, "/api/games/"+game.ID+"/qr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}
