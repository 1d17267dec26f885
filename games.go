/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	playerCookieName = "tagchain_id"
	maxRequestBody   = 4096
	starterSample    = 8
	qrSize           = 320
	codeBadThreshold = "unknown_threshold"
)

type setupResponse struct {
	Difficulties []Difficulty `json:"difficulties"`
	Default      int          `json:"default_threshold"`
	Starters     []string     `json:"starters"`
	Best         BestScores   `json:"best"`
}

type newGameRequest struct {
	Starter   string `json:"starter"`
	Threshold int    `json:"threshold"`
}

type proposalRequest struct {
	Tag string `json:"tag"`
}

type proposalResponse struct {
	Verdict Verdict      `json:"verdict"`
	Game    GameSnapshot `json:"game"`
}

func playerID(r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil {
		return c.Value
	}
	return ""
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if id := playerID(r); id != "" {
		return id
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().AddDate(1, 0, 0),
	})

	return id
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
}

func gameError(w http.ResponseWriter, err error) error {
	if status, body, ok := upstreamFailure(err); ok {
		return writeJSON(w, status, body)
	}

	switch {
	case errors.Is(err, ErrGameNotFound):
		return writeJSON(w, http.StatusNotFound, apiError{Error: codeNotFound})
	case errors.Is(err, ErrNotYourGame):
		return writeJSON(w, http.StatusForbidden, apiError{Error: codeForbidden})
	case errors.Is(err, ErrNotActive):
		return writeJSON(w, http.StatusConflict, apiError{Error: codeGameNotActive})
	case errors.Is(err, ErrAlreadyStarted):
		return writeJSON(w, http.StatusConflict, apiError{Error: codeAlreadyStarted})
	case errors.Is(err, ErrProposalPending):
		return writeJSON(w, http.StatusConflict, apiError{Error: codeProposalPending})
	case errors.Is(err, ErrUnknownThreshold):
		return writeJSON(w, http.StatusBadRequest, apiError{Error: codeBadThreshold})
	case errors.Is(err, ErrEmptyTag):
		return writeJSON(w, http.StatusBadRequest, apiError{Error: codeBadRequest, Message: err.Error()})
	}

	log.Printf("%s | ERROR: %v", time.Now().Format(logDate), err)

	return writeJSON(w, http.StatusInternalServerError, apiError{Error: codeInternal})
}

// gameHandler resolves :id to a game owned by the caller before calling fn.
func gameHandler(gm *GameManager, errs chan<- error, fn func(w http.ResponseWriter, r *http.Request, game *Game) error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Cache-Control", "no-store")

		game, err := gm.Get(p.ByName("id"), playerID(r))
		if err == nil {
			err = fn(w, r, game)
		} else {
			err = gameError(w, err)
		}

		if err != nil {
			errs <- err
		}
	}
}

func serveSetup(gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Cache-Control", "no-store")

		best, err := gm.scores.Best(r.Context(), getOrSetPlayerID(w, r))
		if err != nil {
			if err := gameError(w, err); err != nil {
				errs <- err
			}
			return
		}

		err = writeJSON(w, http.StatusOK, setupResponse{
			Difficulties: gm.data.Difficulties,
			Default:      gm.data.defaultThreshold(),
			Starters:     gm.data.sampleStarters(starterSample),
			Best:         best,
		})
		if err != nil {
			errs <- err
		}
	}
}

func serveScores(gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Cache-Control", "no-store")

		best, err := gm.scores.Best(r.Context(), getOrSetPlayerID(w, r))
		if err == nil {
			err = writeJSON(w, http.StatusOK, best)
		} else {
			err = gameError(w, err)
		}

		if err != nil {
			errs <- err
		}
	}
}

func serveNewGame(gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Cache-Control", "no-store")

		var req newGameRequest
		if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
			if err := writeJSON(w, http.StatusBadRequest, apiError{Error: codeBadRequest, Message: err.Error()}); err != nil {
				errs <- err
			}
			return
		}

		player := getOrSetPlayerID(w, r)

		game, err := gm.Start(player, req.Starter, req.Threshold)
		if err == nil {
			err = writeJSON(w, http.StatusCreated, game.Snapshot())
		} else {
			err = gameError(w, err)
		}

		if err != nil {
			errs <- err
		}
	}
}

func serveGame(gm *GameManager, errs chan<- error) httprouter.Handle {
	return gameHandler(gm, errs, func(w http.ResponseWriter, r *http.Request, game *Game) error {
		return writeJSON(w, http.StatusOK, game.Snapshot())
	})
}

func serveProposal(gm *GameManager, errs chan<- error) httprouter.Handle {
	return gameHandler(gm, errs, func(w http.ResponseWriter, r *http.Request, game *Game) error {
		var req proposalRequest
		if err := decodeBody(r, &req); err != nil {
			return writeJSON(w, http.StatusBadRequest, apiError{Error: codeBadRequest, Message: err.Error()})
		}

		verdict, err := gm.Propose(r.Context(), game, req.Tag)
		if err != nil {
			return gameError(w, err)
		}

		return writeJSON(w, http.StatusOK, proposalResponse{
			Verdict: verdict,
			Game:    game.Snapshot(),
		})
	})
}

func serveEndGame(gm *GameManager, errs chan<- error) httprouter.Handle {
	return gameHandler(gm, errs, func(w http.ResponseWriter, r *http.Request, game *Game) error {
		result, err := gm.End(r.Context(), game)
		if err != nil {
			return gameError(w, err)
		}

		return writeJSON(w, http.StatusOK, result)
	})
}

// serveShareQR renders the game's share text as a PNG QR code.
func serveShareQR(gm *GameManager, errs chan<- error) httprouter.Handle {
	return gameHandler(gm, errs, func(w http.ResponseWriter, r *http.Request, game *Game) error {
		png, err := qrcode.Encode(gm.shareText(game), qrcode.Medium, qrSize)
		if err != nil {
			return gameError(w, err)
		}

		w.Header().Set("Content-Type", "image/png")
		_, err = w.Write(png)

		return err
	})
}

func registerGameAPI(cfg *Config, gm *GameManager, src SuggestionSource, mux *httprouter.Router, errs chan<- error) {
	api := cfg.prefix + "/api"

	mux.GET(api+"/setup", serveSetup(gm, errs))
	mux.GET(api+"/scores", serveScores(gm, errs))
	mux.POST(api+"/games", serveNewGame(gm, errs))
	mux.GET(api+"/games/:id", serveGame(gm, errs))
	mux.POST(api+"/games/:id/tags", serveProposal(gm, errs))
	mux.POST(api+"/games/:id/end", serveEndGame(gm, errs))
	mux.GET(api+"/games/:id/qr", serveShareQR(gm, errs))
	mux.GET(api+"/suggest", serveSuggestSocket(cfg, gm, src))
}
