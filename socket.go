/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const maxSocketMessage = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Messages coming from clients
type ClientMessage struct {
	Type string `json:"type"` // "input"
	Term string `json:"term"`
}

type socketClient struct {
	conn *websocket.Conn
	send chan SuggestEvent
	done chan struct{}
}

// enqueue hands an event to the write pump, waiting if its buffer is full.
func (c *socketClient) enqueue(ev SuggestEvent) {
	select {
	case c.send <- ev:
	case <-c.done:
	}
}

// serveSuggestSocket runs one autocomplete controller per connection. With
// ?game=<id> suggestions already in that game's chain are marked used.
func serveSuggestSocket(cfg *Config, gm *GameManager, src SuggestionSource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var used func(string) bool

		if id := r.URL.Query().Get("game"); id != "" {
			game, err := gm.Get(id, playerID(r))
			if err != nil {
				status := http.StatusNotFound
				if errors.Is(err, ErrNotYourGame) {
					status = http.StatusForbidden
				}
				http.Error(w, err.Error(), status)
				return
			}
			used = game.IsUsed
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}
		conn.SetReadLimit(maxSocketMessage)

		client := &socketClient{
			conn: conn,
			send: make(chan SuggestEvent, 16),
			done: make(chan struct{}),
		}

		s := newSuggester(src, cfg.debounce, cfg.suggestionLimit, used, client.enqueue)

		logf(cfg, "SERVE: Autocomplete socket opened for %s", realIP(r))

		go client.writePump()
		client.readPump(s)

		logf(cfg, "SERVE: Autocomplete socket closed for %s", realIP(r))
	}
}

func (c *socketClient) readPump(s *Suggester) {
	defer func() {
		s.Close()
		close(c.send)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "input":
			s.Input(msg.Term)
		default:
			// ignore unknown types
		}
	}
}

func (c *socketClient) writePump() {
	defer func() {
		close(c.done)
		_ = c.conn.Close()
	}()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
