/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"
)

// Error codes shared by the proxy endpoints and the game api.
const (
	codeRateLimited     = "rate_limited"
	codeUpstreamError   = "ao3_error"
	codeFetchFailed     = "fetch_failed"
	codeMissingTags     = "missing_tags"
	codeNeedTwoTags     = "need_at_least_2_tags"
	codeBadRequest      = "bad_request"
	codeNotFound        = "not_found"
	codeForbidden       = "forbidden"
	codeGameNotActive   = "game_not_active"
	codeAlreadyStarted  = "game_already_started"
	codeProposalPending = "proposal_pending"
	codeInternal        = "internal_error"
)

// apiError is the stable json shape for every failed api call.
type apiError struct {
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// upstreamFailure maps a TagService error onto a status code and body.
// The bool is false for errors that did not come from the upstream lookup.
func upstreamFailure(err error) (int, apiError, bool) {
	var upErr *UpstreamError
	var trErr *TransportError

	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, apiError{Error: codeRateLimited}, true
	case errors.As(err, &upErr):
		return http.StatusBadGateway, apiError{Error: codeUpstreamError, Status: upErr.Status}, true
	case errors.As(err, &trErr):
		return http.StatusBadGateway, apiError{Error: codeFetchFailed, Message: trErr.Err.Error()}, true
	}

	return 0, apiError{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, err = w.Write(body)

	return err
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", html.EscapeString(body)))

	return htmlBody.String()
}
