/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
)

const (
	autocompleteCache = "public, max-age=3600, s-maxage=86400"
	cooccurrenceCache = "public, max-age=300, s-maxage=3600"
	minTermLength     = 2
)

// proxyResponse is everything a proxy endpoint writes. Building one never
// touches shared state, so the endpoints are safe under any parallelism.
type proxyResponse struct {
	Status int
	Body   []byte
	Header http.Header
}

type cooccurrenceBody struct {
	Tags     []string `json:"tags"`
	Count    int      `json:"count"`
	Unparsed bool     `json:"unparsed,omitempty"`
}

func newProxyResponse(status int, body []byte, cacheControl string) proxyResponse {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Cache-Control", cacheControl)

	return proxyResponse{Status: status, Body: body, Header: h}
}

func jsonProxyResponse(status int, v any, cacheControl string) proxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		body, _ = json.Marshal(apiError{Error: codeInternal})
		return newProxyResponse(http.StatusInternalServerError, body, "no-store")
	}

	return newProxyResponse(status, body, cacheControl)
}

func failedProxyResponse(err error) proxyResponse {
	status, body, ok := upstreamFailure(err)
	if !ok {
		status, body = http.StatusBadGateway, apiError{Error: codeFetchFailed, Message: err.Error()}
	}

	return jsonProxyResponse(status, body, "no-store")
}

func autocompleteResponse(ctx context.Context, svc TagService, query url.Values) proxyResponse {
	term := query.Get("term")
	if utf8.RuneCountInString(term) < minTermLength {
		return newProxyResponse(http.StatusOK, []byte("[]"), autocompleteCache)
	}

	list, err := svc.Suggestions(ctx, term)
	if err != nil {
		return failedProxyResponse(err)
	}

	return newProxyResponse(http.StatusOK, list.Raw, autocompleteCache)
}

// splitTags splits a comma-joined tag list, dropping blank entries.
func splitTags(raw string) []string {
	var tags []string

	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	return tags
}

func cooccurrenceResponse(ctx context.Context, svc TagService, query url.Values) proxyResponse {
	raw := query.Get("tags")
	if raw == "" {
		return jsonProxyResponse(http.StatusBadRequest, apiError{Error: codeMissingTags}, "no-store")
	}

	tags := splitTags(raw)
	if len(tags) < 2 {
		return jsonProxyResponse(http.StatusBadRequest, apiError{Error: codeNeedTwoTags}, "no-store")
	}

	count, err := svc.Cooccurrence(ctx, tags)
	if err != nil {
		return failedProxyResponse(err)
	}

	return jsonProxyResponse(http.StatusOK, cooccurrenceBody{
		Tags:     tags,
		Count:    count.Value,
		Unparsed: !count.Parsed,
	}, cooccurrenceCache)
}

func writeProxyResponse(w http.ResponseWriter, resp proxyResponse) (int, error) {
	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.Status)

	return w.Write(resp.Body)
}

func serveAutocomplete(cfg *Config, svc TagService, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		resp := autocompleteResponse(r.Context(), svc, r.URL.Query())

		written, err := writeProxyResponse(w, resp)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "PROXY: Autocomplete %q -> %d (%s) for %s in %s",
			r.URL.Query().Get("term"),
			resp.Status,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveCooccurrence(cfg *Config, svc TagService, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		resp := cooccurrenceResponse(r.Context(), svc, r.URL.Query())

		if resp.Status == http.StatusOK && strings.Contains(string(resp.Body), `"unparsed":true`) {
			logf(cfg, "PROXY: WARNING no result count found for %q, reporting 0", r.URL.Query().Get("tags"))
		}

		_, err := writeProxyResponse(w, resp)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "PROXY: Co-occurrence %q -> %d for %s in %s",
			r.URL.Query().Get("tags"),
			resp.Status,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}
