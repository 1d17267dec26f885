/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const maxUpstreamBody = 4 << 20

var ErrRateLimited = errors.New("rate limited by upstream archive")

// UpstreamError is any non-2xx, non-429 answer from the archive.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream archive returned status %d", e.Status)
}

// TransportError wraps network, timeout and read failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "fetching from upstream archive: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Tag is a single autocomplete result from the archive.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TagList keeps the raw upstream body alongside the decoded tags, so the
// proxy can pass it through untouched.
type TagList struct {
	Raw  []byte
	Tags []Tag
}

// Count is the number of works carrying every tag in a search. Parsed is
// false when no count could be found in the page at all.
type Count struct {
	Value  int
	Parsed bool
}

// TagService is everything the game and proxy need from the archive.
type TagService interface {
	Suggestions(ctx context.Context, term string) (*TagList, error)
	Cooccurrence(ctx context.Context, tags []string) (Count, error)
}

type archiveClient struct {
	base      string
	userAgent string
	client    *http.Client
}

func newArchiveClient(base, userAgent string, timeout time.Duration) *archiveClient {
	return &archiveClient{
		base:      strings.TrimSuffix(base, "/"),
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > 1 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (a *archiveClient) get(ctx context.Context, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &UpstreamError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	return body, nil
}

func (a *archiveClient) Suggestions(ctx context.Context, term string) (*TagList, error) {
	target := a.base + "/autocomplete/freeform?term=" + url.QueryEscape(term)

	body, err := a.get(ctx, target, "application/json")
	if err != nil {
		return nil, err
	}

	return decodeTagList(body)
}

func (a *archiveClient) Cooccurrence(ctx context.Context, tags []string) (Count, error) {
	target := a.base + "/works/search?work_search%5Bfreeform_names%5D=" + url.QueryEscape(strings.Join(tags, ","))

	body, err := a.get(ctx, target, "text/html")
	if err != nil {
		return Count{}, err
	}

	return parseFoundCount(bytes.NewReader(body))
}

func decodeTagList(body []byte) (*TagList, error) {
	if !gjson.ValidBytes(body) {
		return nil, &UpstreamError{Status: http.StatusOK}
	}

	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, &UpstreamError{Status: http.StatusOK}
	}

	list := &TagList{Raw: body}
	result.ForEach(func(_, item gjson.Result) bool {
		name := item.Get("name").String()
		if name != "" {
			list.Tags = append(list.Tags, Tag{
				ID:   item.Get("id").String(),
				Name: name,
			})
		}
		return true
	})

	return list, nil
}
