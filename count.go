/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// The archive's search results heading reads e.g. "1,234 Found".
var foundPattern = regexp.MustCompile(`(?i)([\d,]+)\s*Found`)

// parseFoundCount scans the visible text of a search results page for the
// first "<N> Found" heading. A page without one yields Count{Parsed: false}.
func parseFoundCount(r io.Reader) (Count, error) {
	var text strings.Builder

	z := html.NewTokenizer(r)
	skip := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return Count{}, &TransportError{Err: err}
			}
			break
		}

		switch tt {
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				text.Write(z.Text())
				text.WriteByte(' ')
			}
		}
	}

	return extractCount(text.String()), nil
}

func isRawTextTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

func extractCount(text string) Count {
	match := foundPattern.FindStringSubmatch(text)
	if match == nil {
		return Count{}
	}

	n, err := strconv.Atoi(strings.ReplaceAll(match[1], ",", ""))
	if err != nil {
		return Count{}
	}

	return Count{Value: n, Parsed: true}
}
