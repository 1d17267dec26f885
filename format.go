/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"strconv"
	"strings"
)

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}

// formatCount renders a work count for display: 812, 1.5k, 12k.
// It is lossy and never used for comparisons.
func formatCount(n int) string {
	switch {
	case n >= 10000:
		return strings.TrimSuffix(fmt.Sprintf("%.1f", float64(n)/1000), ".0") + "k"
	case n >= 1000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}

	return strconv.Itoa(n)
}
