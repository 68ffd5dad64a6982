package exporter

import (
	"strconv"
	"time"

	"github.com/ernyzasxash/clientt/internal/security"
)

// TimeLayout is used for every timestamp cell
const TimeLayout = "2006-01-02 15:04:05"

// formatTime formats t in UTC, or "" for the zero time
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// formatBool formats a boolean value as yes or no
func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatKey masks key unless full keys were requested
func formatKey(key string, full bool) string {
	if full {
		return key
	}
	return security.MaskLicenseKey(key)
}

func formatInt(i int) string {
	return strconv.Itoa(i)
}
