package triage

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinSeverity = 1
	MaxSeverity = 5

	// defaultSeverity is assumed when neither the model nor the caller gives one.
	defaultSeverity = 2
)

var severityLabels = map[string]int{
	"critical": 5,
	"high":     4,
	"moderate": 3,
	"medium":   3,
	"low":      2,
	"mild":     2,
	"minimal":  1,
}

var severityDigitRe = regexp.MustCompile(`[1-5]`)

// ParseSeverity converts a number, numeral string, string with an embedded
// digit 1-5, or label word into a severity. It returns fallback when nothing
// matches. The result is not clamped.
func ParseSeverity(value any, fallback int) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return fromFloat(v, fallback)
	case float32:
		return fromFloat(float64(v), fallback)
	case json.Number:
		return parseSeverityString(v.String(), fallback)
	case string:
		return parseSeverityString(v, fallback)
	}
	return fallback
}

func parseSeverityString(s string, fallback int) int {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return fallback
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return fromFloat(f, fallback)
	}
	if d := severityDigitRe.FindString(trimmed); d != "" {
		return int(d[0] - '0')
	}
	if n, ok := severityLabels[strings.ToLower(trimmed)]; ok {
		return n
	}
	return fallback
}

func fromFloat(f float64, fallback int) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	// saturate before converting so huge values don't overflow int
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Round(f))
}

// SeverityLabel names a clamped severity score.
func SeverityLabel(score int) string {
	switch {
	case score >= 5:
		return "Critical"
	case score == 4:
		return "High"
	case score == 3:
		return "Moderate"
	case score == 2:
		return "Low"
	default:
		return "Minimal"
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
