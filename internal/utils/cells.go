package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var rxKeepNums = regexp.MustCompile(`[^\d\.\-]`)

var spaceless = strings.NewReplacer("\u00A0", "", "\u202F", "", " ", "", "\t", "", ",", ".")

// ParseFloat reads spreadsheet numbers: "1 234,50", "12.5", NBSP grouping.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = rxKeepNums.ReplaceAllString(spaceless.Replace(s), "")
	if s == "" || s == "-" || s == "." {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// ParseID accepts integral numbers only ("42", "42,0", "42.00").
func ParseID(s string) (int64, bool) {
	f, ok := ParseFloat(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02.01.2006 15:04",
	"02.01.2006",
}

// excel serial dates count days from 1899-12-30
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp understands the registry's export formats (day first) and
// Excel serial dates. loc applies to layouts without a zone.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil && f > 0 && f < 200000 {
		d := time.Duration(math.Round(f * 24 * float64(time.Hour)))
		t := excelEpoch.Add(d)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
	}
	return time.Time{}, false
}

// SplitList splits "a.jpg; b.jpg|c.jpg" into trimmed non-empty parts.
func SplitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' || r == '\n' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
