package service

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// tokenSort: tokens sorted alphabetically, so word order does not matter
func tokenSort(s string) string {
	if s == "" {
		return s
	}
	t := strings.Fields(s)
	sort.Strings(t)
	return strings.Join(t, " ")
}

// ratio is the normalized indel similarity in [0..100]:
// 100 * (1 - indel(a,b) / (len(a)+len(b))), lengths in runes.
func ratio(a, b string) float64 {
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	if la+lb == 0 {
		return 100
	}
	if la == 0 || lb == 0 {
		return 0
	}
	if a == b {
		return 100
	}
	d := edlib.LCSEditDistance(a, b)
	return clamp(100*(1-float64(d)/float64(la+lb)), 0, 100)
}

// TokenSortRatio compares two normalized strings regardless of word order.
// Both empty -> 100, exactly one empty -> 0.
func TokenSortRatio(a, b string) float64 {
	return ratio(tokenSort(a), tokenSort(b))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// clamp maps NaN to lo.
func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
