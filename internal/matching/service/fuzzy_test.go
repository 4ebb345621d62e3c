package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenSortRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 100},
		{"left empty", "", "sac", 0},
		{"right empty", "sac", "", 0},
		{"identical", "sac noir", "sac noir", 100},
		{"word order", "noir sac", "sac noir", 100},
		{"disjoint", "abc", "xyz", 0},
		{"one edit", "sac", "sacs", 100 * (1 - 1.0/7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TokenSortRatio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTokenSortRatioSymmetricAndBounded(t *testing.T) {
	pairs := [][2]string{
		{"telephon noir", "telephon blanc"},
		{"badg vip", "badg"},
		{"lunet solair", "casqu"},
		{"été", "ete"},
	}
	for _, p := range pairs {
		ab := TokenSortRatio(p[0], p[1])
		ba := TokenSortRatio(p[1], p[0])
		assert.Equal(t, ab, ba, "%q / %q", p[0], p[1])
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 100.0)
	}
}

func TestRound2AndClamp(t *testing.T) {
	assert.Equal(t, 33.33, round2(100.0/3))
	assert.Equal(t, 66.67, round2(200.0/3))
	assert.Equal(t, 0.0, clamp(-5, 0, 100))
	assert.Equal(t, 100.0, clamp(110, 0, 100))
	assert.Equal(t, 42.0, clamp(42, 0, 100))
	assert.Equal(t, 0.0, clamp(math.NaN(), 0, 100))
}
