package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-service/internal/matching/model"
	"match-service/internal/matching/textnorm"
)

type imageCall struct{ text, photo string }

type fakeImages struct {
	mu    sync.Mutex
	sim   float64
	calls []imageCall
}

func (f *fakeImages) TextImageSimilarity(_ context.Context, text, photo string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, imageCall{text, photo})
	return f.sim
}

func newRanker(images ImageScorer, workers int) *Ranker {
	return NewRanker(textnorm.New(textnorm.French()), images, zerolog.Nop(), workers)
}

func lost(id int64, title string) model.Record {
	return model.Record{ID: id, Title: title, CategoryID: 1, CategoryName: "Sacs", Disposition: model.Lost}
}

func found(id int64, title string) model.Record {
	return model.Record{ID: id, Title: title, CategoryID: 1, CategoryName: "Sacs", Disposition: model.Found}
}

func TestFieldScorerRejectsBadWeights(t *testing.T) {
	fs := NewFieldScorer(textnorm.New(textnorm.French()))
	a, b := lost(1, "sac"), found(2, "sac")

	for name, w := range map[string]model.FieldWeights{
		"all zero": {model.FieldTitle: 0, model.FieldComments: 0},
		"empty":    {},
		"negative": {model.FieldTitle: 1, model.FieldComments: -1},
		"unknown":  {model.Field("color"): 1},
		"nan":      {model.FieldTitle: math.NaN()},
		"inf":      {model.FieldTitle: math.Inf(1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := fs.Score(a, b, w)
			assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
			_, err = fs.Explain(a, b, w)
			assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
		})
	}
}

func TestFieldScorerWeightedAverage(t *testing.T) {
	fs := NewFieldScorer(textnorm.New(textnorm.French()))
	a := model.Record{Title: "Téléphone noir", Comments: "coque rouge", Location: "Scène A", Disposition: model.Lost}
	b := model.Record{Title: "gsm noir", Comments: "", FoundLocation: "Scène A", Disposition: model.Found}

	s, err := fs.Score(a, b, model.RankingWeights())
	require.NoError(t, err)
	// title 100, comments 0 (one side empty), location 100
	assert.Equal(t, round2((100*0.55+0*0.25+100*0.20)/1.0), s)

	// only title counts
	s, err = fs.Score(a, b, model.FieldWeights{model.FieldTitle: 2})
	require.NoError(t, err)
	assert.Equal(t, 100.0, s)

	ex, err := fs.Explain(a, b, model.RankingWeights())
	require.NoError(t, err)
	require.Contains(t, ex, model.FieldTitle)
	assert.Equal(t, 100.0, ex[model.FieldTitle].Score)
	assert.Contains(t, ex[model.FieldTitle].CommonWords, fs.norm.Normalize("noir"))
	assert.Equal(t, []model.SynonymHit{{Canonical: "téléphone", Variant: "gsm"}}, ex[model.FieldTitle].SynonymsFound)
	assert.Equal(t, "Scène A", ex[model.FieldLocation].Value2)
}

func TestRankTruncation(t *testing.T) {
	r := newRanker(nil, 1)
	q := lost(100, "sac noir")

	tests := []struct {
		pool    int
		want    int
		hasMore bool
	}{
		{15, 10, true},
		{10, 10, false},
		{5, 5, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.pool), func(t *testing.T) {
			pool := make([]model.Candidate, tt.pool)
			for i := range pool {
				pool[i] = found(int64(i+1), "sac noir")
			}
			out, more, err := r.Rank(context.Background(), q, pool, model.DefaultRankOptions())
			require.NoError(t, err)
			assert.Len(t, out, tt.want)
			assert.Equal(t, tt.hasMore, more)
			// equal scores keep pool order
			for i, s := range out {
				assert.Equal(t, int64(i+1), s.CandidateID)
			}
		})
	}
}

func TestRankOrdersByCombinedScore(t *testing.T) {
	r := newRanker(nil, 1)
	q := lost(100, "téléphone samsung noir")
	pool := []model.Candidate{
		found(1, "lunettes de soleil"),
		found(2, "gsm samsung noir"),
		found(3, "téléphone blanc"),
	}
	out, more, err := r.Rank(context.Background(), q, pool, model.DefaultRankOptions())
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, out, 3)
	assert.Equal(t, int64(2), out[0].CandidateID)
	assert.Equal(t, int64(1), out[2].CandidateID)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].CombinedScore, out[i].CombinedScore)
	}
}

func TestRankTextOnlyWhenImagesUnavailable(t *testing.T) {
	r := newRanker(nil, 1)
	q := lost(1, "sac noir")
	c := found(2, "sac noir")
	c.Photos = []string{"items/sac.jpg"}

	out, _, err := r.Rank(context.Background(), q, []model.Candidate{c}, model.DefaultRankOptions())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 100.0, out[0].TextScore)
	assert.Equal(t, 0.0, out[0].ImageScore)
	assert.Equal(t, 10.0, out[0].Bonus)
	assert.Equal(t, 70.0, out[0].CombinedScore)
	assert.Equal(t, "items/sac.jpg", out[0].PrimaryPhoto)
}

func TestRankImageDirection(t *testing.T) {
	ctx := context.Background()

	t.Run("lost query uses candidate photo", func(t *testing.T) {
		img := &fakeImages{sim: 0.5}
		r := newRanker(img, 1)
		q := lost(1, "sac noir")
		q.Comments = "cuir"
		c := found(2, "sac noir")
		c.Photos = []string{"f.jpg", "g.jpg"}

		out, _, err := r.Rank(ctx, q, []model.Candidate{c}, model.DefaultRankOptions())
		require.NoError(t, err)
		assert.Equal(t, []imageCall{{"sac noir. cuir", "f.jpg"}}, img.calls)
		assert.Equal(t, 50.0, out[0].ImageScore)
	})

	t.Run("found query uses its own photo", func(t *testing.T) {
		img := &fakeImages{sim: 0.25}
		r := newRanker(img, 1)
		q := found(1, "casque")
		q.PhotoFilename = "legacy.jpg"
		c := lost(2, "écouteurs")
		c.Comments = "bluetooth"

		out, _, err := r.Rank(ctx, q, []model.Candidate{c}, model.DefaultRankOptions())
		require.NoError(t, err)
		assert.Equal(t, []imageCall{{"écouteurs. bluetooth", "legacy.jpg"}}, img.calls)
		assert.Equal(t, 25.0, out[0].ImageScore)
	})

	t.Run("same disposition skips images", func(t *testing.T) {
		img := &fakeImages{sim: 1}
		r := newRanker(img, 1)
		c := lost(2, "sac")
		c.Photos = []string{"x.jpg"}

		out, _, err := r.Rank(ctx, lost(1, "sac"), []model.Candidate{c}, model.DefaultRankOptions())
		require.NoError(t, err)
		assert.Empty(t, img.calls)
		assert.Equal(t, 0.0, out[0].ImageScore)
	})

	t.Run("no photo skips images", func(t *testing.T) {
		img := &fakeImages{sim: 1}
		r := newRanker(img, 1)

		_, _, err := r.Rank(ctx, lost(1, "sac"), []model.Candidate{found(2, "sac")}, model.DefaultRankOptions())
		require.NoError(t, err)
		assert.Empty(t, img.calls)
	})
}

func TestRankCombinedScoreIsClamped(t *testing.T) {
	r := newRanker(&fakeImages{sim: 1}, 1)
	now := time.Date(2025, 7, 12, 18, 0, 0, 0, time.UTC)
	q := lost(1, "sac noir")
	q.ReportedAt = now
	c := found(2, "sac noir")
	c.ReportedAt = now.Add(time.Hour)
	c.Photos = []string{"a.jpg"}

	out, _, err := r.Rank(context.Background(), q, []model.Candidate{c}, model.DefaultRankOptions())
	require.NoError(t, err)
	assert.Equal(t, 20.0, out[0].Bonus)
	assert.Equal(t, 100.0, out[0].CombinedScore)

	// far apart and unrelated: never below zero
	q2 := lost(3, "lunettes")
	q2.ReportedAt = now
	c2 := found(4, "badge vip")
	c2.ReportedAt = now.AddDate(0, 1, 0)
	opts := model.DefaultRankOptions()
	opts.CategoryBonus = 0
	opts.Temporal.FarPenalty = 500

	r2 := newRanker(nil, 1)
	out, _, err = r2.Rank(context.Background(), q2, []model.Candidate{c2}, opts)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0].CombinedScore)
}

func TestRankRejectsInvalidOptions(t *testing.T) {
	r := newRanker(nil, 1)
	pool := []model.Candidate{found(2, "sac")}

	mutate := map[string]func(o *model.RankOptions){
		"zero weights":   func(o *model.RankOptions) { o.Weights = model.FieldWeights{model.FieldTitle: 0} },
		"zero limit":     func(o *model.RankOptions) { o.Limit = 0 },
		"negative image": func(o *model.RankOptions) { o.ImageWeight = -1 },
		"nan bonus":      func(o *model.RankOptions) { o.CategoryBonus = math.NaN() },
		"inf near bonus": func(o *model.RankOptions) { o.Temporal.NearBonus = math.Inf(1) },
		"far before near": func(o *model.RankOptions) {
			o.Temporal.NearDays, o.Temporal.FarDays = 5, 1
		},
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			opts := model.DefaultRankOptions()
			fn(&opts)
			_, _, err := r.Rank(context.Background(), lost(1, "sac"), pool, opts)
			assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
		})
	}
}

func TestTemporalAdjustment(t *testing.T) {
	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	days := func(d float64) time.Duration { return time.Duration(d * float64(24*time.Hour)) }
	rules := model.DefaultTemporalRules()

	tests := []struct {
		name string
		b    time.Time
		want float64
	}{
		{"same moment", base, 10},
		{"2.0 days", base.Add(days(2)), 10},
		{"2.0 days before", base.Add(-days(2)), 10},
		{"2.01 days", base.Add(days(2.01)), 0},
		{"14.0 days", base.Add(days(14)), 0},
		{"14.01 days", base.Add(days(14.01)), -10},
		{"14.01 days before", base.Add(-days(14.01)), -10},
		{"unknown date", time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, temporalAdjustment(base, tt.b, rules))
		})
	}
}

func TestFindSimilar(t *testing.T) {
	r := newRanker(nil, 1)
	pool := []model.Candidate{
		lost(1, "Sac a dos noir"),
		found(2, "sac à dos noir Eastpak"),
		{ID: 3, Title: "Sac à dos noir", CategoryID: 2, Disposition: model.Found},
		found(4, "lunettes de soleil"),
	}

	out, err := r.FindSimilar(context.Background(), "Sac à dos noir", 1, pool, 70)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, int64(1), out[0].CandidateID)
	assert.Equal(t, 100.0, out[0].CombinedScore)
	for _, s := range out {
		assert.NotEqual(t, int64(3), s.CandidateID, "other category")
		assert.NotEqual(t, int64(4), s.CandidateID, "below threshold")
		assert.GreaterOrEqual(t, s.CombinedScore, 70.0)
	}

	_, err = r.FindSimilar(context.Background(), "sac", 1, pool, 120)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestExplainCategoryBonusOnlyWhenShared(t *testing.T) {
	r := newRanker(nil, 1)
	item := lost(1, "casque audio")
	same := found(2, "écouteurs audio")
	other := same
	other.CategoryID = 9

	rep, err := r.Explain(context.Background(), item, same, model.DefaultRankOptions())
	require.NoError(t, err)
	assert.Equal(t, 10.0, rep.Bonus)
	assert.Equal(t, model.ScoreWeights{Text: 0.6, Image: 0.4}, rep.Weights)
	assert.Equal(t, int64(1), rep.ItemID)
	assert.Equal(t, int64(2), rep.CandidateID)
	assert.Equal(t, 100.0, rep.Details[model.FieldTitle].Score)
	assert.Equal(t, clamp(round2(0.6*rep.TextScore+rep.Bonus), 0, 100), rep.CombinedScore)

	rep, err = r.Explain(context.Background(), item, other, model.DefaultRankOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep.Bonus)
}

func TestExplainMatchesRank(t *testing.T) {
	r := newRanker(&fakeImages{sim: 0.3}, 1)
	q := lost(1, "portefeuille cuir")
	q.Location = "bar"
	c := found(2, "porte-monnaie cuir marron")
	c.FoundLocation = "bar central"
	c.Photos = []string{"p.jpg"}

	ranked, _, err := r.Rank(context.Background(), q, []model.Candidate{c}, model.DefaultRankOptions())
	require.NoError(t, err)
	rep, err := r.Explain(context.Background(), q, c, model.DefaultRankOptions())
	require.NoError(t, err)

	assert.Equal(t, ranked[0].CombinedScore, rep.CombinedScore)
	assert.Equal(t, ranked[0].TextScore, rep.TextScore)
	assert.Equal(t, ranked[0].ImageScore, rep.ImageSimilarity)
}

func TestPairs(t *testing.T) {
	r := newRanker(nil, 1)
	withComments := func(r model.Record, c string) model.Record {
		r.Comments = c
		return r
	}
	pool := []model.Candidate{
		withComments(lost(1, "téléphone noir"), "coque rouge"),
		withComments(found(2, "gsm noir"), "coque rouge"),
		withComments(found(3, "lunettes"), "monture dorée"),
		{ID: 4, Title: "téléphone noir", Comments: "coque rouge", CategoryID: 7, Disposition: model.Found},
		withComments(lost(5, "lunette"), "monture dorée"),
	}

	out, err := r.Pairs(context.Background(), pool, model.DuplicateWeights(), 60)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].LostID)
	assert.Equal(t, int64(2), out[0].FoundID)
	assert.Equal(t, int64(5), out[1].LostID)
	assert.Equal(t, int64(3), out[1].FoundID)
	assert.Contains(t, out[0].Explanation, model.FieldTitle)

	_, err = r.Pairs(context.Background(), pool, model.FieldWeights{}, 60)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestWorkersDoNotChangeResults(t *testing.T) {
	titles := []string{"sac noir", "sac bleu", "téléphone", "gsm noir", "clé usb", "badge vip", "sac à dos"}
	pool := make([]model.Candidate, 0, 40)
	for i := 0; i < 40; i++ {
		pool = append(pool, found(int64(i+1), titles[i%len(titles)]))
	}
	q := lost(100, "sac noir")
	opts := model.DefaultRankOptions()
	opts.Limit = 40

	seq, _, err := newRanker(nil, 1).Rank(context.Background(), q, pool, opts)
	require.NoError(t, err)
	par, _, err := newRanker(nil, 8).Rank(context.Background(), q, pool, opts)
	require.NoError(t, err)
	assert.Equal(t, seq, par)
}
