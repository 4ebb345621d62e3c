package service

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"match-service/internal/matching/model"
	"match-service/internal/matching/textnorm"
	"match-service/internal/metrics"
)

// ImageScorer returns a text/photo similarity in [0..1], 0 when unknown.
type ImageScorer interface {
	TextImageSimilarity(ctx context.Context, text, photoRef string) float64
}

type noImages struct{}

func (noImages) TextImageSimilarity(context.Context, string, string) float64 { return 0 }

// Ranker is the single scoring path behind suggestions, duplicate checks,
// the explain endpoint and the pairs report.
type Ranker struct {
	norm    *textnorm.Normalizer
	fields  *FieldScorer
	images  ImageScorer
	logger  zerolog.Logger
	workers int
}

// NewRanker wires the ranker. images may be nil (text only); workers <= 1 scores sequentially.
func NewRanker(norm *textnorm.Normalizer, images ImageScorer, logger zerolog.Logger, workers int) *Ranker {
	if images == nil {
		images = noImages{}
	}
	return &Ranker{
		norm:    norm,
		fields:  NewFieldScorer(norm),
		images:  images,
		logger:  logger.With().Str("component", "ranker").Logger(),
		workers: workers,
	}
}

// Fields exposes the field scorer sharing the ranker's normalizer.
func (r *Ranker) Fields() *FieldScorer { return r.fields }

type pairScore struct {
	text     float64
	image    float64
	bonus    float64
	combined float64
}

// Rank scores a pool already filtered to the query's category and the opposite
// disposition. The result is sorted by combined score (stable) and cut to
// opts.Limit; hasMore reports whether anything was cut.
func (r *Ranker) Rank(ctx context.Context, query model.Record, pool []model.Candidate, opts model.RankOptions) ([]model.ScoredSuggestion, bool, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		metrics.ObserveMatch("rank", "invalid", time.Since(start))
		return nil, false, err
	}

	out := make([]model.ScoredSuggestion, len(pool))
	r.forEach(len(pool), func(i int) {
		c := pool[i]
		ps := r.scorePair(ctx, query, c, opts, true)
		out[i] = model.ScoredSuggestion{
			CandidateID:   c.ID,
			Title:         c.Title,
			CombinedScore: ps.combined,
			TextScore:     ps.text,
			ImageScore:    ps.image,
			Bonus:         ps.bonus,
			CategoryName:  c.CategoryName,
			PrimaryPhoto:  c.PrimaryPhoto(),
			LocationLabel: c.LocationLabel(),
			ReportedAt:    c.ReportedAt,
		}
	})

	sort.SliceStable(out, func(i, j int) bool { return out[i].CombinedScore > out[j].CombinedScore })
	hasMore := len(out) > opts.Limit
	if hasMore {
		out = out[:opts.Limit]
	}

	metrics.AddCandidatesScored("rank", len(pool))
	metrics.ObserveMatch("rank", "ok", time.Since(start))
	r.logger.Debug().
		Int64("query_id", query.ID).
		Int("pool", len(pool)).
		Int("returned", len(out)).
		Bool("has_more", hasMore).
		Dur("elapsed", time.Since(start)).
		Msg("rank done")
	return out, hasMore, nil
}

// FindSimilar flags probable duplicates of a title being registered: same
// category, either disposition, normalized title score >= threshold.
// No image signal, no bonus, no limit.
func (r *Ranker) FindSimilar(ctx context.Context, title string, categoryID int64, pool []model.Candidate, threshold float64) ([]model.ScoredSuggestion, error) {
	start := time.Now()
	if err := model.ValidateThreshold(threshold); err != nil {
		metrics.ObserveMatch("similar", "invalid", time.Since(start))
		return nil, err
	}
	q := r.norm.Normalize(title)

	scored := make([]float64, len(pool))
	r.forEach(len(pool), func(i int) {
		if pool[i].CategoryID != categoryID {
			scored[i] = -1
			return
		}
		scored[i] = TokenSortRatio(q, r.norm.Normalize(pool[i].Title))
	})

	out := make([]model.ScoredSuggestion, 0)
	for i, s := range scored {
		if s < 0 || s < threshold {
			continue
		}
		c := pool[i]
		out = append(out, model.ScoredSuggestion{
			CandidateID:   c.ID,
			Title:         c.Title,
			CombinedScore: round2(s),
			TextScore:     round2(s),
			CategoryName:  c.CategoryName,
			PrimaryPhoto:  c.PrimaryPhoto(),
			LocationLabel: c.LocationLabel(),
			ReportedAt:    c.ReportedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CombinedScore > out[j].CombinedScore })

	metrics.AddCandidatesScored("similar", len(pool))
	metrics.ObserveMatch("similar", "ok", time.Since(start))
	return out, nil
}

// Explain returns the full breakdown for one pair. The category bonus is only
// granted when both records share a category.
func (r *Ranker) Explain(ctx context.Context, item, candidate model.Record, opts model.RankOptions) (model.PairReport, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		metrics.ObserveMatch("explain", "invalid", time.Since(start))
		return model.PairReport{}, err
	}
	ps := r.scorePair(ctx, item, candidate, opts, item.CategoryID == candidate.CategoryID)
	rep := model.PairReport{
		ItemID:          item.ID,
		CandidateID:     candidate.ID,
		TextScore:       ps.text,
		Bonus:           ps.bonus,
		CombinedScore:   ps.combined,
		ImageSimilarity: ps.image,
		Weights:         model.ScoreWeights{Text: opts.TextWeight, Image: opts.ImageWeight},
		Details:         r.fields.explain(item, candidate, opts.Weights),
	}
	metrics.ObserveMatch("explain", "ok", time.Since(start))
	return rep, nil
}

// Pairs lists every lost/found pair of the same category whose text score
// reaches threshold, best first. Ties keep lost order, then found order.
func (r *Ranker) Pairs(ctx context.Context, pool []model.Candidate, w model.FieldWeights, threshold float64) ([]model.CandidatePair, error) {
	start := time.Now()
	if err := w.Validate(); err != nil {
		metrics.ObserveMatch("pairs", "invalid", time.Since(start))
		return nil, err
	}
	if err := model.ValidateThreshold(threshold); err != nil {
		metrics.ObserveMatch("pairs", "invalid", time.Since(start))
		return nil, err
	}

	found := buildCategoryIndex(pool, model.Found)
	type job struct{ lost, found int }
	jobs := make([]job, 0)
	for i, l := range pool {
		if l.Disposition != model.Lost {
			continue
		}
		for _, j := range found.positions(l.CategoryID) {
			jobs = append(jobs, job{lost: i, found: j})
		}
	}

	scores := make([]float64, len(jobs))
	r.forEach(len(jobs), func(k int) {
		scores[k] = r.fields.score(pool[jobs[k].lost], pool[jobs[k].found], w)
	})

	out := make([]model.CandidatePair, 0)
	for k, s := range scores {
		if s < threshold {
			continue
		}
		l, f := pool[jobs[k].lost], pool[jobs[k].found]
		out = append(out, model.CandidatePair{
			LostID:      l.ID,
			FoundID:     f.ID,
			LostTitle:   l.Title,
			FoundTitle:  f.Title,
			Score:       s,
			Explanation: r.fields.explain(l, f, w),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	metrics.AddCandidatesScored("pairs", len(jobs))
	metrics.ObserveMatch("pairs", "ok", time.Since(start))
	r.logger.Debug().
		Int("pool", len(pool)).
		Int("compared", len(jobs)).
		Int("pairs", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("pairs done")
	return out, nil
}

// scorePair is the one combined-score computation:
// clamp(round(tw*text + iw*image + bonus, 2), 0, 100).
func (r *Ranker) scorePair(ctx context.Context, q, c model.Record, opts model.RankOptions, sameCategory bool) pairScore {
	ps := pairScore{text: r.fields.score(q, c, opts.Weights)}
	if sameCategory {
		ps.bonus += opts.CategoryBonus
	}
	ps.bonus += temporalAdjustment(q.ReportedAt, c.ReportedAt, opts.Temporal)
	ps.image = r.imageScore(ctx, q, c)

	combined := opts.TextWeight*ps.text + opts.ImageWeight*ps.image + ps.bonus
	ps.combined = clamp(round2(combined), 0, 100)
	return ps
}

// imageScore compares the LOST side's text with the FOUND side's primary
// photo, on a 0..100 scale.
func (r *Ranker) imageScore(ctx context.Context, q, c model.Record) float64 {
	var text, photo string
	switch {
	case q.Disposition == model.Lost && c.Disposition == model.Found:
		text, photo = q.EmbeddingText(), c.PrimaryPhoto()
	case q.Disposition == model.Found && c.Disposition == model.Lost:
		text, photo = c.EmbeddingText(), q.PrimaryPhoto()
	default:
		return 0
	}
	if photo == "" {
		return 0
	}
	sim := r.images.TextImageSimilarity(ctx, text, photo)
	if math.IsNaN(sim) {
		return 0
	}
	return round2(100 * clamp(sim, 0, 1))
}

// temporalAdjustment: +NearBonus when reported within NearDays of each other,
// -FarPenalty beyond FarDays, nothing when either date is unknown.
func temporalAdjustment(a, b time.Time, rules model.TemporalRules) float64 {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	days := math.Abs(a.Sub(b).Seconds()) / 86400.0
	switch {
	case days <= rules.NearDays:
		return rules.NearBonus
	case days > rules.FarDays:
		return -rules.FarPenalty
	default:
		return 0
	}
}

// forEach runs fn for 0..n-1, on r.workers goroutines when configured.
// Every index writes its own slot, so ordering does not depend on scheduling.
func (r *Ranker) forEach(n int, fn func(i int)) {
	workers := r.workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	next := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
}
