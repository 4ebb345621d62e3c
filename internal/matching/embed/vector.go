package embed

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"math"
	"sync"
)

// near-zero vectors have no direction, treat them as dissimilar
const minNorm = 1e-10

// Cosine returns the cosine similarity of two equally sized vectors,
// clamped to [0,1].
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	na, nb = math.Sqrt(na), math.Sqrt(nb)
	if na < minNorm || nb < minNorm {
		return 0
	}
	return clamp01(dot / (na * nb))
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// vectorCache keeps embeddings for the process lifetime. When full it is
// emptied rather than tracking recency; festival pools are small.
type vectorCache struct {
	mu  sync.RWMutex
	m   map[string][]float32
	max int
}

func newVectorCache(max int) *vectorCache {
	return &vectorCache{m: make(map[string][]float32), max: max}
}

func (c *vectorCache) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *vectorCache) put(key string, v []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.m) >= c.max {
		c.m = make(map[string][]float32)
	}
	c.m[key] = cloneVector(v)
}

func cacheKey(model, kind, value string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, model)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, kind)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, value)
	return hex.EncodeToString(h.Sum(nil))
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
