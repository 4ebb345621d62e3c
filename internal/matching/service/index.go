package service

import (
	"strings"

	"match-service/internal/matching/model"
)

// categoryIndex groups pool positions of one disposition by category, in pool order.
type categoryIndex struct {
	disposition model.Disposition
	byCategory  map[int64][]int
}

func buildCategoryIndex(pool []model.Candidate, d model.Disposition) *categoryIndex {
	idx := &categoryIndex{
		disposition: d,
		byCategory:  make(map[int64][]int),
	}
	for i, c := range pool {
		if c.Disposition != d {
			continue
		}
		idx.byCategory[c.CategoryID] = append(idx.byCategory[c.CategoryID], i)
	}
	return idx
}

func (idx *categoryIndex) positions(categoryID int64) []int {
	return idx.byCategory[categoryID]
}

func splitTokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
