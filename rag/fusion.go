package rag

import "sort"

// rrfK dampens the contribution of lower ranks in reciprocal rank
// fusion. 60 is the standard constant from the RRF literature.
const rrfK = 60

// fuse merges the semantic and keyword result lists by reciprocal rank
// fusion. Each list contributes 1/(rrfK+rank+1) per result; a chunk
// found by both accumulates both contributions under its shared id.
// The payload of a merged id comes from whichever list produced it
// first. Ties keep first-seen order.
func fuse(lists ...[]RetrievedChunk) []RetrievedChunk {
	byID := make(map[string]*RetrievedChunk)
	var order []string

	for _, list := range lists {
		for rank, c := range list {
			contribution := 1.0 / float64(rrfK+rank+1)
			if existing, ok := byID[c.ID]; ok {
				existing.Score += contribution
				continue
			}
			merged := c
			merged.Score = contribution
			byID[c.ID] = &merged
			order = append(order, c.ID)
		}
	}

	fused := make([]RetrievedChunk, 0, len(order))
	for _, id := range order {
		fused = append(fused, *byID[id])
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	return fused
}
