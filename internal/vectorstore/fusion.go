package vectorstore

import "sort"

// RRFK is the reciprocal-rank-fusion constant: score =
// sum(1 / (k + rank)) across the ranked lists a chunk appears in.
const RRFK = 100

// RankedList is one ranked source feeding fusion (e.g. dense cosine hits or
// BM25 sparse hits), ordered best-first.
type RankedList []Chunk

// FuseRRF combines ranked lists with reciprocal rank fusion and returns the
// fused result sorted by descending score. Ranks within each list are
// 1-based; a chunk absent from a list contributes nothing from it.
func FuseRRF(lists ...RankedList) []SearchResult {
	scores := make(map[string]float64)
	chunks := make(map[string]Chunk)

	for _, list := range lists {
		for i, c := range list {
			rank := i + 1
			scores[c.ID] += 1.0 / float64(RRFK+rank)
			chunks[c.ID] = c
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, SearchResult{Chunk: chunks[id], Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	return results
}
