// ═══════════════════════════════════════════════════════════════════════════════
// RANKER: drives the DAAT loop for a batch of queries and keeps the top N
// ═══════════════════════════════════════════════════════════════════════════════
// For each (qid, query string): wrap the string in the model's default
// operator, parse/optimize it into a QOT, initialize it against the index,
// then repeatedly pull (docid, score) pairs from the DAAT loop into a
// bounded min-heap of size N (default 1000). The heap's root is always the
// current worst kept result — lowest score, ties broken toward the larger
// external id — so a new result only needs to beat the root to earn a slot.
// ═══════════════════════════════════════════════════════════════════════════════
package qryeval

import (
	"container/heap"
	"errors"
	"log/slog"
	"sort"
)

// RankedResult is one line of a query's output: an external document id and
// its score under the active retrieval model.
type RankedResult struct {
	ExternalID string
	Score      float64
}

// Ranker evaluates a batch of queries under one retrieval model.
type Ranker struct {
	Model      RetrievalModel
	MaxResults int // default 1000
}

// NewRanker returns a Ranker with the spec's default result cap.
func NewRanker(model RetrievalModel) *Ranker {
	return &Ranker{Model: model, MaxResults: 1000}
}

// Run evaluates every query against eng and returns each query id's ranked
// results, sorted by (-score, external_id ascending). A query that fails to
// parse, or whose external-id lookup fails, is reported in errs and the
// batch goes on. An IndexAccessError while initializing a query is also
// recorded in errs, but it stops the batch: Run returns at once, and the
// queries not yet evaluated appear in neither map.
func (rk *Ranker) Run(eng *Engine, queries map[string]string) (results map[string][]RankedResult, errs map[string]error) {
	results = make(map[string][]RankedResult, len(queries))
	errs = make(map[string]error)

	maxResults := rk.MaxResults
	if maxResults <= 0 {
		maxResults = 1000
	}

	for qid, raw := range queries {
		ranked, err := rk.runOne(eng, qid, raw, maxResults)
		if err != nil {
			errs[qid] = err
			var iae *IndexAccessError
			if errors.As(err, &iae) && iae.Op != "external_id" {
				slog.Error("index access failed during initialization; aborting batch", slog.String("qid", qid), slog.String("err", err.Error()))
				return results, errs
			}
			continue
		}
		results[qid] = ranked
	}
	return results, errs
}

func (rk *Ranker) runOne(eng *Engine, qid, raw string, maxResults int) ([]RankedResult, error) {
	// Unconditional wrapping: even a query already written as "#and(...)"
	// gets wrapped again. This matches the Ranker's contract, not a
	// convenience for bare bag-of-words strings.
	wrapped := rk.Model.DefaultOperator() + "(" + raw + ")"
	slog.Info("ranking query", slog.String("qid", qid), slog.String("query", raw))

	q, err := ParseQuery(wrapped)
	if err != nil {
		return nil, err
	}
	slog.Debug("parsed query", slog.String("qid", qid), slog.String("tree", q.DisplayName()))

	if err := q.Initialize(eng, rk.Model); err != nil {
		return nil, err
	}

	h := newResultHeap(maxResults)
	for q.HasMatch(rk.Model) {
		docID := q.GetMatch()
		score := q.GetScore(rk.Model)
		externalID, err := eng.ExternalID(docID)
		if err != nil {
			return nil, &IndexAccessError{Op: "external_id", Err: err}
		}
		h.add(externalID, score)
		q.AdvancePast(docID)
	}

	return h.ranking(), nil
}

// ───────────────────────────── bounded min-heap ─────────────────────────────

// heapItem is a single kept (score, externalID) pair. The heap's ordering
// makes the worst kept result the one removed first: lowest score, and among
// equal scores, the larger external id (so it sorts as "less" and sits at
// the root, ready to be evicted).
type heapItem struct {
	score      float64
	externalID string
}

func (a heapItem) worseThan(b heapItem) bool {
	return a.score < b.score || (a.score == b.score && a.externalID > b.externalID)
}

type itemHeap []heapItem

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].worseThan(h[j]) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type resultHeap struct {
	maxSize int
	items   itemHeap
}

func newResultHeap(maxSize int) *resultHeap {
	return &resultHeap{maxSize: maxSize}
}

// add inserts (externalID, score) if the heap has room, or if it beats the
// current worst kept result (root). Ties favor the smaller external id,
// matching the Ranker's documented tie-break rule.
func (h *resultHeap) add(externalID string, score float64) {
	candidate := heapItem{score: score, externalID: externalID}

	if len(h.items) < h.maxSize {
		heap.Push(&h.items, candidate)
		return
	}

	root := h.items[0]
	if candidate.score > root.score || (candidate.score == root.score && candidate.externalID < root.externalID) {
		h.items[0] = candidate
		heap.Fix(&h.items, 0)
	}
}

// ranking returns the kept results sorted descending by score, ascending by
// external id on ties.
func (h *resultHeap) ranking() []RankedResult {
	out := make([]RankedResult, len(h.items))
	for i, it := range h.items {
		out[i] = RankedResult{ExternalID: it.externalID, Score: it.score}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out
}
