package qryeval

import "fmt"

// Posting is one document's occurrence record for a (field, term) pair: the
// document's internal id, how many times the term occurs (tf), and the
// ascending list of positions it occurs at. tf always equals len(Positions).
type Posting struct {
	DocID     int
	TF        int
	Positions []int
}

// PostingList is a materialized, ordered inverted list: postings in strictly
// increasing DocID order, produced once by a leaf (IOP) operator and then
// immutable for the lifetime of the query. DF and CTF are running totals kept
// in lockstep with Append so callers never need to recompute them.
type PostingList struct {
	Postings []Posting
	DF       int
	CTF      int64
}

// NewPostingList returns an empty PostingList ready for incremental Append.
func NewPostingList() *PostingList {
	return &PostingList{}
}

// Append adds a posting to the end of the list. It fails if docID is not
// strictly greater than the previous posting's docid — the list's ordering
// invariant (spec §3) is enforced here rather than trusted to callers.
func (pl *PostingList) Append(docID int, positions []int) error {
	if pl.DF > 0 && docID <= pl.Postings[pl.DF-1].DocID {
		return fmt.Errorf("%w: append docid %d after %d", ErrProtocolViolation, docID, pl.Postings[pl.DF-1].DocID)
	}
	pl.Postings = append(pl.Postings, Posting{
		DocID:     docID,
		TF:        len(positions),
		Positions: positions,
	})
	pl.DF++
	pl.CTF += int64(len(positions))
	return nil
}

// at returns the posting at cursor i. Callers are expected to bounds-check
// via DF before calling.
func (pl *PostingList) at(i int) Posting {
	return pl.Postings[i]
}

// findFirstGreater returns the index of the first posting whose DocID is
// strictly greater than docID, or DF if none exists. Used by advance_past.
func (pl *PostingList) findFirstGreater(from, docID int) int {
	i := from
	for i < pl.DF && pl.Postings[i].DocID <= docID {
		i++
	}
	return i
}

// findFirstGreaterEqual returns the index of the first posting whose DocID is
// greater than or equal to docID, or DF if none exists. Used by advance_to.
func (pl *PostingList) findFirstGreaterEqual(from, docID int) int {
	i := from
	for i < pl.DF && pl.Postings[i].DocID < docID {
		i++
	}
	return i
}
