// Package qryeval implements a document-at-a-time (DAAT) structured query
// engine over a pre-built inverted index.
//
// ═══════════════════════════════════════════════════════════════════════════════
// THE QUERY OPERATOR TREE (QOT)
// ═══════════════════════════════════════════════════════════════════════════════
// A parsed query is a tree of operators in two families:
//
//   - IOP (inverted-list operators): TERM, SYN, NEAR/k, WINDOW/k. After
//     Initialize, each IOP owns a fully materialized PostingList and exposes
//     a document cursor plus, within the current document, a location cursor.
//
//   - SOP (score operators): SCORE, AND, OR, SUM, WAND, WSUM. These iterate
//     lazily — the "current document" is computed on demand by HasMatch and
//     cached until the next advance — and compute a score at each match.
//
// Every node, regardless of family, speaks the same protocol:
// Initialize, HasMatch/GetMatch, AdvancePast/AdvanceTo, GetScore/
// GetDefaultScore. A caller driving the DAAT loop never needs to know which
// family or which concrete operator it is talking to:
//
//	q.Initialize(engine, model)
//	for q.HasMatch(model) {
//	    docid := q.GetMatch()
//	    score := q.GetScore(model)
//	    q.AdvancePast(docid)
//	}
//
// Monotonicity invariant: from the moment Initialize returns, the sequence of
// docids returned by successive (HasMatch; GetMatch; AdvancePast) calls is
// strictly increasing. Cache-coherence invariant: GetMatch and GetScore are
// only legal between a HasMatch() == true and the next Advance* call.
// ═══════════════════════════════════════════════════════════════════════════════
package qryeval

import (
	"math"
	"sort"
)

// QueryNode is the common interface every operator in the tree implements —
// the parser returns exactly this one sum type regardless of which operator
// was parsed.
type QueryNode interface {
	Initialize(eng *Engine, model RetrievalModel) error
	HasMatch(model RetrievalModel) bool
	GetMatch() int
	AdvancePast(docID int)
	AdvanceTo(docID int)
	GetScore(model RetrievalModel) float64
	GetDefaultScore(model RetrievalModel, docID int) float64
	DisplayName() string
}

// iopNode is the subset of QueryNode that inverted-list operators add: access
// to the current posting, corpus statistics, and the location cursor within
// the current document. Only an iopNode may be a child of another IOP node,
// and only an iopNode may be the single argument to a SCORE node.
type iopNode interface {
	QueryNode
	Field() string
	DF() int
	CTF() int64
	CurrentPosting() Posting
	LocHasMatch() bool
	LocGetMatch() int
	LocAdvance()
}

// iopCursor is the cursor behavior shared by every IOP over its materialized
// PostingList: a document-id cursor (index into the PL) and, within the
// current document, a location cursor (index into its positions).
type iopCursor struct {
	pl        *PostingList
	docCursor int
	locCursor int
}

func (c *iopCursor) hasMatch() bool { return c.pl != nil && c.docCursor < c.pl.DF }

func (c *iopCursor) getMatch() int {
	if !c.hasMatch() {
		protocolViolation("get_match called without a cached match")
	}
	return c.pl.Postings[c.docCursor].DocID
}

func (c *iopCursor) advancePast(docID int) {
	c.docCursor = c.pl.findFirstGreater(c.docCursor, docID)
	c.locCursor = 0
}

func (c *iopCursor) advanceTo(docID int) {
	c.docCursor = c.pl.findFirstGreaterEqual(c.docCursor, docID)
	c.locCursor = 0
}

func (c *iopCursor) currentPosting() Posting {
	if !c.hasMatch() {
		protocolViolation("current posting requested without a cached match")
	}
	return c.pl.Postings[c.docCursor]
}

func (c *iopCursor) df() int    { return c.pl.DF }
func (c *iopCursor) ctf() int64 { return c.pl.CTF }

func (c *iopCursor) locHasMatch() bool {
	return c.hasMatch() && c.locCursor < len(c.pl.Postings[c.docCursor].Positions)
}

func (c *iopCursor) locGetMatch() int {
	return c.pl.Postings[c.docCursor].Positions[c.locCursor]
}

func (c *iopCursor) locAdvance() { c.locCursor++ }

// iopBase is embedded by every IOP node (TERM, SYN, NEAR, WINDOW). It
// implements all of QueryNode and iopNode except Initialize, which each
// concrete operator supplies to build its own PostingList.
type iopBase struct {
	name   string
	field  string
	cursor iopCursor
}

func (b *iopBase) HasMatch(RetrievalModel) bool { return b.cursor.hasMatch() }
func (b *iopBase) GetMatch() int                { return b.cursor.getMatch() }
func (b *iopBase) AdvancePast(docID int)        { b.cursor.advancePast(docID) }
func (b *iopBase) AdvanceTo(docID int)          { b.cursor.advanceTo(docID) }
func (b *iopBase) DisplayName() string          { return b.name }
func (b *iopBase) Field() string                { return b.field }
func (b *iopBase) DF() int                      { return b.cursor.df() }
func (b *iopBase) CTF() int64                   { return b.cursor.ctf() }
func (b *iopBase) CurrentPosting() Posting      { return b.cursor.currentPosting() }
func (b *iopBase) LocHasMatch() bool            { return b.cursor.locHasMatch() }
func (b *iopBase) LocGetMatch() int             { return b.cursor.locGetMatch() }
func (b *iopBase) LocAdvance()                  { b.cursor.locAdvance() }

// GetScore/GetDefaultScore are never legal to call directly on an IOP — the
// parser's append rules guarantee every IOP sits under a SCORE node that
// computes the score from the IOP's posting instead.
func (b *iopBase) GetScore(RetrievalModel) float64 {
	protocolViolation("GetScore called directly on IOP %s", b.name)
	return 0
}

func (b *iopBase) GetDefaultScore(RetrievalModel, int) float64 {
	protocolViolation("GetDefaultScore called directly on IOP %s", b.name)
	return 0
}

// ───────────────────────────── IOP: TERM ─────────────────────────────

// termNode is a leaf: its PostingList comes straight from the index.
type termNode struct {
	iopBase
	term string
}

func newTermNode(field, term string) *termNode {
	n := &termNode{term: term}
	n.field = field
	n.name = "TERM"
	return n
}

func (n *termNode) Initialize(eng *Engine, model RetrievalModel) error {
	pl, err := eng.Postings(n.field, n.term)
	if err != nil {
		return &IndexAccessError{Op: "postings(" + n.field + "," + n.term + ")", Err: err}
	}
	n.cursor = iopCursor{pl: pl}
	return nil
}

// ───────────────────────────── IOP: SYN ─────────────────────────────

// synNode is the union of its arguments' inverted lists: a document matches
// if any child matches it, and the emitted positions are the sorted,
// deduplicated union of every matching child's positions.
type synNode struct {
	iopBase
	children []iopNode
}

func newSynNode(name string) *synNode {
	return &synNode{iopBase: iopBase{name: name}}
}

func (n *synNode) Initialize(eng *Engine, model RetrievalModel) error {
	if err := initializeChildren(n.children, eng, model); err != nil {
		return err
	}
	n.field = childrenField(n.children)

	qnodes := iopNodesToQueryNodes(n.children)
	pl := NewPostingList()

	for {
		minDoc, ok := hasMatchMin(qnodes, nil)
		if !ok {
			break
		}
		seen := make(map[int]struct{})
		var positions []int
		for _, c := range n.children {
			if c.HasMatch(nil) && c.GetMatch() == minDoc {
				for _, p := range c.CurrentPosting().Positions {
					if _, dup := seen[p]; !dup {
						seen[p] = struct{}{}
						positions = append(positions, p)
					}
				}
			}
		}
		sort.Ints(positions)
		if err := pl.Append(minDoc, positions); err != nil {
			return err
		}
		for _, c := range n.children {
			if c.HasMatch(nil) && c.GetMatch() == minDoc {
				c.AdvancePast(minDoc)
			}
		}
	}

	n.cursor = iopCursor{pl: pl}
	return nil
}

// ───────────────────────────── IOP: NEAR/k ─────────────────────────────

// nearNode requires all arguments to match the same document with positions
// occurring in argument order, each successive pair within k of the previous
// (inclusive). The emitted position is the rightmost position of each match.
type nearNode struct {
	iopBase
	children []iopNode
	k        int
}

func newNearNode(name string, k int) *nearNode {
	return &nearNode{iopBase: iopBase{name: name}, k: k}
}

func (n *nearNode) Initialize(eng *Engine, model RetrievalModel) error {
	if err := initializeChildren(n.children, eng, model); err != nil {
		return err
	}
	n.field = childrenField(n.children)

	qnodes := iopNodesToQueryNodes(n.children)
	pl := NewPostingList()

	for len(n.children) > 0 {
		docid, ok := hasMatchAll(qnodes, nil)
		if !ok {
			break
		}

		var positions []int
		i := 0
		for i < len(n.children)-1 {
			exhausted := false
			for _, c := range n.children {
				if !c.LocHasMatch() {
					exhausted = true
					break
				}
			}
			if exhausted {
				break
			}

			qi, qip1 := n.children[i], n.children[i+1]
			for qip1.LocGetMatch() < qi.LocGetMatch() {
				qip1.LocAdvance()
				if !qip1.LocHasMatch() {
					exhausted = true
					break
				}
			}
			if exhausted {
				break
			}

			if qi.LocGetMatch()+n.k >= qip1.LocGetMatch() {
				if i+1 != len(n.children)-1 {
					i++
				} else {
					positions = append(positions, qip1.LocGetMatch())
					for _, c := range n.children {
						c.LocAdvance()
					}
					i = 0
				}
			} else {
				qi.LocAdvance()
				if i > 0 {
					i--
				}
			}
		}

		if len(positions) > 0 {
			positions = sortUniqueInts(positions)
			if err := pl.Append(docid, positions); err != nil {
				return err
			}
		}
		for _, c := range n.children {
			c.AdvancePast(docid)
		}
	}

	n.cursor = iopCursor{pl: pl}
	return nil
}

// ───────────────────────────── IOP: WINDOW/k ─────────────────────────────

// windowNode requires all arguments in the same document with at least one
// position selection per argument whose max-minus-min span is strictly less
// than k (order does not matter, unlike NEAR).
type windowNode struct {
	iopBase
	children []iopNode
	k        int
}

func newWindowNode(name string, k int) *windowNode {
	return &windowNode{iopBase: iopBase{name: name}, k: k}
}

func (n *windowNode) Initialize(eng *Engine, model RetrievalModel) error {
	if err := initializeChildren(n.children, eng, model); err != nil {
		return err
	}
	n.field = childrenField(n.children)

	qnodes := iopNodesToQueryNodes(n.children)
	pl := NewPostingList()

	for len(n.children) > 0 {
		docid, ok := hasMatchAll(qnodes, nil)
		if !ok {
			break
		}

		var positions []int
		for {
			minPos, maxPos := math.MaxInt, math.MinInt
			minIdx, maxIdx := 0, 0
			done := false
			for i, c := range n.children {
				if !c.LocHasMatch() {
					done = true
					break
				}
				pos := c.LocGetMatch()
				if pos < minPos {
					minPos, minIdx = pos, i
				}
				if pos > maxPos {
					maxPos, maxIdx = pos, i
				}
			}
			if done {
				break
			}

			if maxPos-minPos < n.k {
				positions = append(positions, n.children[maxIdx].LocGetMatch())
				for _, c := range n.children {
					c.LocAdvance()
				}
			} else {
				n.children[minIdx].LocAdvance()
			}
		}

		if len(positions) > 0 {
			positions = sortUniqueInts(positions)
			if err := pl.Append(docid, positions); err != nil {
				return err
			}
		}
		for _, c := range n.children {
			c.AdvancePast(docid)
		}
	}

	n.cursor = iopCursor{pl: pl}
	return nil
}

// ───────────────────────────── SOP: SCORE ─────────────────────────────

// scoreNode wraps exactly one IOP and converts its posting into a score under
// whichever retrieval model is active.
type scoreNode struct {
	name     string
	child    iopNode
	eng      *Engine
	cur      int
	curValid bool
}

func newScoreNode(name string) *scoreNode { return &scoreNode{name: name} }

func (n *scoreNode) Initialize(eng *Engine, model RetrievalModel) error {
	n.eng = eng
	n.curValid = false
	return n.child.Initialize(eng, model)
}

func (n *scoreNode) HasMatch(model RetrievalModel) bool {
	if n.child.HasMatch(model) {
		n.cur, n.curValid = n.child.GetMatch(), true
		return true
	}
	n.curValid = false
	return false
}

func (n *scoreNode) GetMatch() int {
	if !n.curValid {
		protocolViolation("GetMatch on SCORE without cached match")
	}
	return n.cur
}

func (n *scoreNode) AdvancePast(docID int) { n.child.AdvancePast(docID); n.curValid = false }
func (n *scoreNode) AdvanceTo(docID int)   { n.child.AdvanceTo(docID); n.curValid = false }
func (n *scoreNode) DisplayName() string   { return n.name }

func (n *scoreNode) GetScore(model RetrievalModel) float64 {
	switch m := model.(type) {
	case UnrankedBoolean:
		if !n.child.HasMatch(model) {
			return 0
		}
		return 1.0
	case RankedBoolean:
		if !n.child.HasMatch(model) {
			return 0
		}
		return float64(n.child.CurrentPosting().TF)
	case BM25:
		return n.scoreBM25(m)
	case Indri:
		return n.scoreIndri(m)
	default:
		panic(&ModelMismatchError{Operator: "SCORE", Model: model.Name()})
	}
}

func (n *scoreNode) scoreBM25(m BM25) float64 {
	if !n.child.HasMatch(nil) {
		return 0
	}
	N := float64(n.eng.NumDocs())
	df := float64(n.child.DF())
	rsjWeight := math.Log((N + 1) / (df + 0.5))

	posting := n.child.CurrentPosting()
	tf := float64(posting.TF)
	docLen := float64(n.eng.FieldLength(n.child.Field(), n.child.GetMatch()))
	avgLen := n.eng.AvgFieldLength(n.child.Field())
	tfWeight := tf / (tf + m.K1*((1-m.B)+m.B*(docLen/avgLen)))

	const qtf = 1.0
	userWeight := (m.K3 + 1) * qtf / (m.K3 + qtf)

	return rsjWeight * tfWeight * userWeight
}

func (n *scoreNode) scoreIndri(m Indri) float64 {
	if !n.child.HasMatch(nil) {
		return 0
	}
	field := n.child.Field()
	lenC := n.eng.SumFieldLength(field)
	pMLE := float64(n.child.CTF()) / lenC

	tf := float64(n.child.CurrentPosting().TF)
	docid := n.child.GetMatch()
	lenD := float64(n.eng.FieldLength(field, docid))
	if lenD == 0 && m.Mu == 0 {
		return 0
	}
	return (1-m.Lambda)*((tf+m.Mu*pMLE)/(lenD+m.Mu)) + m.Lambda*pMLE
}

func (n *scoreNode) GetDefaultScore(model RetrievalModel, docID int) float64 {
	m, ok := isIndri(model)
	if !ok {
		panic(&ModelMismatchError{Operator: "SCORE.getDefaultScore", Model: model.Name()})
	}
	field := n.child.Field()
	ctf := float64(n.child.CTF())
	if ctf == 0 {
		ctf = 0.5
	}
	lenC := n.eng.SumFieldLength(field)
	pMLE := ctf / lenC
	lenD := float64(n.eng.FieldLength(field, docID))
	if lenD == 0 && m.Mu == 0 {
		return 0
	}
	return (1-m.Lambda)*((0+m.Mu*pMLE)/(lenD+m.Mu)) + m.Lambda*pMLE
}

// ───────────────────────────── SOP: AND ─────────────────────────────

// andNode is conjunctive (has_match_all) for Boolean/BM25 models, but
// disjunctive-with-default (has_match_min) for Indri, whose AND really means
// "combine every argument, substituting a default score for arguments that
// don't match this document".
type andNode struct {
	name     string
	children []QueryNode
	cur      int
	curValid bool
}

func newAndNode(name string) *andNode { return &andNode{name: name} }

func (n *andNode) Initialize(eng *Engine, model RetrievalModel) error {
	n.curValid = false
	return initializeAll(n.children, eng, model)
}

func (n *andNode) HasMatch(model RetrievalModel) bool {
	var d int
	var ok bool
	if _, indri := isIndri(model); indri {
		d, ok = hasMatchMin(n.children, model)
	} else {
		d, ok = hasMatchAll(n.children, model)
	}
	n.cur, n.curValid = d, ok
	return ok
}

func (n *andNode) GetMatch() int {
	if !n.curValid {
		protocolViolation("GetMatch on AND without cached match")
	}
	return n.cur
}

func (n *andNode) AdvancePast(docID int) { advancePastAll(n.children, docID); n.curValid = false }
func (n *andNode) AdvanceTo(docID int)   { advanceToAll(n.children, docID); n.curValid = false }
func (n *andNode) DisplayName() string   { return n.name }

func (n *andNode) GetScore(model RetrievalModel) float64 {
	if _, ok := isIndri(model); ok {
		return indriCombine(n.children, model, n.cur)
	}
	switch model.(type) {
	case UnrankedBoolean, RankedBoolean:
		return booleanMinScore(n.children, model)
	default:
		panic(&ModelMismatchError{Operator: "AND", Model: model.Name()})
	}
}

func (n *andNode) GetDefaultScore(model RetrievalModel, docID int) float64 {
	if _, ok := isIndri(model); ok {
		return indriCombineDefault(n.children, model, docID)
	}
	panic(&ModelMismatchError{Operator: "AND.getDefaultScore", Model: model.Name()})
}

// ───────────────────────────── SOP: OR ─────────────────────────────

// orNode matches if any argument matches (has_match_min); Boolean scoring
// takes the maximum of the matching children's scores.
type orNode struct {
	name     string
	children []QueryNode
	cur      int
	curValid bool
}

func newOrNode(name string) *orNode { return &orNode{name: name} }

func (n *orNode) Initialize(eng *Engine, model RetrievalModel) error {
	n.curValid = false
	return initializeAll(n.children, eng, model)
}

func (n *orNode) HasMatch(model RetrievalModel) bool {
	d, ok := hasMatchMin(n.children, model)
	n.cur, n.curValid = d, ok
	return ok
}

func (n *orNode) GetMatch() int {
	if !n.curValid {
		protocolViolation("GetMatch on OR without cached match")
	}
	return n.cur
}

func (n *orNode) AdvancePast(docID int) { advancePastAll(n.children, docID); n.curValid = false }
func (n *orNode) AdvanceTo(docID int)   { advanceToAll(n.children, docID); n.curValid = false }
func (n *orNode) DisplayName() string   { return n.name }

func (n *orNode) GetScore(model RetrievalModel) float64 {
	switch model.(type) {
	case UnrankedBoolean, RankedBoolean:
		max := math.Inf(-1)
		found := false
		for _, c := range n.children {
			if matchesCurrent(c, model, n.cur) {
				if s := c.GetScore(model); !found || s > max {
					max, found = s, true
				}
			}
		}
		return max
	default:
		panic(&ModelMismatchError{Operator: "OR", Model: model.Name()})
	}
}

func (n *orNode) GetDefaultScore(model RetrievalModel, docID int) float64 {
	panic(&ModelMismatchError{Operator: "OR.getDefaultScore", Model: model.Name()})
}

// ───────────────────────────── SOP: SUM (BM25 only) ─────────────────────────────

type sumNode struct {
	name     string
	children []QueryNode
	cur      int
	curValid bool
}

func newSumNode(name string) *sumNode { return &sumNode{name: name} }

func (n *sumNode) Initialize(eng *Engine, model RetrievalModel) error {
	n.curValid = false
	return initializeAll(n.children, eng, model)
}

func (n *sumNode) HasMatch(model RetrievalModel) bool {
	d, ok := hasMatchMin(n.children, model)
	n.cur, n.curValid = d, ok
	return ok
}

func (n *sumNode) GetMatch() int {
	if !n.curValid {
		protocolViolation("GetMatch on SUM without cached match")
	}
	return n.cur
}

func (n *sumNode) AdvancePast(docID int) { advancePastAll(n.children, docID); n.curValid = false }
func (n *sumNode) AdvanceTo(docID int)   { advanceToAll(n.children, docID); n.curValid = false }
func (n *sumNode) DisplayName() string   { return n.name }

func (n *sumNode) GetScore(model RetrievalModel) float64 {
	if _, ok := isBM25(model); !ok {
		panic(&ModelMismatchError{Operator: "SUM", Model: model.Name()})
	}
	sum := 0.0
	for _, c := range n.children {
		if matchesCurrent(c, model, n.cur) {
			sum += c.GetScore(model)
		}
	}
	return sum
}

func (n *sumNode) GetDefaultScore(model RetrievalModel, docID int) float64 {
	panic(&ModelMismatchError{Operator: "SUM.getDefaultScore", Model: model.Name()})
}

// ───────────────────────────── SOP: WAND / WSUM (Indri only) ─────────────────────────────

// weightedNode is the shape WAND and WSUM share: children paired in lockstep
// with their raw weights (divided by the weights' sum at scoring time), so
// deleting an argument during query
// optimization never leaves a weights array out of sync with its children.
type weightedNode struct {
	name     string
	children []QueryNode
	weights  []float64
	cur      int
	curValid bool
}

func (n *weightedNode) totalWeight() float64 {
	w := 0.0
	for _, x := range n.weights {
		w += x
	}
	return w
}

func (n *weightedNode) Initialize(eng *Engine, model RetrievalModel) error {
	n.curValid = false
	return initializeAll(n.children, eng, model)
}

func (n *weightedNode) HasMatch(model RetrievalModel) bool {
	d, ok := hasMatchMin(n.children, model)
	n.cur, n.curValid = d, ok
	return ok
}

func (n *weightedNode) GetMatch() int {
	if !n.curValid {
		protocolViolation("GetMatch on weighted operator without cached match")
	}
	return n.cur
}

func (n *weightedNode) AdvancePast(docID int) { advancePastAll(n.children, docID); n.curValid = false }
func (n *weightedNode) AdvanceTo(docID int)   { advanceToAll(n.children, docID); n.curValid = false }
func (n *weightedNode) DisplayName() string   { return n.name }

type wsumNode struct{ weightedNode }

func newWsumNode(name string) *wsumNode { return &wsumNode{weightedNode{name: name}} }

func (n *wsumNode) GetScore(model RetrievalModel) float64 {
	if _, ok := isIndri(model); !ok {
		panic(&ModelMismatchError{Operator: "WSUM", Model: model.Name()})
	}
	W := n.totalWeight()
	sum := 0.0
	for i, c := range n.children {
		var s float64
		if matchesCurrent(c, model, n.cur) {
			s = c.GetScore(model)
		} else {
			s = c.GetDefaultScore(model, n.cur)
		}
		sum += (n.weights[i] / W) * s
	}
	return sum
}

func (n *wsumNode) GetDefaultScore(model RetrievalModel, docID int) float64 {
	if _, ok := isIndri(model); !ok {
		panic(&ModelMismatchError{Operator: "WSUM.getDefaultScore", Model: model.Name()})
	}
	W := n.totalWeight()
	sum := 0.0
	for i, c := range n.children {
		sum += (n.weights[i] / W) * c.GetDefaultScore(model, docID)
	}
	return sum
}

type wandNode struct{ weightedNode }

func newWandNode(name string) *wandNode { return &wandNode{weightedNode{name: name}} }

func (n *wandNode) GetScore(model RetrievalModel) float64 {
	if _, ok := isIndri(model); !ok {
		panic(&ModelMismatchError{Operator: "WAND", Model: model.Name()})
	}
	W := n.totalWeight()
	prod := 1.0
	for i, c := range n.children {
		var s float64
		if matchesCurrent(c, model, n.cur) {
			s = c.GetScore(model)
		} else {
			s = c.GetDefaultScore(model, n.cur)
		}
		prod *= math.Pow(s, n.weights[i]/W)
	}
	return prod
}

func (n *wandNode) GetDefaultScore(model RetrievalModel, docID int) float64 {
	if _, ok := isIndri(model); !ok {
		panic(&ModelMismatchError{Operator: "WAND.getDefaultScore", Model: model.Name()})
	}
	W := n.totalWeight()
	prod := 1.0
	for i, c := range n.children {
		prod *= math.Pow(c.GetDefaultScore(model, docID), n.weights[i]/W)
	}
	return prod
}

// ───────────────────────────── shared helpers ─────────────────────────────

// hasMatchAll converges every child onto a common docid (conjunctive match),
// mutating child cursors in the process.
func hasMatchAll(children []QueryNode, model RetrievalModel) (int, bool) {
	if len(children) == 0 {
		return 0, false
	}
	for {
		if !children[0].HasMatch(model) {
			return 0, false
		}
		docid0 := children[0].GetMatch()
		matchFound := true
		for i := 1; i < len(children); i++ {
			qi := children[i]
			qi.AdvanceTo(docid0)
			if !qi.HasMatch(model) {
				return 0, false
			}
			docidI := qi.GetMatch()
			if docid0 != docidI {
				children[0].AdvanceTo(docidI)
				matchFound = false
				break
			}
		}
		if matchFound {
			return docid0, true
		}
	}
}

// hasMatchMin returns the smallest docid matched by any child. It advances
// no cursor itself, though a child's own HasMatch may (an AND child
// converging its arguments, for example).
func hasMatchMin(children []QueryNode, model RetrievalModel) (int, bool) {
	min := 0
	found := false
	for _, c := range children {
		if c.HasMatch(model) {
			d := c.GetMatch()
			if !found || d < min {
				min, found = d, true
			}
		}
	}
	return min, found
}

func matchesCurrent(c QueryNode, model RetrievalModel, cur int) bool {
	return c.HasMatch(model) && c.GetMatch() == cur
}

func booleanMinScore(children []QueryNode, model RetrievalModel) float64 {
	min := math.Inf(1)
	for _, c := range children {
		if s := c.GetScore(model); s < min {
			min = s
		}
	}
	return min
}

func indriCombine(children []QueryNode, model RetrievalModel, cur int) float64 {
	prod := 1.0
	for _, c := range children {
		if matchesCurrent(c, model, cur) {
			prod *= c.GetScore(model)
		} else {
			prod *= c.GetDefaultScore(model, cur)
		}
	}
	return math.Pow(prod, 1.0/float64(len(children)))
}

func indriCombineDefault(children []QueryNode, model RetrievalModel, docID int) float64 {
	prod := 1.0
	for _, c := range children {
		prod *= c.GetDefaultScore(model, docID)
	}
	return math.Pow(prod, 1.0/float64(len(children)))
}

func initializeAll(children []QueryNode, eng *Engine, model RetrievalModel) error {
	for _, c := range children {
		if err := c.Initialize(eng, model); err != nil {
			return err
		}
	}
	return nil
}

func initializeChildren(children []iopNode, eng *Engine, model RetrievalModel) error {
	for _, c := range children {
		if err := c.Initialize(eng, model); err != nil {
			return err
		}
	}
	return nil
}

func advancePastAll(children []QueryNode, docID int) {
	for _, c := range children {
		c.AdvancePast(docID)
	}
}

func advanceToAll(children []QueryNode, docID int) {
	for _, c := range children {
		c.AdvanceTo(docID)
	}
}

func iopNodesToQueryNodes(nodes []iopNode) []QueryNode {
	out := make([]QueryNode, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

func childrenField(children []iopNode) string {
	if len(children) == 0 {
		return ""
	}
	return children[0].Field()
}

// sortUniqueInts returns a sorted slice with duplicates removed. NEAR/WINDOW
// use it to finalize the position list they emit per matched document.
func sortUniqueInts(in []int) []int {
	sort.Ints(in)
	out := in[:0]
	var last int
	for i, v := range in {
		if i == 0 || v != last {
			out = append(out, v)
			last = v
		}
	}
	return out
}
