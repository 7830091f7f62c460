package qryeval

import (
	"math"
	"testing"
)

// fakeReader is a minimal hand-built IndexReader used to exercise the DAAT
// algorithms directly against the literal token streams from the concrete
// scenarios, bypassing the Analyzer (whose stopword/min-length filters would
// strip the single-letter terms these scenarios use).
type fakeReader struct {
	numDocs     int
	docLen      map[int]int
	postings    map[string]*PostingList // key: field+"\x00"+term
	externalIDs []string
}

func newFakeReader(externalIDs []string) *fakeReader {
	return &fakeReader{
		numDocs:     len(externalIDs),
		docLen:      make(map[int]int),
		postings:    make(map[string]*PostingList),
		externalIDs: externalIDs,
	}
}

func (r *fakeReader) setLen(docID, length int) { r.docLen[docID] = length }

func (r *fakeReader) addPosting(term string, docID int, positions ...int) {
	key := "body\x00" + term
	pl, ok := r.postings[key]
	if !ok {
		pl = NewPostingList()
		r.postings[key] = pl
	}
	if err := pl.Append(docID, positions); err != nil {
		panic(err)
	}
}

func (r *fakeReader) NumDocs() int               { return r.numDocs }
func (r *fakeReader) DocCount(string) int        { return r.numDocs }
func (r *fakeReader) SumTotalTermFreq(f string) int64 {
	var sum int64
	for _, l := range r.docLen {
		sum += int64(l)
	}
	return sum
}
func (r *fakeReader) DocFreq(field, term string) int {
	pl, ok := r.postings[field+"\x00"+term]
	if !ok {
		return 0
	}
	return pl.DF
}
func (r *fakeReader) TotalTermFreq(field, term string) int64 {
	pl, ok := r.postings[field+"\x00"+term]
	if !ok {
		return 0
	}
	return pl.CTF
}
func (r *fakeReader) FieldLength(field string, docID int) int { return r.docLen[docID] }
func (r *fakeReader) Postings(field, term string) (*PostingList, error) {
	pl, ok := r.postings[field+"\x00"+term]
	if !ok {
		return NewPostingList(), nil
	}
	return pl, nil
}
func (r *fakeReader) ExternalID(docID int) (string, error) {
	if docID < 0 || docID >= len(r.externalIDs) {
		return "", ErrIndexAccess
	}
	return r.externalIDs[docID], nil
}
func (r *fakeReader) InternalID(externalID string) (int, bool) {
	for i, id := range r.externalIDs {
		if id == externalID {
			return i, true
		}
	}
	return 0, false
}

func mustEngine(t *testing.T, r IndexReader) *Engine {
	t.Helper()
	eng, err := OpenEngine(r, "")
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	return eng
}

func drain(t *testing.T, q QueryNode, model RetrievalModel) []int {
	t.Helper()
	var docs []int
	for q.HasMatch(model) {
		d := q.GetMatch()
		docs = append(docs, d)
		q.AdvancePast(d)
	}
	return docs
}

// ───────────────────────────── scenario 1: Boolean AND, Unranked ─────────────────────────────

func TestScenario1_BooleanAND_Unranked(t *testing.T) {
	// d1="a b", d2="a c", d3="b c", d4="a b c", d5="x"
	r := newFakeReader([]string{"d1", "d2", "d3", "d4", "d5"})
	r.addPosting("a", 0, 0)
	r.addPosting("b", 0, 1)
	r.addPosting("a", 1, 0)
	r.addPosting("c", 1, 1)
	r.addPosting("b", 2, 0)
	r.addPosting("c", 2, 1)
	r.addPosting("a", 3, 0)
	r.addPosting("b", 3, 1)
	r.addPosting("c", 3, 2)
	r.addPosting("x", 4, 0)
	eng := mustEngine(t, r)

	and := newAndNode("#AND")
	and.children = []QueryNode{wrapScore(newTermNode("body", "a")), wrapScore(newTermNode("body", "b"))}
	if err := and.Initialize(eng, UnrankedBoolean{}); err != nil {
		t.Fatal(err)
	}

	model := UnrankedBoolean{}
	var matched []int
	var scores []float64
	for and.HasMatch(model) {
		d := and.GetMatch()
		matched = append(matched, d)
		scores = append(scores, and.GetScore(model))
		and.AdvancePast(d)
	}

	if len(matched) != 2 || matched[0] != 0 || matched[1] != 3 {
		t.Fatalf("matched docs = %v, want [0 3] (d1, d4)", matched)
	}
	for _, s := range scores {
		if s != 1.0 {
			t.Errorf("UnrankedBoolean score = %v, want 1.0", s)
		}
	}
}

// ───────────────────────────── scenario 2: Ranked Boolean OR ─────────────────────────────

func TestScenario2_RankedBooleanOR(t *testing.T) {
	r := newFakeReader([]string{"d1", "d2", "d3", "d4", "d5"})
	r.addPosting("a", 0, 0)
	r.addPosting("b", 0, 1)
	r.addPosting("a", 1, 0)
	r.addPosting("c", 1, 1)
	r.addPosting("b", 2, 0)
	r.addPosting("c", 2, 1)
	r.addPosting("a", 3, 0)
	r.addPosting("b", 3, 1)
	r.addPosting("c", 3, 2)
	r.addPosting("x", 4, 0)
	eng := mustEngine(t, r)

	or := newOrNode("#OR")
	or.children = []QueryNode{wrapScore(newTermNode("body", "a")), wrapScore(newTermNode("body", "b"))}
	model := RankedBoolean{}
	if err := or.Initialize(eng, model); err != nil {
		t.Fatal(err)
	}

	matched := drainScored(t, or, model)
	want := []int{0, 1, 2, 3}
	if len(matched) != len(want) {
		t.Fatalf("matched = %v, want docs %v", matched, want)
	}
	for i, d := range matched {
		if d.doc != want[i] {
			t.Errorf("match[%d] = doc %d, want %d", i, d.doc, want[i])
		}
		if d.score != 1.0 {
			t.Errorf("RankedBoolean OR score for doc %d = %v, want 1.0 (every tf here is 1)", d.doc, d.score)
		}
	}
}

type scoredDoc struct {
	doc   int
	score float64
}

func drainScored(t *testing.T, q QueryNode, model RetrievalModel) []scoredDoc {
	t.Helper()
	var out []scoredDoc
	for q.HasMatch(model) {
		d := q.GetMatch()
		out = append(out, scoredDoc{doc: d, score: q.GetScore(model)})
		q.AdvancePast(d)
	}
	return out
}

func wrapScore(n iopNode) *scoreNode {
	sn := newScoreNode("SCORE")
	sn.child = n
	return sn
}

// ───────────────────────────── scenario 4: NEAR/1 ─────────────────────────────

func TestScenario4_Near1(t *testing.T) {
	// d1="a b c", d2="a c b", d3="b a"
	r := newFakeReader([]string{"d1", "d2", "d3"})
	r.addPosting("a", 0, 0)
	r.addPosting("b", 0, 1)
	r.addPosting("c", 0, 2)
	r.addPosting("a", 1, 0)
	r.addPosting("c", 1, 1)
	r.addPosting("b", 1, 2)
	r.addPosting("b", 2, 0)
	r.addPosting("a", 2, 1)
	eng := mustEngine(t, r)

	near := newNearNode("#NEAR/1", 1)
	near.children = []iopNode{newTermNode("body", "a"), newTermNode("body", "b")}
	if err := near.Initialize(eng, UnrankedBoolean{}); err != nil {
		t.Fatal(err)
	}
	docs := drain(t, near, UnrankedBoolean{})
	if len(docs) != 1 || docs[0] != 0 {
		t.Fatalf("#NEAR/1(a b) matched = %v, want only d1 (docid 0)", docs)
	}

	near2 := newNearNode("#NEAR/1", 1)
	near2.children = []iopNode{newTermNode("body", "b"), newTermNode("body", "a")}
	if err := near2.Initialize(eng, UnrankedBoolean{}); err != nil {
		t.Fatal(err)
	}
	docs2 := drain(t, near2, UnrankedBoolean{})
	if len(docs2) != 1 || docs2[0] != 2 {
		t.Fatalf("#NEAR/1(b a) matched = %v, want only d3 (docid 2)", docs2)
	}
}

// ───────────────────────────── scenario 5: WINDOW/k ─────────────────────────────

func TestScenario5_Window(t *testing.T) {
	// d1="a x y b" (positions 0..3)
	r := newFakeReader([]string{"d1"})
	r.addPosting("a", 0, 0)
	r.addPosting("b", 0, 3)
	eng := mustEngine(t, r)

	win4 := newWindowNode("#WINDOW/4", 4)
	win4.children = []iopNode{newTermNode("body", "a"), newTermNode("body", "b")}
	if err := win4.Initialize(eng, UnrankedBoolean{}); err != nil {
		t.Fatal(err)
	}
	if !win4.HasMatch(nil) || win4.GetMatch() != 0 {
		t.Fatalf("#WINDOW/4(a b) should match d1")
	}
	posting := win4.CurrentPosting()
	if len(posting.Positions) != 1 || posting.Positions[0] != 3 {
		t.Fatalf("#WINDOW/4(a b) emitted positions = %v, want [3]", posting.Positions)
	}

	win3 := newWindowNode("#WINDOW/3", 3)
	win3.children = []iopNode{newTermNode("body", "a"), newTermNode("body", "b")}
	eng2 := mustEngine(t, r)
	if err := win3.Initialize(eng2, UnrankedBoolean{}); err != nil {
		t.Fatal(err)
	}
	if win3.HasMatch(nil) {
		t.Fatalf("#WINDOW/3(a b) should not match (span 3 is not < 3)")
	}
}

// ───────────────────────────── scenario 6: Indri WAND default score ─────────────────────────────

func TestScenario6_IndriWANDDefaultScore(t *testing.T) {
	r := newFakeReader([]string{"d1", "d2"})
	// d1 contains neither a nor b; d2 carries the corpus statistics for both.
	r.setLen(0, 5)
	r.setLen(1, 10)
	r.addPosting("a", 1, 0, 1)
	r.addPosting("b", 1, 2)
	eng := mustEngine(t, r)

	wand := newWandNode("#WAND")
	wand.children = []QueryNode{wrapScore(newTermNode("body", "a")), wrapScore(newTermNode("body", "b"))}
	wand.weights = []float64{0.3, 0.7}
	model := Indri{Mu: 2000, Lambda: 0.4}
	if err := wand.Initialize(eng, model); err != nil {
		t.Fatal(err)
	}

	score := wand.GetDefaultScore(model, 0)

	lenC := eng.SumFieldLength("body")
	pMLEa := float64(2) / lenC
	pMLEb := float64(1) / lenC
	lenD := float64(eng.FieldLength("body", 0))
	defA := (1-model.Lambda)*((0+model.Mu*pMLEa)/(lenD+model.Mu)) + model.Lambda*pMLEa
	defB := (1-model.Lambda)*((0+model.Mu*pMLEb)/(lenD+model.Mu)) + model.Lambda*pMLEb
	want := math.Pow(defA, 0.3) * math.Pow(defB, 0.7)

	if math.Abs(score-want) > 1e-9 {
		t.Errorf("WAND default score = %v, want %v", score, want)
	}
	if score <= 0 {
		t.Errorf("WAND default score should be strictly positive, got %v", score)
	}
}

// ───────────────────────────── scoring laws ─────────────────────────────

func TestScoringLaw_BM25MonotoneInTF(t *testing.T) {
	// "ta" and "tb" both have df=2 (present in d0 and d1); "tb" has higher
	// tf in d0 than "ta" does. Holding df fixed, the higher-tf term must
	// score higher in d0.
	r := newFakeReader([]string{"d1", "d2"})
	r.setLen(0, 10)
	r.setLen(1, 10)
	r.addPosting("ta", 0, 0)
	r.addPosting("ta", 1, 0)
	r.addPosting("tb", 0, 0, 1, 2)
	r.addPosting("tb", 1, 0)
	eng := mustEngine(t, r)
	model := BM25{K1: 1.2, B: 0.75, K3: 0}

	scoreOf := func(term string, docID int) float64 {
		n := wrapScore(newTermNode("body", term))
		if err := n.Initialize(eng, model); err != nil {
			t.Fatal(err)
		}
		n.AdvanceTo(docID)
		if !n.HasMatch(model) || n.GetMatch() != docID {
			t.Fatalf("expected a match at doc %d for %q", docID, term)
		}
		return n.GetScore(model)
	}

	if scoreOf("tb", 0) <= scoreOf("ta", 0) {
		t.Error("BM25 score should increase with tf, holding df fixed")
	}
}

func TestScoringLaw_BM25MonotoneInNegDF(t *testing.T) {
	// "tc" is distinctive (df=1); "td" is common (df=2). Both occur with
	// tf=1 in d0. Holding tf fixed, the lower-df term must score higher.
	r := newFakeReader([]string{"d1", "d2"})
	r.setLen(0, 10)
	r.setLen(1, 10)
	r.addPosting("tc", 0, 0)
	r.addPosting("td", 0, 0)
	r.addPosting("td", 1, 0)
	eng := mustEngine(t, r)
	model := BM25{K1: 1.2, B: 0.75, K3: 0}

	scoreOf := func(term string, docID int) float64 {
		n := wrapScore(newTermNode("body", term))
		if err := n.Initialize(eng, model); err != nil {
			t.Fatal(err)
		}
		n.AdvanceTo(docID)
		if !n.HasMatch(model) || n.GetMatch() != docID {
			t.Fatalf("expected a match at doc %d for %q", docID, term)
		}
		return n.GetScore(model)
	}

	if scoreOf("tc", 0) <= scoreOf("td", 0) {
		t.Error("BM25 score should increase as df decreases, holding tf fixed")
	}
}

func TestScoringLaw_IndriBoundsAndDefaultBelowActual(t *testing.T) {
	r := newFakeReader([]string{"d1", "d2"})
	r.setLen(0, 10)
	r.setLen(1, 10)
	r.addPosting("t", 0, 0, 1)
	eng := mustEngine(t, r)
	model := Indri{Mu: 1000, Lambda: 0.4}

	n := wrapScore(newTermNode("body", "t"))
	if err := n.Initialize(eng, model); err != nil {
		t.Fatal(err)
	}
	n.AdvanceTo(0)
	if !n.HasMatch(model) {
		t.Fatal("expected a match at doc 0")
	}
	score := n.GetScore(model)
	if score <= 0 || score > 1 {
		t.Errorf("Indri score = %v, want in (0, 1]", score)
	}

	def := n.GetDefaultScore(model, 1)
	if def >= score {
		t.Errorf("Indri default score (%v) should be < actual score (%v) when tf > 0", def, score)
	}
}

func TestScoringLaw_WeightRenormalizationInvariant(t *testing.T) {
	r := newFakeReader([]string{"d1", "d2"})
	r.setLen(0, 10)
	r.setLen(1, 10)
	r.addPosting("a", 1, 0)
	r.addPosting("b", 1, 1)
	eng := mustEngine(t, r)
	model := Indri{Mu: 2000, Lambda: 0.4}

	build := func(wa, wb float64) *wsumNode {
		n := newWsumNode("#WSUM")
		n.children = []QueryNode{wrapScore(newTermNode("body", "a")), wrapScore(newTermNode("body", "b"))}
		n.weights = []float64{wa, wb}
		if err := n.Initialize(eng, model); err != nil {
			t.Fatal(err)
		}
		return n
	}

	n1 := build(1, 3)
	n2 := build(10, 30) // same ratio, scaled by 10
	n1.HasMatch(model)
	n2.HasMatch(model)
	s1 := n1.GetScore(model)
	s2 := n2.GetScore(model)
	if math.Abs(s1-s2) > 1e-9 {
		t.Errorf("WSUM score changed under uniform weight rescaling: %v vs %v", s1, s2)
	}
}
