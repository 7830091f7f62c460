package qryeval

import "testing"

func setupTestIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	mi := NewMemoryIndex()
	docs := []struct {
		id     string
		fields map[string]string
	}{
		{"d1", map[string]string{"body": "the quick brown fox jumps", "title": "fox story"}},
		{"d2", map[string]string{"body": "the lazy dog sleeps all day", "title": "dog life"}},
		{"d3", map[string]string{"body": "quick foxes and lazy dogs coexist", "title": "animal kingdom"}},
	}
	for _, d := range docs {
		if err := mi.Index(d.id, d.fields); err != nil {
			t.Fatalf("Index(%s): %v", d.id, err)
		}
	}
	if err := mi.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return mi
}

func TestMemoryIndex_NumDocsAndExternalID(t *testing.T) {
	mi := setupTestIndex(t)

	if got := mi.NumDocs(); got != 3 {
		t.Errorf("NumDocs() = %d, want 3", got)
	}

	id, err := mi.ExternalID(0)
	if err != nil || id != "d1" {
		t.Errorf("ExternalID(0) = (%q, %v), want (d1, nil)", id, err)
	}

	internal, ok := mi.InternalID("d3")
	if !ok || internal != 2 {
		t.Errorf("InternalID(d3) = (%d, %v), want (2, true)", internal, ok)
	}
}

func TestMemoryIndex_DocFreqAndTotalTermFreq(t *testing.T) {
	mi := setupTestIndex(t)

	// "fox"/"foxes" both stem to "fox"; it occurs in d1 and d3's bodies.
	if df := mi.DocFreq("body", "fox"); df != 2 {
		t.Errorf("DocFreq(body,fox) = %d, want 2", df)
	}
	if ctf := mi.TotalTermFreq("body", "fox"); ctf != 2 {
		t.Errorf("TotalTermFreq(body,fox) = %d, want 2", ctf)
	}
	if df := mi.DocFreq("body", "nonexistentterm"); df != 0 {
		t.Errorf("DocFreq for an absent term = %d, want 0", df)
	}
}

func TestMemoryIndex_FieldLength(t *testing.T) {
	mi := setupTestIndex(t)

	bodyLen0 := mi.FieldLength("body", 0)
	if bodyLen0 == 0 {
		t.Error("FieldLength(body, 0) = 0, want > 0 for an analyzed body")
	}
	// A field never supplied for a doc has length zero, not an error.
	if l := mi.FieldLength("url", 0); l != 0 {
		t.Errorf("FieldLength(url, 0) = %d, want 0", l)
	}
}

func TestMemoryIndex_PostingsOrderedByDocID(t *testing.T) {
	mi := setupTestIndex(t)

	pl, err := mi.Postings("body", "dog")
	if err != nil {
		t.Fatalf("Postings(body,dog): %v", err)
	}
	if pl.DF != 2 {
		t.Fatalf("DF = %d, want 2", pl.DF)
	}
	if pl.Postings[0].DocID >= pl.Postings[1].DocID {
		t.Errorf("postings not in strictly increasing docid order: %+v", pl.Postings)
	}
}

func TestMemoryIndex_PostingsUnknownTermIsEmptyNotError(t *testing.T) {
	mi := setupTestIndex(t)

	pl, err := mi.Postings("body", "zzzznosuchterm")
	if err != nil {
		t.Fatalf("Postings for an unknown term returned an error: %v", err)
	}
	if pl.DF != 0 {
		t.Errorf("DF = %d, want 0 for an unknown term", pl.DF)
	}
}

func TestMemoryIndex_RejectsUnknownField(t *testing.T) {
	mi := NewMemoryIndex()
	err := mi.Index("d1", map[string]string{"bogus": "text"})
	if err == nil {
		t.Fatal("Index with an unknown field should fail")
	}
}

func TestEngine_AvgAndSumFieldLength(t *testing.T) {
	mi := setupTestIndex(t)
	eng, err := OpenEngine(mi, "")
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	defer eng.Close()

	sum := eng.SumFieldLength("body")
	count := eng.DocCount("body")
	avg := eng.AvgFieldLength("body")

	if count != 3 {
		t.Errorf("DocCount(body) = %d, want 3", count)
	}
	if sum <= 0 {
		t.Errorf("SumFieldLength(body) = %v, want > 0", sum)
	}
	if want := sum / float64(count); avg != want {
		t.Errorf("AvgFieldLength(body) = %v, want %v", avg, want)
	}
}

func TestEngine_DelegatesPostingsAndExternalID(t *testing.T) {
	mi := setupTestIndex(t)
	eng, err := OpenEngine(mi, "")
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	defer eng.Close()

	pl, err := eng.Postings("body", "dog")
	if err != nil || pl.DF != 2 {
		t.Errorf("Engine.Postings(body,dog) = (%+v, %v), want DF=2", pl, err)
	}

	id, err := eng.ExternalID(1)
	if err != nil || id != "d2" {
		t.Errorf("Engine.ExternalID(1) = (%q, %v), want (d2, nil)", id, err)
	}
}
