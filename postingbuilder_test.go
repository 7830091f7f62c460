package qryeval

import "testing"

func TestTermBuilder_FlattenEmpty(t *testing.T) {
	b := &termBuilder{}
	pl, err := b.flatten()
	if err != nil {
		t.Fatalf("flatten() error = %v, want nil", err)
	}
	if pl.DF != 0 || pl.CTF != 0 {
		t.Errorf("flatten() on empty builder = DF=%d CTF=%d, want 0,0", pl.DF, pl.CTF)
	}
}

func TestTermBuilder_SingleOccurrence(t *testing.T) {
	b := &termBuilder{}
	b.append(3, 7)

	pl, err := b.flatten()
	if err != nil {
		t.Fatalf("flatten() error = %v, want nil", err)
	}
	if pl.DF != 1 {
		t.Fatalf("DF = %d, want 1", pl.DF)
	}
	posting := pl.Postings[0]
	if posting.DocID != 3 || len(posting.Positions) != 1 || posting.Positions[0] != 7 {
		t.Errorf("posting = %+v, want DocID=3 Positions=[7]", posting)
	}
}

func TestTermBuilder_GroupsRepeatedDoc(t *testing.T) {
	b := &termBuilder{}
	b.append(1, 0)
	b.append(1, 4)
	b.append(1, 9)
	b.append(2, 1)

	pl, err := b.flatten()
	if err != nil {
		t.Fatalf("flatten() error = %v, want nil", err)
	}
	if pl.DF != 2 {
		t.Fatalf("DF = %d, want 2", pl.DF)
	}
	if got := pl.Postings[0].Positions; len(got) != 3 || got[0] != 0 || got[1] != 4 || got[2] != 9 {
		t.Errorf("doc 1 positions = %v, want [0 4 9]", got)
	}
	if got := pl.Postings[1].Positions; len(got) != 1 || got[0] != 1 {
		t.Errorf("doc 2 positions = %v, want [1]", got)
	}
	if pl.CTF != 4 {
		t.Errorf("CTF = %d, want 4", pl.CTF)
	}
}

func TestTermBuilder_PreservesInsertionOrderAcrossManyDocs(t *testing.T) {
	b := &termBuilder{}
	for doc := 0; doc < 50; doc++ {
		for offset := 0; offset < 3; offset++ {
			b.append(doc, offset)
		}
	}

	pl, err := b.flatten()
	if err != nil {
		t.Fatalf("flatten() error = %v, want nil", err)
	}
	if pl.DF != 50 {
		t.Fatalf("DF = %d, want 50", pl.DF)
	}
	for doc := 0; doc < 50; doc++ {
		posting := pl.Postings[doc]
		if posting.DocID != doc {
			t.Fatalf("Postings[%d].DocID = %d, want %d", doc, posting.DocID, doc)
		}
		if len(posting.Positions) != 3 {
			t.Fatalf("Postings[%d] has %d positions, want 3", doc, len(posting.Positions))
		}
	}
}

func TestTermBuilder_OutOfOrderAppendPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("append() with a decreasing docID did not panic")
		}
	}()

	b := &termBuilder{}
	b.append(5, 0)
	b.append(4, 0)
}

func TestTermBuilder_NonIncreasingOffsetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("append() with a repeated (docID, offset) did not panic")
		}
	}()

	b := &termBuilder{}
	b.append(1, 3)
	b.append(1, 3)
}
