// ═══════════════════════════════════════════════════════════════════════════════
// INDEX ACCESS LAYER: the read-only capability query.go and ranker.go run against
// ═══════════════════════════════════════════════════════════════════════════════
// IndexReader is the consumed-capability contract (spec §6): corpus statistics,
// a term's postings, and the docid<->external-id mapping. MemoryIndex is an
// in-memory implementation that accepts whole documents via Index() and
// flattens them into PostingLists on Freeze(), reusing the teacher's
// roaring-bitmap doc-frequency structure: a bitmap per (field,term) gives
// O(1) document frequency (the teacher's calculateIDF trick), paired with a
// termBuilder per (field,term) as the ordered-position scratch space during
// the build (see postingbuilder.go).
//
// Engine wraps an IndexReader with the process-wide lifecycle the spec calls
// for: a shared file lock for the batch's duration, and an LRU cache for the
// "hot quantities" (avg field length, total field length, per-field document
// count) that would
// otherwise be recomputed by every SCORE node on every document.
// ═══════════════════════════════════════════════════════════════════════════════

package qryeval

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ───────────────────────────── IndexReader contract ─────────────────────────────

// IndexReader is the index-reader capability consumed by the query engine
// (spec §6). Every method is read-only; implementations must be safe for
// concurrent use by a single batch's sequential query loop (the engine core
// itself is single-threaded per spec §5, but the interface makes no such
// assumption of its own).
type IndexReader interface {
	NumDocs() int
	DocCount(field string) int
	SumTotalTermFreq(field string) int64
	DocFreq(field, term string) int
	TotalTermFreq(field, term string) int64
	FieldLength(field string, docID int) int
	Postings(field, term string) (*PostingList, error)
	ExternalID(docID int) (string, error)
	InternalID(externalID string) (int, bool)
}

// ───────────────────────────── MemoryIndex (build + serve) ─────────────────────────────

// MemoryIndex is an in-memory IndexReader built by repeated calls to Index,
// then sealed with Freeze. Reading postings or term statistics (Postings,
// DocFreq, TotalTermFreq) from an unfrozen index panics — the protocol
// mirrors the spec's "PLs are materialized up-front" scheduling note: there is
// no interleaving of index writes and query reads.
type MemoryIndex struct {
	mu sync.Mutex

	numDocs     int
	externalIDs []string
	internalIDs map[string]int

	// Build-time scratch: one roaring bitmap and one termBuilder per
	// (field,term) key, mirroring the teacher's InvertedIndex.DocBitmaps /
	// PostingsList hybrid. The bitmap survives past Freeze as the O(1)
	// doc-frequency structure; the termBuilder is discarded once flattened.
	docBitmaps map[string]*roaring.Bitmap
	builders   map[string]*termBuilder

	// Frozen postings, populated by Freeze.
	postings map[string]*PostingList

	fieldLen      map[string][]int // field -> per-docid length
	sumFieldLen   map[string]int64 // field -> Σ length across all docs
	docCountField map[string]int   // field -> docs with a non-empty value

	frozen bool
}

// NewMemoryIndex returns an empty MemoryIndex ready for Index calls.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		internalIDs:   make(map[string]int),
		docBitmaps:    make(map[string]*roaring.Bitmap),
		builders:      make(map[string]*termBuilder),
		postings:      make(map[string]*PostingList),
		fieldLen:      make(map[string][]int),
		sumFieldLen:   make(map[string]int64),
		docCountField: make(map[string]int),
	}
}

func fieldTermKey(field, term string) string { return field + "\x00" + term }

// Index assigns the next internal docid to externalID and analyzes each
// supplied field's text, recording per-field length and per-(field,term)
// occurrences. fields keyed outside the closed field set are rejected.
func (mi *MemoryIndex) Index(externalID string, fields map[string]string) error {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	if mi.frozen {
		return fmt.Errorf("%w: index already frozen", ErrIndexAccess)
	}
	for field := range fields {
		if _, ok := knownFields[field]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
	}

	docID := mi.numDocs
	mi.externalIDs = append(mi.externalIDs, externalID)
	mi.internalIDs[externalID] = docID
	mi.numDocs++

	slog.Info("indexing document", slog.String("externalID", externalID), slog.Int("docID", docID))

	for field := range knownFields {
		mi.fieldLen[field] = append(mi.fieldLen[field], 0)
	}
	for field, text := range fields {
		tokens := Analyze(field, text)
		mi.fieldLen[field][docID] = len(tokens)
		mi.sumFieldLen[field] += int64(len(tokens))
		if len(tokens) > 0 {
			mi.docCountField[field]++
		}
		for position, token := range tokens {
			mi.indexToken(field, token, docID, position)
		}
	}
	return nil
}

func (mi *MemoryIndex) indexToken(field, term string, docID, position int) {
	key := fieldTermKey(field, term)

	bitmap, ok := mi.docBitmaps[key]
	if !ok {
		bitmap = roaring.NewBitmap()
		mi.docBitmaps[key] = bitmap
	}
	bitmap.Add(uint32(docID))

	b, ok := mi.builders[key]
	if !ok {
		b = &termBuilder{}
		mi.builders[key] = b
	}
	b.append(docID, position)
}

// Freeze flattens every (field,term) termBuilder into an immutable
// PostingList and discards the build-time builders. Safe to call once; a
// second call is a no-op.
func (mi *MemoryIndex) Freeze() error {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if mi.frozen {
		return nil
	}

	for key, b := range mi.builders {
		pl, err := b.flatten()
		if err != nil {
			return err
		}
		mi.postings[key] = pl
	}

	mi.builders = nil
	mi.frozen = true
	return nil
}

func (mi *MemoryIndex) checkFrozen() {
	if !mi.frozen {
		protocolViolation("MemoryIndex queried before Freeze")
	}
}

func (mi *MemoryIndex) NumDocs() int {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	return mi.numDocs
}

func (mi *MemoryIndex) DocCount(field string) int {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	return mi.docCountField[field]
}

func (mi *MemoryIndex) SumTotalTermFreq(field string) int64 {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	return mi.sumFieldLen[field]
}

func (mi *MemoryIndex) DocFreq(field, term string) int {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.checkFrozen()
	bitmap, ok := mi.docBitmaps[fieldTermKey(field, term)]
	if !ok {
		return 0
	}
	return int(bitmap.GetCardinality())
}

func (mi *MemoryIndex) TotalTermFreq(field, term string) int64 {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.checkFrozen()
	pl, ok := mi.postings[fieldTermKey(field, term)]
	if !ok {
		return 0
	}
	return pl.CTF
}

func (mi *MemoryIndex) FieldLength(field string, docID int) int {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	lens := mi.fieldLen[field]
	if docID < 0 || docID >= len(lens) {
		return 0
	}
	return lens[docID]
}

func (mi *MemoryIndex) Postings(field, term string) (*PostingList, error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.checkFrozen()
	pl, ok := mi.postings[fieldTermKey(field, term)]
	if !ok {
		return NewPostingList(), nil
	}
	return pl, nil
}

func (mi *MemoryIndex) ExternalID(docID int) (string, error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if docID < 0 || docID >= len(mi.externalIDs) {
		return "", fmt.Errorf("%w: docid %d out of range", ErrIndexAccess, docID)
	}
	return mi.externalIDs[docID], nil
}

func (mi *MemoryIndex) InternalID(externalID string) (int, bool) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	id, ok := mi.internalIDs[externalID]
	return id, ok
}

// ───────────────────────────── Engine ─────────────────────────────

// hotKey identifies one cached "hot quantity" (spec §4.3.1/§9): a value that
// is constant across an entire query and would otherwise be recomputed by
// every SCORE node evaluated against the same (field) or (field,term).
type hotKey struct {
	kind  string // "avglen", "sumlen", "doccount"
	field string
}

// Engine is the explicit context struct the spec's redesign notes call for in
// place of the original's process-wide statics (spec §9): it owns the index
// handle, the analyzer (a stateless package-level capability, so nothing to
// own there), and the hot-quantity cache, and is threaded into every
// QueryNode.Initialize call.
type Engine struct {
	reader IndexReader
	cache  *lru.Cache[hotKey, float64]

	lock     *flock.Flock
	lockPath string

	fieldLenCache *fieldLengthMatrix // optional sidecar, nil if absent
	extIDCache    []string           // optional sidecar, nil if absent
}

// OpenEngine takes a shared read lock on indexDir for the engine's lifetime,
// attempts to load the two optional gzipped sidecars (spec §6), and wraps
// reader with a bounded LRU for per-query hot quantities. Close must be called
// when the batch of queries completes.
func OpenEngine(reader IndexReader, indexDir string) (*Engine, error) {
	cache, err := lru.New[hotKey, float64](256)
	if err != nil {
		return nil, fmt.Errorf("%w: building hot-quantity cache: %v", ErrIndexAccess, err)
	}

	eng := &Engine{reader: reader, cache: cache}

	if indexDir != "" {
		eng.lockPath = filepath.Join(indexDir, ".blaze.lock")
		eng.lock = flock.New(eng.lockPath)
		locked, err := eng.lock.TryRLock()
		if err != nil {
			return nil, fmt.Errorf("%w: acquiring shared index lock: %v", ErrIndexAccess, err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: index directory locked for writing", ErrIndexAccess)
		}

		if matrix, err := loadFieldLengthMatrix(filepath.Join(indexDir, "field_lengths.csv.gz")); err == nil {
			eng.fieldLenCache = matrix
		}
		if ids, err := loadExternalIDs(filepath.Join(indexDir, "external_ids.txt.gz")); err == nil {
			eng.extIDCache = ids
		}
	}

	return eng, nil
}

// Close releases the engine's shared file lock, if one was taken.
func (eng *Engine) Close() error {
	if eng.lock == nil {
		return nil
	}
	return eng.lock.Unlock()
}

func (eng *Engine) NumDocs() int { return eng.reader.NumDocs() }

func (eng *Engine) DocCount(field string) int {
	if v, ok := eng.cache.Get(hotKey{"doccount", field}); ok {
		return int(v)
	}
	v := eng.reader.DocCount(field)
	eng.cache.Add(hotKey{"doccount", field}, float64(v))
	return v
}

func (eng *Engine) SumTotalTermFreq(field string) int64 {
	return int64(eng.SumFieldLength(field))
}

func (eng *Engine) DocFreq(field, term string) int { return eng.reader.DocFreq(field, term) }

func (eng *Engine) TotalTermFreq(field, term string) int64 {
	return eng.reader.TotalTermFreq(field, term)
}

// FieldLength returns a document's length in field, preferring the sidecar
// cache (spec §6: "when present, they short-circuit field_length") over the
// live reader.
func (eng *Engine) FieldLength(field string, docID int) int {
	if eng.fieldLenCache != nil {
		if v, ok := eng.fieldLenCache.length(field, docID); ok {
			return v
		}
	}
	return eng.reader.FieldLength(field, docID)
}

// SumFieldLength is lenC_f, the total token count of field across the whole
// corpus — one of the spec's named hot quantities, cached per (model run,
// field) rather than recomputed by every SCORE node.
func (eng *Engine) SumFieldLength(field string) float64 {
	if v, ok := eng.cache.Get(hotKey{"sumlen", field}); ok {
		return v
	}
	v := float64(eng.reader.SumTotalTermFreq(field))
	eng.cache.Add(hotKey{"sumlen", field}, v)
	return v
}

// AvgFieldLength is avglen_f = lenC_f / doc_count(f), the other named hot
// quantity.
func (eng *Engine) AvgFieldLength(field string) float64 {
	if v, ok := eng.cache.Get(hotKey{"avglen", field}); ok {
		return v
	}
	count := eng.DocCount(field)
	var v float64
	if count > 0 {
		v = eng.SumFieldLength(field) / float64(count)
	}
	eng.cache.Add(hotKey{"avglen", field}, v)
	return v
}

func (eng *Engine) Postings(field, term string) (*PostingList, error) {
	return eng.reader.Postings(field, term)
}

// ExternalID maps a docid back to its external id, preferring the sidecar
// cache over the live reader.
func (eng *Engine) ExternalID(docID int) (string, error) {
	if eng.extIDCache != nil {
		if docID >= 0 && docID < len(eng.extIDCache) {
			return eng.extIDCache[docID], nil
		}
		return "", fmt.Errorf("%w: docid %d out of range", ErrIndexAccess, docID)
	}
	return eng.reader.ExternalID(docID)
}

func (eng *Engine) InternalID(externalID string) (int, bool) {
	return eng.reader.InternalID(externalID)
}

// loadFieldLengthMatrix and loadExternalIDs, and the fieldLengthMatrix type,
// are declared in serialization.go; OpenEngine's lifecycle logic lives here
// while the sidecar file-parsing logic lives there, the way the teacher
// splits index.go from serialization.go.
