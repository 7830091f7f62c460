package qryeval

// RetrievalModel is a tagged descriptor of retrieval-model identity and
// parameters (spec §3 RMD). It dictates which score path SOP nodes take and
// supplies the default top-level operator a bag-of-words query is wrapped in
// (spec §4.6 step 1; §9 "unconditional wrapping is load-bearing").
type RetrievalModel interface {
	// DefaultOperator is the prefix operator a raw bag-of-words query string
	// is wrapped in before parsing, e.g. "#and" or "#sum".
	DefaultOperator() string
	// Name identifies the model in error messages and logs.
	Name() string
}

// UnrankedBoolean has no parameters; every matching document scores 1.0.
type UnrankedBoolean struct{}

func (UnrankedBoolean) DefaultOperator() string { return "#and" }
func (UnrankedBoolean) Name() string            { return "UnrankedBoolean" }

// RankedBoolean has no parameters; SCORE returns the matched term's tf.
type RankedBoolean struct{}

func (RankedBoolean) DefaultOperator() string { return "#and" }
func (RankedBoolean) Name() string            { return "RankedBoolean" }

// BM25 parameters per spec §3: K1 (tf saturation), B (length normalization),
// K3 (query-term-frequency saturation — this engine always uses qtf=1, so K3
// only matters in principle; kept for fidelity to the source formula).
type BM25 struct {
	K1 float64
	B  float64
	K3 float64
}

func (BM25) DefaultOperator() string { return "#sum" }
func (BM25) Name() string            { return "BM25" }

// Indri parameters per spec §3: Mu (Dirichlet smoothing), Lambda (Jelinek-
// Mercer interpolation weight for the collection model).
type Indri struct {
	Mu     float64
	Lambda float64
}

func (Indri) DefaultOperator() string { return "#and" }
func (Indri) Name() string            { return "Indri" }

// isIndri/isBM25 are small type-switch helpers used throughout query.go so
// scoring dispatch reads as a single switch rather than repeated type
// assertions.
func isIndri(m RetrievalModel) (Indri, bool) {
	v, ok := m.(Indri)
	return v, ok
}

func isBM25(m RetrievalModel) (BM25, bool) {
	v, ok := m.(BM25)
	return v, ok
}
