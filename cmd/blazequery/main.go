// Command blazequery drives one batch of queries against a pre-built index
// and writes a trec_eval-format ranking file, the Go-native equivalent of
// the original QryEval.py driver: read a run-parameters file, open the
// index, rank every query, write the results, exit.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	qryeval "github.com/blazeql/qryeval"
	"gopkg.in/yaml.v3"
)

// RunParameters is the YAML-loaded run configuration (spec §5.3/§6 "the
// parameter-file loader" contract): which index to open, which queries to
// run, which retrieval model and tuning parameters to use, and where to
// write trec_eval output.
type RunParameters struct {
	IndexPath           string `yaml:"indexPath"`
	QueryFilePath       string `yaml:"queryFilePath"`
	TrecEvalOutputPath  string `yaml:"trecEvalOutputPath"`
	RetrievalAlgorithm  string `yaml:"retrievalAlgorithm"`
	OutputLength        int    `yaml:"outputLength"`
	RunID               string `yaml:"runId"`
	BM25 struct {
		K1 float64 `yaml:"k1"`
		B  float64 `yaml:"b"`
		K3 float64 `yaml:"k3"`
	} `yaml:"bm25"`
	Indri struct {
		Mu     float64 `yaml:"mu"`
		Lambda float64 `yaml:"lambda"`
	} `yaml:"indri"`
	BuildSidecars bool `yaml:"buildSidecars"`
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: blazequery <params.yaml>")
		os.Exit(1)
	}

	if err := run(flag.Arg(0)); err != nil {
		slog.Error("blazequery failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(paramsPath string) error {
	params, err := loadRunParameters(paramsPath)
	if err != nil {
		return fmt.Errorf("loading run parameters: %w", err)
	}

	reader, err := loadIndex(params.IndexPath)
	if err != nil {
		return fmt.Errorf("loading index: %w", err)
	}

	if params.BuildSidecars {
		if err := qryeval.WriteSidecars(params.IndexPath, reader); err != nil {
			return fmt.Errorf("building sidecars: %w", err)
		}
		slog.Info("wrote sidecar caches", slog.String("indexPath", params.IndexPath))
	}

	eng, err := qryeval.OpenEngine(reader, params.IndexPath)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer eng.Close()

	queries, err := readQueryFile(params.QueryFilePath)
	if err != nil {
		return fmt.Errorf("reading query file: %w", err)
	}

	model, err := buildModel(params)
	if err != nil {
		return err
	}

	rk := qryeval.NewRanker(model)
	if params.OutputLength > 0 {
		rk.MaxResults = params.OutputLength
	}

	slog.Info("ranking", slog.String("algorithm", model.Name()), slog.Int("numQueries", len(queries)))
	results, errs := rk.Run(eng, queries)
	for qid, err := range errs {
		slog.Error("query failed", slog.String("qid", qid), slog.String("err", err.Error()))
	}

	return writeTrecEval(params.TrecEvalOutputPath, queries, results, params.RunID)
}

func loadRunParameters(path string) (*RunParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	params := &RunParameters{OutputLength: 1000, RunID: "blazequery"}
	if err := yaml.Unmarshal(data, params); err != nil {
		return nil, err
	}
	if params.IndexPath == "" || params.QueryFilePath == "" || params.TrecEvalOutputPath == "" {
		return nil, fmt.Errorf("indexPath, queryFilePath, and trecEvalOutputPath are required")
	}
	return params, nil
}

func buildModel(params *RunParameters) (qryeval.RetrievalModel, error) {
	switch strings.ToLower(params.RetrievalAlgorithm) {
	case "unrankedboolean":
		return qryeval.UnrankedBoolean{}, nil
	case "rankedboolean":
		return qryeval.RankedBoolean{}, nil
	case "bm25":
		return qryeval.BM25{K1: params.BM25.K1, B: params.BM25.B, K3: params.BM25.K3}, nil
	case "indri":
		return qryeval.Indri{Mu: params.Indri.Mu, Lambda: params.Indri.Lambda}, nil
	default:
		return nil, fmt.Errorf("unknown retrievalAlgorithm %q", params.RetrievalAlgorithm)
	}
}

// readQueryFile reads a ".qry" file: one "qid: query text" line per query.
func readQueryFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	queries := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		qid, query, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed query line %q", line)
		}
		queries[strings.TrimSpace(qid)] = strings.TrimSpace(query)
	}
	return queries, scanner.Err()
}

// writeTrecEval writes one line per result in trec_eval's 6-column format:
// "qid Q0 docid rank score runid". A query with no results still gets one
// placeholder line, matching the original TeIn's behavior.
func writeTrecEval(path string, queries map[string]string, results map[string][]qryeval.RankedResult, runID string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	for qid := range queries {
		ranked := results[qid]
		if len(ranked) == 0 {
			fmt.Fprintf(w, "%s Q0 Nonexistent_Docid 1 0.000000000000 %s\n", qid, runID)
			continue
		}
		for rank, r := range ranked {
			fmt.Fprintf(w, "%s Q0 %s %d %.12f %s\n", qid, r.ExternalID, rank+1, r.Score, runID)
		}
	}
	return nil
}

// loadIndex is a thin development convenience, not the engine's index
// format: index building and low-level storage are out of scope for this
// system (spec §1), so there is no real on-disk inverted-index format here.
// This just lets the CLI demonstrate the engine end to end by reading a
// small JSONL corpus (one document object per line) and feeding it through
// MemoryIndex the same way a test's setup helper would.
func loadIndex(indexPath string) (*qryeval.MemoryIndex, error) {
	corpusPath := filepath.Join(indexPath, "documents.jsonl")
	f, err := os.Open(corpusPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mi := qryeval.NewMemoryIndex()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc struct {
			ID     string            `json:"id"`
			Fields map[string]string `json:"fields"`
		}
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", corpusPath, err)
		}
		if err := mi.Index(doc.ID, doc.Fields); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", doc.ID, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := mi.Freeze(); err != nil {
		return nil, err
	}
	return mi, nil
}
