// Package bm25 implements VelesDB's tokenized inverted-index text search
// (spec §4.5): per-field posting lists, standard Okapi BM25 scoring, and
// Reciprocal-Rank-Fusion / weighted-sum / max hybrid combination with a
// vector ranking.
//
// The teacher (liliang-cn/sqvect) delegates text search entirely to
// SQLite's FTS5 virtual tables (trigger definitions in
// pkg/core/store.go's createTables); with the SQL engine dropped per
// SPEC_FULL.md §3, this package reimplements the posting-list/tokenize
// split FTS5 would otherwise provide, scored with the standard BM25
// formula named in spec §4.5.
package bm25

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/velesdb/velesdb/internal/verrors"
)

// DefaultK1 and DefaultB are BM25's standard tuning constants.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Hit is one scored match from Search.
type Hit struct {
	ID    uint64
	Score float64
}

type posting struct {
	docID uint64
	freq  int
}

// Index is a per-field BM25 inverted index.
type Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	postings  map[string][]posting // term -> postings
	docLen    map[uint64]int       // document id -> token count
	totalLen  int
	docCount  int
	fieldName string
}

// New creates an empty BM25 index for field over documents identified by
// point id, with the standard k1/b constants.
func New(field string) *Index {
	return &Index{
		k1:        DefaultK1,
		b:         DefaultB,
		postings:  make(map[string][]posting),
		docLen:    make(map[uint64]int),
		fieldName: field,
	}
}

// WithParams overrides k1/b.
func (idx *Index) WithParams(k1, b float64) *Index {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.k1 = k1
	idx.b = b
	return idx
}

// Tokenize lowercases and splits text on non-alphanumeric boundaries,
// VelesDB's standard tokenizer for BM25 documents and queries.
func Tokenize(text string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return toks
}

// Index tokenizes text and adds/replaces id's postings for this field.
func (idx *Index) Index(id uint64, text string) {
	toks := Tokenize(text)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docLen[id]; exists {
		idx.deleteLocked(id)
	}

	freqs := make(map[string]int, len(toks))
	for _, t := range toks {
		freqs[t]++
	}
	for term, f := range freqs {
		idx.postings[term] = append(idx.postings[term], posting{docID: id, freq: f})
	}
	idx.docLen[id] = len(toks)
	idx.totalLen += len(toks)
	idx.docCount++
}

// Delete removes id's postings from the index.
func (idx *Index) Delete(id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(id)
}

func (idx *Index) deleteLocked(id uint64) {
	length, ok := idx.docLen[id]
	if !ok {
		return
	}
	for term, list := range idx.postings {
		out := list[:0]
		for _, p := range list {
			if p.docID != id {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = out
		}
	}
	delete(idx.docLen, id)
	idx.totalLen -= length
	idx.docCount--
}

// Search tokenizes query and returns the top-k documents by BM25 score,
// descending.
func (idx *Index) Search(query string, k int) []Hit {
	terms := Tokenize(query)
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.docCount == 0 || k <= 0 {
		return nil
	}
	avgLen := float64(idx.totalLen) / float64(idx.docCount)

	scores := make(map[uint64]float64)
	for _, term := range dedup(terms) {
		list, ok := idx.postings[term]
		if !ok {
			continue
		}
		n := float64(len(list))
		idf := math.Log(1 + (float64(idx.docCount)-n+0.5)/(n+0.5))
		for _, p := range list {
			dl := float64(idx.docLen[p.docID])
			tf := float64(p.freq)
			denom := tf + idx.k1*(1-idx.b+idx.b*dl/avgLen)
			scores[p.docID] += idf * (tf * (idx.k1 + 1) / denom)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Hit{ID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func dedup(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// FusionStrategy names how vector and text rankings are combined.
type FusionStrategy int

const (
	FusionRRF FusionStrategy = iota
	FusionWeighted
	FusionMax
)

// DefaultRRFK is the Reciprocal Rank Fusion constant, per spec §4.5.
const DefaultRRFK = 60

// FusionInput is one ranked list contributing to a fused result.
type FusionInput struct {
	Ranks  []uint64 // ordered best-first
	Scores map[uint64]float64
	Weight float64
}

// Fuse combines vector and text rankings into one score-ordered list per
// strategy.
func Fuse(strategy FusionStrategy, inputs []FusionInput) []Hit {
	switch strategy {
	case FusionRRF:
		return fuseRRF(inputs)
	case FusionWeighted:
		return fuseWeighted(inputs)
	case FusionMax:
		return fuseMax(inputs)
	default:
		return fuseRRF(inputs)
	}
}

func fuseRRF(inputs []FusionInput) []Hit {
	scores := make(map[uint64]float64)
	for _, in := range inputs {
		for rank, id := range in.Ranks {
			scores[id] += 1.0 / float64(DefaultRRFK+rank+1)
		}
	}
	return sortedHits(scores)
}

func fuseWeighted(inputs []FusionInput) []Hit {
	// Normalize each input's scores to [0,1] by max before weighting, so
	// fused(r1) >= fused(r2) tracks each branch's relative ordering rather
	// than raw scale (spec §8.4 scenario F).
	scores := make(map[uint64]float64)
	for _, in := range inputs {
		maxScore := 0.0
		for _, s := range in.Scores {
			if s > maxScore {
				maxScore = s
			}
		}
		if maxScore == 0 {
			maxScore = 1
		}
		for id, s := range in.Scores {
			scores[id] += in.Weight * (s / maxScore)
		}
	}
	return sortedHits(scores)
}

func fuseMax(inputs []FusionInput) []Hit {
	scores := make(map[uint64]float64)
	for _, in := range inputs {
		for id, s := range in.Scores {
			weighted := s * in.Weight
			if cur, ok := scores[id]; !ok || weighted > cur {
				scores[id] = weighted
			}
		}
	}
	return sortedHits(scores)
}

func sortedHits(scores map[uint64]float64) []Hit {
	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, Hit{ID: id, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

// ValidateStrategy reports whether name names a known fusion strategy, used
// by the planner when executing a USING FUSION(...) clause.
func ValidateStrategy(name string) (FusionStrategy, error) {
	switch strings.ToLower(name) {
	case "rrf":
		return FusionRRF, nil
	case "weighted":
		return FusionWeighted, nil
	case "max":
		return FusionMax, nil
	default:
		return 0, verrors.New("bm25.validateStrategy", verrors.KindValidation, "unknown fusion strategy %q", name)
	}
}
