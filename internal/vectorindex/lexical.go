package vectorindex

import (
	"context"
	"math"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/textutil"
)

// LexicalIndex scores chunks by TF-IDF cosine similarity. Raw scores lie
// in [0,1]. Every chunk is a candidate, including those sharing no term
// with the query.
type LexicalIndex struct {
	chunks []dataset.Chunk
	vocab  map[string]int
	idf    []float64
	docs   []map[int]float64
}

// NewLexicalIndex fits the vocabulary and idf weights on chunks. idf uses
// smoothing: ln((1+n)/(1+df)) + 1. Document vectors are l2-normalized.
func NewLexicalIndex(chunks []dataset.Chunk) *LexicalIndex {
	idx := &LexicalIndex{
		chunks: append([]dataset.Chunk(nil), chunks...),
		vocab:  make(map[string]int),
	}

	counts := make([]map[int]float64, len(chunks))
	var df []int
	for i, c := range chunks {
		tf := make(map[int]float64)
		for _, tok := range textutil.WordTokens(c.Content) {
			id, ok := idx.vocab[tok]
			if !ok {
				id = len(idx.vocab)
				idx.vocab[tok] = id
				df = append(df, 0)
			}
			if tf[id] == 0 {
				df[id]++
			}
			tf[id]++
		}
		counts[i] = tf
	}

	n := float64(len(chunks))
	idx.idf = make([]float64, len(df))
	for id, d := range df {
		idx.idf[id] = math.Log((1+n)/(1+float64(d))) + 1
	}

	idx.docs = make([]map[int]float64, len(chunks))
	for i, tf := range counts {
		idx.docs[i] = idx.weigh(tf)
	}
	return idx
}

// Kind returns KindLexical.
func (l *LexicalIndex) Kind() Kind { return KindLexical }

// Len returns the number of chunks.
func (l *LexicalIndex) Len() int { return len(l.chunks) }

// Search scores every chunk against the query.
func (l *LexicalIndex) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if k <= 0 || len(l.chunks) == 0 {
		return []Candidate{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tf := make(map[int]float64)
	for _, tok := range textutil.WordTokens(query) {
		if id, ok := l.vocab[tok]; ok {
			tf[id]++
		}
	}
	q := l.weigh(tf)

	cands := make([]Candidate, len(l.chunks))
	for i, doc := range l.docs {
		var dot float64
		for id, w := range q {
			dot += w * doc[id]
		}
		cands[i] = Candidate{Chunk: l.chunks[i], RawScore: dot}
	}
	return rankTop(cands, k), nil
}

func (l *LexicalIndex) weigh(tf map[int]float64) map[int]float64 {
	vec := make(map[int]float64, len(tf))
	var sum float64
	for id, count := range tf {
		w := count * l.idf[id]
		vec[id] = w
		sum += w * w
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for id := range vec {
		vec[id] /= norm
	}
	return vec
}

// LexicalBuilder builds LexicalIndex values. It never fails.
type LexicalBuilder struct{}

// Build fits a lexical index on chunks.
func (LexicalBuilder) Build(ctx context.Context, chunks []dataset.Chunk) (Index, error) {
	return NewLexicalIndex(chunks), nil
}
