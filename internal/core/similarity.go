package core

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

var cleanPattern = regexp.MustCompile(`[^\w\s]`)

// Cosine computes cosine similarity of two equal-length vectors. Zero when
// either vector has zero magnitude.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector length mismatch (%d vs %d)", domain.ErrInvalidArgument, len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Tokenize lowercases, strips punctuation, splits on whitespace, and drops
// tokens of length <= 2.
func Tokenize(text string) []string {
	cleaned := cleanPattern.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, t := range fields {
		if len(t) > 2 {
			out = append(out, t)
		}
	}
	return out
}

// Jaccard computes |A∩B| / |A∪B| over token sets. Zero when either set is
// empty.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// TextSimilarity is Jaccard over tokenized texts. Used wherever embeddings
// are unavailable; unlike TF-IDF it scores identical texts as 1.
func TextSimilarity(a, b string) float64 {
	return Jaccard(tokenSet(a), tokenSet(b))
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(text) {
		set[t] = true
	}
	return set
}

func computeTF(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	total := float64(len(tokens))
	for t := range tf {
		tf[t] /= total
	}
	return tf
}

// ComputeIDF returns ln(N/df) per term over the tokenized corpus.
func ComputeIDF(documents [][]string) map[string]float64 {
	if len(documents) == 0 {
		return nil
	}
	df := make(map[string]float64)
	for _, doc := range documents {
		seen := make(map[string]bool, len(doc))
		for _, t := range doc {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	n := float64(len(documents))
	idf := make(map[string]float64, len(df))
	for t, f := range df {
		idf[t] = math.Log(n / f)
	}
	return idf
}

// TFIDFSimilarity computes cosine similarity of TF-IDF vectors. When no
// corpus IDF is supplied the two texts themselves form the corpus.
func TFIDFSimilarity(a, b string, idf map[string]float64) float64 {
	tokensA := Tokenize(a)
	tokensB := Tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	tfA := computeTF(tokensA)
	tfB := computeTF(tokensB)
	if idf == nil {
		idf = ComputeIDF([][]string{tokensA, tokensB})
	}

	terms := make(map[string]bool, len(tfA)+len(tfB))
	for t := range tfA {
		terms[t] = true
	}
	for t := range tfB {
		terms[t] = true
	}

	var dot, magA, magB float64
	for t := range terms {
		wa := tfA[t] * idf[t]
		wb := tfB[t] * idf[t]
		dot += wa * wb
		magA += wa * wa
		magB += wb * wb
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Centroid returns the element-wise mean of equal-length vectors.
func Centroid(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	centroid := make([]float32, dim)
	for _, e := range embeddings {
		for i, v := range e {
			centroid[i] += v
		}
	}
	n := float32(len(embeddings))
	for i := range centroid {
		centroid[i] /= n
	}
	return centroid
}
