package core

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxKeywords bounds extraction when callers pass no limit.
const DefaultMaxKeywords = 20

var wordPattern = regexp.MustCompile(`[a-z0-9][a-z0-9'-]*`)

// KeywordExtractor extracts ranked keyword phrases from free text using
// RAKE-style co-occurrence scoring: stopwords and punctuation delimit
// candidate phrases, each word scores degree/frequency, and a phrase scores
// the sum of its word scores. Stateless across calls.
type KeywordExtractor struct {
	stopwords map[string]bool
}

func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{stopwords: englishStopwords}
}

// Extract returns at most maxKeywords phrases, lowercased, ranked by score
// descending with alphabetical tie-break so the output is deterministic.
// Empty or whitespace-only input yields nil.
func (k *KeywordExtractor) Extract(message string, maxKeywords int) []string {
	if strings.TrimSpace(message) == "" {
		return nil
	}
	if maxKeywords <= 0 {
		maxKeywords = DefaultMaxKeywords
	}

	phrases := k.candidatePhrases(message)
	if len(phrases) == 0 {
		return nil
	}

	// Word scores: degree/frequency. Degree counts co-occurring words in
	// the same phrase, including the word itself.
	freq := make(map[string]float64)
	degree := make(map[string]float64)
	for _, phrase := range phrases {
		for _, w := range phrase {
			freq[w]++
			degree[w] += float64(len(phrase))
		}
	}

	type scored struct {
		phrase string
		score  float64
	}
	seen := make(map[string]bool, len(phrases))
	ranked := make([]scored, 0, len(phrases))
	for _, phrase := range phrases {
		text := strings.Join(phrase, " ")
		if seen[text] {
			continue
		}
		seen[text] = true
		var s float64
		for _, w := range phrase {
			s += degree[w] / freq[w]
		}
		ranked = append(ranked, scored{phrase: text, score: s})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].phrase < ranked[j].phrase
	})

	if len(ranked) > maxKeywords {
		ranked = ranked[:maxKeywords]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.phrase
	}
	return out
}

// candidatePhrases splits the message into runs of content words. Stopwords
// and anything that is not a word act as phrase delimiters.
func (k *KeywordExtractor) candidatePhrases(message string) [][]string {
	var phrases [][]string
	var current []string

	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, current)
			current = nil
		}
	}

	for _, sentence := range splitSentences(strings.ToLower(message)) {
		for _, word := range wordPattern.FindAllString(sentence, -1) {
			if k.stopwords[word] {
				flush()
				continue
			}
			current = append(current, word)
		}
		flush()
	}
	return phrases
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', ',', ';', ':', '\n', '(', ')', '[', ']', '"':
			return true
		}
		return false
	})
}

var englishStopwords = func() map[string]bool {
	words := []string{
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you",
		"you're", "you've", "you'll", "you'd", "your", "yours", "yourself",
		"yourselves", "he", "him", "his", "himself", "she", "she's", "her",
		"hers", "herself", "it", "it's", "its", "itself", "they", "them",
		"their", "theirs", "themselves", "what", "which", "who", "whom",
		"this", "that", "that'll", "these", "those", "am", "is", "are",
		"was", "were", "be", "been", "being", "have", "has", "had",
		"having", "do", "does", "did", "doing", "a", "an", "the", "and",
		"but", "if", "or", "because", "as", "until", "while", "of", "at",
		"by", "for", "with", "about", "against", "between", "into",
		"through", "during", "before", "after", "above", "below", "to",
		"from", "up", "down", "in", "out", "on", "off", "over", "under",
		"again", "further", "then", "once", "here", "there", "when",
		"where", "why", "how", "all", "any", "both", "each", "few", "more",
		"most", "other", "some", "such", "no", "nor", "not", "only", "own",
		"same", "so", "than", "too", "very", "s", "t", "can", "will",
		"just", "don", "don't", "should", "should've", "now", "d", "ll",
		"m", "o", "re", "ve", "y", "ain", "aren", "aren't", "couldn",
		"couldn't", "didn", "didn't", "doesn", "doesn't", "hadn", "hadn't",
		"hasn", "hasn't", "haven", "haven't", "isn", "isn't", "ma",
		"mightn", "mightn't", "mustn", "mustn't", "needn", "needn't",
		"shan", "shan't", "shouldn", "shouldn't", "wasn", "wasn't",
		"weren", "weren't", "won", "won't", "wouldn", "wouldn't", "help",
		"please", "like", "need", "want", "let", "make", "get", "got",
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}()
