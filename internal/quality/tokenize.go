// Package quality implements the Quality Evaluator (C10): word-overlap
// heuristics over tokenized, lowercased, stopword-filtered text, with no LLM
// calls. Structurally grounded on internal/service/selfrag.go's critique
// heuristics, generalized into the full named metric set.
package quality

import "strings"

// stopwords is a fixed English list — small and closed-class, since the
// evaluator only needs to drop function words before a Jaccard/overlap
// computation, not full linguistic stemming.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"he": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "to": true, "was": true,
	"were": true, "will": true, "with": true, "this": true, "these": true,
	"those": true, "but": true, "not": true, "can": true, "did": true,
	"do": true, "does": true, "had": true, "i": true, "if": true, "into": true,
	"no": true, "so": true, "than": true, "then": true, "there": true,
	"they": true, "we": true, "what": true, "when": true, "which": true,
	"who": true, "why": true, "you": true, "your": true, "my": true, "me": true,
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// tokenSet tokenizes and drops stopwords, returning a deduplicated set.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenize(text) {
		if stopwords[t] {
			continue
		}
		set[t] = true
	}
	return set
}

// contentWords tokenizes without stopword filtering removed entirely — used
// where the spec asks for "query content-word tokens" (non-stopword terms).
func contentWords(text string) []string {
	var out []string
	for _, t := range tokenize(text) {
		if stopwords[t] || len(t) == 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// splitSentences splits on '.', '!', '?' followed by a space or the end of
// the text (a newline or tab after the mark does not split), matching
// the teacher's splitAnswerSentences.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 >= len(runes) || runes[i+1] == ' ') {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
