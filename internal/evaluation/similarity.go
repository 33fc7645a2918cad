package evaluation

import (
	"math"
	"strings"
	"unicode"
)

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywordOverlap is Jaccard similarity over the token sets of both
// texts.
func keywordOverlap(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// ngramOverlap averages unigram and bigram precision of the candidate
// against the reference. Bigrams fall back to unigram precision when
// the candidate is a single token.
func ngramOverlap(reference, candidate string) float64 {
	ref1, cand1 := ngrams(reference, 1), ngrams(candidate, 1)
	if len(cand1) == 0 {
		return 0
	}
	p1 := precision(cand1, ref1)

	ref2, cand2 := ngrams(reference, 2), ngrams(candidate, 2)
	p2 := p1
	if len(cand2) > 0 {
		p2 = precision(cand2, ref2)
	}
	return (p1 + p2) / 2
}

func precision(candidate, reference map[string]bool) float64 {
	hit := 0
	for g := range candidate {
		if reference[g] {
			hit++
		}
	}
	return float64(hit) / float64(len(candidate))
}

func tokenSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, t := range tokens(text) {
		out[t] = true
	}
	return out
}

func ngrams(text string, n int) map[string]bool {
	toks := tokens(text)
	out := map[string]bool{}
	for i := 0; i+n <= len(toks); i++ {
		out[strings.Join(toks[i:i+n], " ")] = true
	}
	return out
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
