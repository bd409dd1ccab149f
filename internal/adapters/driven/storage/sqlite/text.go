package sqlite

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// tokenSet returns the distinct lowercase words of s.
func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func sortedTerms(set map[string]struct{}) []string {
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// ochiai scores the overlap of the query terms with the words of text:
// |Q ∩ T| / sqrt(|Q| * |T|).
func ochiai(query map[string]struct{}, text string) float64 {
	words := tokenSet(text)
	if len(query) == 0 || len(words) == 0 {
		return 0
	}
	shared := 0
	for t := range query {
		if _, ok := words[t]; ok {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(query))*float64(len(words)))
}
