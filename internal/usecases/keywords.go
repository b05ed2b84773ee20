package usecases

import (
	"strings"
	"unicode/utf8"
)

// Keyword heuristics for French factual questions (prices, named offers).

var (
	factualKeywords = []string{"prix", "coûte", "tarif", "€", "euro", "formule", "express", "complet", "burger", "curry", "combien"}

	// The text fallback classifies without "combien".
	fallbackFactualKeywords = []string{"prix", "coûte", "tarif", "€", "euro", "formule", "express", "complet", "burger", "curry"}

	formulaKeywords = []string{"formule", "express", "complète", "complet"}

	// enrichmentTriggers force a text search even when the vector context already mentions a term.
	enrichmentTriggers = []string{"formule", "express"}
)

// TermPolicy controls how search terms are pulled out of a question.
type TermPolicy struct {
	StripPunctuation bool
	MinRunes         int
	MaxTerms         int
	Stopwords        map[string]struct{}
}

var enrichmentStopwords = stopwords("combien", "quel", "quelle", "quels", "quelles", "comment",
	"pourquoi", "quand", "où", "est", "sont", "cest", "pour")

var (
	enrichmentTerms = TermPolicy{
		StripPunctuation: true,
		MinRunes:         3,
		MaxTerms:         3,
		Stopwords:        enrichmentStopwords,
	}
	fallbackTerms = TermPolicy{
		MinRunes:  4,
		MaxTerms:  2,
		Stopwords: stopwords("combien", "quel", "quelle", "quels", "quelles", "comment", "pourquoi", "quand", "où"),
	}
)

func stopwords(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

var punctuation = strings.NewReplacer("?", " ", "!", " ", ".", " ", ",", " ", ";", " ", ":", " ")

// Extract returns up to MaxTerms significant lowercase words of question, in order.
func (p TermPolicy) Extract(question string) []string {
	return p.words(question, p.MaxTerms)
}

// All returns every significant word of question, ignoring MaxTerms.
func (p TermPolicy) All(question string) []string {
	return p.words(question, 0)
}

// words keeps at most max terms; max <= 0 keeps them all.
func (p TermPolicy) words(question string, max int) []string {
	text := strings.ToLower(question)
	if p.StripPunctuation {
		text = punctuation.Replace(text)
	}

	terms := []string{}
	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(word) < p.MinRunes {
			continue
		}
		if _, stop := p.Stopwords[word]; stop {
			continue
		}
		terms = append(terms, word)
		if len(terms) == max {
			break
		}
	}
	return terms
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// IsFactual reports whether a question asks for a specific fact such as a price.
func IsFactual(question string) bool {
	return containsAny(strings.ToLower(question), factualKeywords)
}

func isFallbackFactual(question string) bool {
	return containsAny(strings.ToLower(question), fallbackFactualKeywords)
}

func isFormulaQuestion(question string) bool {
	return containsAny(punctuation.Replace(strings.ToLower(question)), formulaKeywords)
}

// prefixKey is the first n runes of s, used to deduplicate passages.
func prefixKey(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
