// Package scoring implements the pure ranking primitives: content-importance
// heuristics, recency decay, score fusion, and near-duplicate detection.
// Everything here is synchronous, deterministic, and allocation-light; the
// hybrid retriever calls these on every candidate.
package scoring

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Signals that make a snippet worth ranking higher: hard numbers and
// market-moving event vocabulary.
var (
	currencyPattern = regexp.MustCompile(`(?i)([$¥€£]\s?\d|\d[\d,]*(\.\d+)?\s?(%|亿|万|million|billion|bn|usd|cny|eur))`)
	numericPattern  = regexp.MustCompile(`\d`)

	domainKeywords = []string{
		"earnings", "revenue", "profit", "guidance", "contract", "merger",
		"acquisition", "price target", "dividend", "buyback", "downgrade",
		"upgrade", "ipo", "lawsuit", "tariff", "market share",
		"业绩", "营收", "净利润", "合同", "并购", "目标价", "分红", "回购",
	}
)

// Importance scores text in [0,1] as a weighted sum of three independent
// signals:
//
//   - numeric/currency content: 0.4 for an explicit currency/percent figure,
//     0.2 for a bare number, 0 otherwise
//   - domain keyword hits: min(0.4, hits*0.2)
//   - length band: 0.2 for a substantial snippet (50–500 runes), 0.1 for an
//     adjacent short/long band (20–50 or 500–2000), 0 otherwise
//
// The sum is not renormalized; evidence with figures, event vocabulary, and
// reasonable length legitimately saturates near 1.0.
func Importance(text string) float64 {
	score := numericScore(text)
	score += keywordScore(text)
	score += lengthScore(text)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func numericScore(text string) float64 {
	if currencyPattern.MatchString(text) {
		return 0.4
	}
	if numericPattern.MatchString(text) {
		return 0.2
	}
	return 0
}

func keywordScore(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	s := float64(hits) * 0.2
	if s > 0.4 {
		return 0.4
	}
	return s
}

func lengthScore(text string) float64 {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	switch {
	case n >= 50 && n <= 500:
		return 0.2
	case (n >= 20 && n < 50) || (n > 500 && n <= 2000):
		return 0.1
	default:
		return 0
	}
}
