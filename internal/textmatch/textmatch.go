// Package textmatch decides whether a discovered product label refers
// to one of the configured target names. Storefront listings rarely
// reproduce a product name exactly, so matching is layered: exact
// normalized equality, containment, token overlap, then a bigram
// similarity fallback.
package textmatch

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultThreshold is the similarity cutoff for the fallback rule.
const DefaultThreshold = 0.5

// Result is one match decision.
type Result struct {
	Matched     bool
	Score       float64
	MatchedName string
}

// Candidate is a scored label retained for diagnostics when a listing
// scan fails to match anything.
type Candidate struct {
	Label          string  `json:"label"`
	Score          float64 `json:"score"`
	MatchedAgainst string  `json:"matched_against"`
}

// Normalize lower-cases, replaces every non-alphanumeric run with a
// single space and trims the result.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Match compares a candidate label against the target names in order.
// The first target satisfying the exact, containment or token-overlap
// rule wins; only the similarity fallback considers all targets before
// concluding.
func Match(label string, targets []string, threshold float64) Result {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	nl := Normalize(label)
	if nl == "" {
		return Result{}
	}

	for _, target := range targets {
		nt := Normalize(target)
		if nt == "" {
			continue
		}
		if nl == nt {
			return Result{Matched: true, Score: 1.0, MatchedName: target}
		}
		if strings.Contains(nl, nt) || strings.Contains(nt, nl) {
			return Result{Matched: true, Score: 0.9, MatchedName: target}
		}
		if tokenOverlap(nl, nt) {
			return Result{Matched: true, Score: 0.8, MatchedName: target}
		}
	}

	var best float64
	var bestTarget string
	for _, target := range targets {
		score := Similarity(nl, Normalize(target))
		if score > best {
			best = score
			bestTarget = target
		}
	}
	if best >= threshold {
		return Result{Matched: true, Score: best, MatchedName: bestTarget}
	}
	return Result{Score: best}
}

// tokenOverlap reports whether at least 70% of the target's significant
// words (longer than 2 runes) appear as substrings of the candidate's
// words.
func tokenOverlap(candidate, target string) bool {
	candidateWords := strings.Fields(candidate)
	var significant, found int
	for _, tw := range strings.Fields(target) {
		if len([]rune(tw)) <= 2 {
			continue
		}
		significant++
		for _, cw := range candidateWords {
			if strings.Contains(cw, tw) {
				found++
				break
			}
		}
	}
	if significant == 0 {
		return false
	}
	return float64(found)/float64(significant) >= 0.7
}

// Similarity is the Sørensen–Dice coefficient over character bigrams of
// the two strings. Inputs are expected normalized.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	overlap := 0
	for g, n := range ba {
		if m, ok := bb[g]; ok {
			if m < n {
				overlap += m
			} else {
				overlap += n
			}
		}
	}
	total := 0
	for _, n := range ba {
		total += n
	}
	for _, n := range bb {
		total += n
	}
	return 2 * float64(overlap) / float64(total)
}

func bigrams(s string) map[string]int {
	runes := []rune(s)
	grams := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

// BestScore computes the best score any rule produces for the label
// against any target. Used for candidate ranking only, never for match
// decisions.
func BestScore(label string, targets []string) (float64, string) {
	nl := Normalize(label)
	var best float64
	var bestTarget string
	for _, target := range targets {
		nt := Normalize(target)
		if nt == "" {
			continue
		}
		var score float64
		switch {
		case nl == nt:
			score = 1.0
		case strings.Contains(nl, nt) || strings.Contains(nt, nl):
			score = 0.9
		case tokenOverlap(nl, nt):
			score = 0.8
		default:
			score = Similarity(nl, nt)
		}
		if score > best {
			best = score
			bestTarget = target
		}
	}
	return best, bestTarget
}

// Rank returns the top n labels by best score, descending. Ties keep
// listing order.
func Rank(labels, targets []string, n int) []Candidate {
	candidates := make([]Candidate, 0, len(labels))
	for _, label := range labels {
		score, target := BestScore(label, targets)
		candidates = append(candidates, Candidate{Label: label, Score: score, MatchedAgainst: target})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
