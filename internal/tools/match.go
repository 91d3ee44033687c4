package tools

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	// MatchThreshold is the minimum similarity a candidate needs.
	MatchThreshold = 0.6
	// MatchLimit caps the candidates returned.
	MatchLimit = 5
)

// Candidate is a canonical region name and its similarity to the query.
type Candidate struct {
	RegionName string  `json:"region_name"`
	Score      float64 `json:"score"`
}

// MatchRegions ranks names by similarity to query, keeping those at or
// above MatchThreshold, best first, at most MatchLimit.
func MatchRegions(query string, names []string) []Candidate {
	q := normalizeRegion(query)
	if q == "" {
		return []Candidate{}
	}

	out := []Candidate{}
	for _, name := range names {
		score := similarity(q, normalizeRegion(name))
		if score >= MatchThreshold {
			out = append(out, Candidate{RegionName: name, Score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].RegionName < out[j].RegionName
	})
	if len(out) > MatchLimit {
		out = out[:MatchLimit]
	}
	return out
}

// similarity is 1 minus the edit distance over the longer length. A
// whole-word containment ("Westminster" in "City of Westminster") scores
// at least 0.8.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}

	score := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
	if containsWords(a, b) || containsWords(b, a) {
		score = max(score, 0.8)
	}
	return score
}

func containsWords(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

func normalizeRegion(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", " ", ",", " ", ".", " ", "&", " and ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
