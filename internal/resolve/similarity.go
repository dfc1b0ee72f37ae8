package resolve

import "strings"

// DefaultSimilarityThreshold is the score at or above which two normalized
// names are treated as the same record during the fuzzy pre-check.
const DefaultSimilarityThreshold = 0.85

// containmentWeight discounts the overlap coefficient so full containment
// ("salesforce" inside "salesforce crm") clears the default threshold while
// still ranking below an exact match.
const containmentWeight = 0.9

// Similarity scores how alike two normalized names are, in [0, 1]. It blends
// three views of the strings and keeps the strongest signal:
//
//   - a token-set ratio (Dice coefficient over unique whitespace tokens),
//     which is insensitive to word order and catches "crm salesforce" vs
//     "salesforce crm";
//   - a Levenshtein ratio over the full strings, which catches single-word
//     names with character-level drift;
//   - a discounted overlap coefficient, which catches one name extending the
//     other with qualifier tokens ("salesforce crm" vs "salesforce") without
//     pulling half-overlapping product lines ("sap erp" vs
//     "sap successfactors") over the threshold.
//
// Deterministic: no randomness, no tie-breaking by iteration order.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	score := tokenSetRatio(a, b)
	if edit := levenshteinRatio(a, b); edit > score {
		score = edit
	}
	if contain := containmentWeight * overlapCoefficient(a, b); contain > score {
		score = contain
	}
	return score
}

// tokenSetRatio is 2·|A∩B| / (|A|+|B|) over the unique tokens of each name.
func tokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var common int
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(setA)+len(setB))
}

// overlapCoefficient is |A∩B| / min(|A|, |B|) over the unique tokens of each
// name: 1.0 when the smaller token set is fully contained in the larger.
func overlapCoefficient(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var common int
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			common++
		}
	}
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(common) / float64(smaller)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// levenshteinRatio is 1 − distance/maxLen over runes.
func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with the two-row DP, O(len(a)·len(b))
// time and O(len(b)) space.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
