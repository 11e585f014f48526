package match

import (
	"strings"
	"unicode"
)

// Similarity scores two company/product names in [0,1] using a Dice
// coefficient over character bigrams. Bigrams behave sanely for both CJK
// names (no word boundaries) and latin names, which is why no tokenizer is
// involved.
func Similarity(a, b string) float64 {
	ga := bigrams(normalize(a))
	gb := bigrams(normalize(b))
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}

	shared := 0
	for g, n := range ga {
		if m, ok := gb[g]; ok {
			if m < n {
				shared += m
			} else {
				shared += n
			}
		}
	}

	return 2 * float64(shared) / float64(count(ga)+count(gb))
}

func normalize(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func bigrams(runes []rune) map[string]int {
	grams := map[string]int{}
	if len(runes) == 1 {
		grams[string(runes)] = 1
		return grams
	}
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

func count(grams map[string]int) int {
	total := 0
	for _, n := range grams {
		total += n
	}
	return total
}
