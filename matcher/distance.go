package matcher

import "github.com/agnivade/levenshtein"

// Distance returns the rune-level edit distance between a and b.
func Distance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// ArtistDistance returns the smallest distance over every pair of source and
// target artists. An empty list behaves like a single empty name.
func ArtistDistance(source, target []string) int {
	if len(source) == 0 {
		source = []string{""}
	}
	if len(target) == 0 {
		target = []string{""}
	}

	best := -1
	for _, s := range source {
		for _, t := range target {
			if d := Distance(s, t); best < 0 || d < best {
				best = d
			}
		}
	}
	return best
}
