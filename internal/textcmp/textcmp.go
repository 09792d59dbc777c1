// Package textcmp provides the three token-sequence comparison metrics used
// by the watchdog: Jaccard similarity, containment ratio, and a positional
// fuzzy includes-score.
//
// Similarity and Containment are set-based and ignore ordering and repeats.
// IncludesScore is sequence-based: it rewards contiguous, order-preserving
// overlap while tolerating reordered fragments and edits.
package textcmp

// Similarity returns the Jaccard index over the token sets of a and b:
// |A∩B| / |A∪B|, with duplicates collapsed. Defined as 0 when both
// sequences are empty, guarding the otherwise undefined division.
func Similarity(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	union := len(setA)
	intersection := 0
	for tok := range setB {
		if _, ok := setA[tok]; ok {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Containment returns the fraction of contained's vocabulary that also
// appears in container, order-independent. Returns 0 when contained is
// empty.
func Containment(container, contained []string) float64 {
	containedSet := toSet(contained)
	if len(containedSet) == 0 {
		return 0
	}

	containerSet := toSet(container)
	shared := 0
	for tok := range containedSet {
		if _, ok := containerSet[tok]; ok {
			shared++
		}
	}

	return float64(shared) / float64(len(containedSet))
}

// IncludesScore measures how well container embeds a near-copy of the
// shorter contained sequence.
//
// For every position i of contained, each position j of container holding
// the same token is tried as an alignment anchor. At an anchor, a window
// spanning the full length of contained is scored: offset k (ranging so
// that i+k stays inside contained) carries weight 1 − |k|/len(contained)
// toward the maximum, and toward the achieved total only when
// container[j+k] equals contained[i+k]; j+k falling outside container
// counts as a mismatch rather than a fault. The per-position score is the
// achieved/maximum ratio at the best-scoring anchor, and the overall score
// is the mean across all positions of contained.
//
// Scores below minimumRelevant collapse to 0.
func IncludesScore(container, contained []string, minimumRelevant float64) float64 {
	n := len(contained)
	if n == 0 || len(container) == 0 {
		return 0
	}

	length := float64(n)
	total := 0.0

	for i := 0; i < n; i++ {
		best := 0.0
		for j := 0; j < len(container); j++ {
			if container[j] != contained[i] {
				continue
			}

			achieved := 0.0
			maximum := 0.0
			for k := -i; k < n-i; k++ {
				weight := 1 - absFloat(float64(k))/length
				maximum += weight
				cj := j + k
				if cj >= 0 && cj < len(container) && container[cj] == contained[i+k] {
					achieved += weight
				}
			}

			if maximum > 0 {
				if score := achieved / maximum; score > best {
					best = score
				}
			}
		}
		total += best
	}

	score := total / length
	if score < minimumRelevant {
		return 0
	}
	return score
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
