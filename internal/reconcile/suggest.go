package reconcile

// NearestName returns the candidate closest to the misspelled name,
// if any is within edit distance 2. Ties go to the lexically-first
// candidate so output stays deterministic.
func NearestName(name string, candidates map[string]bool) (string, bool) {
	const maxDistance = 2

	best := ""
	bestDist := maxDistance + 1
	for cand := range candidates {
		if cand == name {
			continue
		}
		d := editDistance(name, cand)
		if d < bestDist || (d == bestDist && (best == "" || cand < best)) {
			best = cand
			bestDist = d
		}
	}
	if bestDist > maxDistance {
		return "", false
	}
	return best, true
}

func editDistance(a, b string) int {
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
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
