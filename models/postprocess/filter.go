package postprocess

// FilterByConfidence returns the candidates whose score is at least threshold,
// preserving their relative order. The input slice is not modified.
func FilterByConfidence(candidates []Candidate, threshold float32) []Candidate {
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= threshold {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
