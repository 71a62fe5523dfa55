// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-rknn/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold" mapstructure:"iou_threshold"` // Overlap threshold for suppression.
	NumWorkers   int     `json:"num_workers" yaml:"num_workers" mapstructure:"num_workers"`       // Classes suppressed in parallel; <= 1 runs inline.
}

// ApplyNMS filters overlapping candidates using per-class Non-Maximum
// Suppression.
//
// Candidates are grouped by class and each group is suppressed on its own, so
// a box can never suppress a box of another class. Within a group candidates
// are ordered by descending score (ties keep decode order), the best remaining
// one is kept and every other box whose IoU with it exceeds the threshold is
// dropped, until the group is exhausted.
//
// Kept candidates are concatenated by ascending class index; there is no
// re-ranking across classes.
//
// Arguments:
//   - candidates: Candidates in decode order. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - Surviving candidates. If no candidates are provided, returns nil.
func ApplyNMS(candidates []Candidate, config *NMSConfig) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	groups := groupByClass(candidates)
	kept := make([][]Candidate, len(groups))

	if config.NumWorkers <= 1 || len(groups) == 1 {
		for i, g := range groups {
			kept[i] = ApplyGreedyNMS(g, config.IoUThreshold)
		}
	} else {
		// Each worker writes only its own slot of kept.
		var eg errgroup.Group
		eg.SetLimit(config.NumWorkers)
		for i, g := range groups {
			eg.Go(func() error {
				kept[i] = ApplyGreedyNMS(g, config.IoUThreshold)
				return nil
			})
		}
		_ = eg.Wait()
	}

	filtered := make([]Candidate, 0, len(candidates))
	for _, k := range kept {
		filtered = append(filtered, k...)
	}
	return filtered
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression on a single
// group, without looking at classes.
//
// Arguments:
//   - candidates: The group to suppress. It is sorted in place.
//   - iouThreshold: IoU threshold above which overlapping boxes are suppressed.
//
// Returns:
//   - Kept candidates in descending score order.
func ApplyGreedyNMS(candidates []Candidate, iouThreshold float32) []Candidate {
	n := len(candidates)
	if n == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Order < candidates[j].Order
	})

	filtered := make([]Candidate, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := candidates[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, candidates[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}

// groupByClass splits candidates into per-class groups ordered by class
// index. Each group is a fresh slice in decode order.
func groupByClass(candidates []Candidate) [][]Candidate {
	byClass := make(map[int][]Candidate)
	classes := make([]int, 0)
	for _, c := range candidates {
		if _, ok := byClass[c.Class]; !ok {
			classes = append(classes, c.Class)
		}
		byClass[c.Class] = append(byClass[c.Class], c)
	}
	sort.Ints(classes)

	groups := make([][]Candidate, len(classes))
	for i, class := range classes {
		groups[i] = byClass[class]
	}
	return groups
}
