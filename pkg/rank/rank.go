//go:build linux

package rank

import "sort"

// Dimension is one independently enabled hog criterion.
type Dimension struct {
	Enabled   bool
	Threshold uint64 // metric units: mcpus, mrams or diskwait msecs/sec
}

// Criteria configures hog selection across the three dimensions.
type Criteria struct {
	Mem      Dimension
	DiskWait Dimension
	CPU      Dimension

	// MaxTasks is the per-dimension top-N cutoff.
	MaxTasks int
}

// SelectHogs marks, for each enabled dimension, every task that is both
// within the top MaxTasks by that dimension's metric and at or above its
// threshold. Marks accumulate across dimensions. It reports whether any
// task was selected.
//
// The cutoff is applied before the threshold filter: when more than
// MaxTasks tasks exceed a threshold, only the top MaxTasks are considered.
//
// Dimensions are evaluated mem, then diskwait, then CPU, and each
// evaluation re-sorts the slice, so after a call with CPU enabled the
// slice is ordered by descending CPU usage, the intended display order
// when several dimensions are shown together. Ties sort arbitrarily.
func SelectHogs(tasks []Joined, c Criteria) bool {
	limit := min(c.MaxTasks, len(tasks))
	got := false

	mark := func(d Dimension, metric func(*Joined) uint64) {
		if !d.Enabled {
			return
		}
		sort.Slice(tasks, func(i, j int) bool {
			return metric(&tasks[i]) > metric(&tasks[j])
		})
		for i := 0; i < limit; i++ {
			if metric(&tasks[i]) >= d.Threshold {
				tasks[i].Selected = true
				got = true
			}
		}
	}

	mark(c.Mem, func(t *Joined) uint64 { return t.Mrams })
	mark(c.DiskWait, func(t *Joined) uint64 { return t.DiskWait })
	mark(c.CPU, func(t *Joined) uint64 { return t.Mcpus })
	return got
}
