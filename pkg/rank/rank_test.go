//go:build linux

package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpuTasks(rates ...uint64) []Joined {
	out := make([]Joined, len(rates))
	for i, r := range rates {
		out[i] = Joined{PID: i + 1, Mcpus: r}
	}
	return out
}

func selectedPIDs(tasks []Joined) map[int]bool {
	out := map[int]bool{}
	for _, t := range tasks {
		if t.Selected {
			out[t.PID] = true
		}
	}
	return out
}

func TestSelectHogs_TopNThenThreshold(t *testing.T) {
	// Rates [50, 200, 10, 999, 5], N=3, threshold=100: only 999 and 200
	// qualify. 50 ranks within the top 3 but is below threshold.
	tasks := cpuTasks(50, 200, 10, 999, 5)
	got := SelectHogs(tasks, Criteria{
		CPU:      Dimension{Enabled: true, Threshold: 100},
		MaxTasks: 3,
	})
	assert.True(t, got)

	var rates []uint64
	for _, tk := range tasks {
		if tk.Selected {
			rates = append(rates, tk.Mcpus)
		}
	}
	require.Len(t, rates, 2)
	assert.ElementsMatch(t, []uint64{999, 200}, rates)
}

func TestSelectHogs_TruncateBeforeFilter(t *testing.T) {
	// Five tasks above threshold but N=2: only the top two are considered.
	tasks := cpuTasks(500, 400, 300, 200, 150)
	got := SelectHogs(tasks, Criteria{
		CPU:      Dimension{Enabled: true, Threshold: 100},
		MaxTasks: 2,
	})
	assert.True(t, got)
	assert.Len(t, selectedPIDs(tasks), 2)
}

func TestSelectHogs_NoneQualify(t *testing.T) {
	tasks := cpuTasks(50, 10, 5)
	got := SelectHogs(tasks, Criteria{
		CPU:      Dimension{Enabled: true, Threshold: 100},
		MaxTasks: 10,
	})
	assert.False(t, got)
	assert.Empty(t, selectedPIDs(tasks))
}

func TestSelectHogs_MarksAccumulateAcrossDimensions(t *testing.T) {
	tasks := []Joined{
		{PID: 1, Mcpus: 900, Mrams: 5},   // CPU hog only
		{PID: 2, Mcpus: 10, Mrams: 800},  // mem hog only
		{PID: 3, Mcpus: 500, Mrams: 500}, // both
		{PID: 4, Mcpus: 1, Mrams: 1},     // neither
	}
	got := SelectHogs(tasks, Criteria{
		Mem:      Dimension{Enabled: true, Threshold: 100},
		CPU:      Dimension{Enabled: true, Threshold: 100},
		MaxTasks: 10,
	})
	assert.True(t, got)
	sel := selectedPIDs(tasks)
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, sel)
}

func TestSelectHogs_FinalOrderIsDescendingCPU(t *testing.T) {
	tasks := []Joined{
		{PID: 1, Mcpus: 100, Mrams: 900},
		{PID: 2, Mcpus: 300, Mrams: 100},
		{PID: 3, Mcpus: 200, Mrams: 500},
	}
	SelectHogs(tasks, Criteria{
		Mem:      Dimension{Enabled: true, Threshold: 50},
		CPU:      Dimension{Enabled: true, Threshold: 50},
		MaxTasks: 10,
	})
	// CPU is evaluated last, so the slice ends up CPU-ordered for display.
	assert.Equal(t, []int{2, 3, 1}, []int{tasks[0].PID, tasks[1].PID, tasks[2].PID})
}

func TestSelectHogs_DisabledDimensionsIgnored(t *testing.T) {
	tasks := cpuTasks(999, 888)
	got := SelectHogs(tasks, Criteria{
		CPU:      Dimension{Enabled: false, Threshold: 1},
		MaxTasks: 10,
	})
	assert.False(t, got)
}
