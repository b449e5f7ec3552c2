//go:build linux

package watchdog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hogwatch/hogwatch/pkg/config"
	"github.com/hogwatch/hogwatch/pkg/system/proc"
)

// fakeSignals scripts the loadavg readings; CPU and memory load stay zero.
// onLoad hooks fire before the n-th LoadAvg call returns, counted from 1.
type fakeSignals struct {
	loads  []float64
	n      int
	onLoad map[int]func()
}

func (f *fakeSignals) LoadAvg() (float64, error) {
	f.n++
	if fn := f.onLoad[f.n]; fn != nil {
		fn()
	}
	if f.n <= len(f.loads) {
		return f.loads[f.n-1], nil
	}
	return f.loads[len(f.loads)-1], nil
}

func (f *fakeSignals) CPULoad() (float64, error) { return 0, nil }
func (f *fakeSignals) MemLoad() (float64, error) { return 0, nil }

type fakeTasks struct {
	snaps []*proc.Snapshot
	n     int
	err   error
}

func (f *fakeTasks) Snapshot() (*proc.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.snaps[f.n]
	f.n++
	return s, nil
}

type fakeDisks struct {
	out string
	n   int
}

func (f *fakeDisks) Sample() (string, error) {
	f.n++
	return f.out, nil
}

type fakePressure struct {
	vals []int
	n    int
}

func (f *fakePressure) Read() (int, error) {
	f.n++
	if f.n <= len(f.vals) {
		return f.vals[f.n-1], nil
	}
	return f.vals[len(f.vals)-1], nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ShowCPU = true
	cfg.OuterInterval = config.Duration(2 * time.Millisecond)
	cfg.InnerInterval = config.Duration(2 * time.Millisecond)
	cfg.MinMemPressure = 0
	cfg.CPUHogMcpus = 50
	cfg.CmdlineWidth = 10
	return cfg
}

func testSnapshots() []*proc.Snapshot {
	t0 := time.Unix(1_700_000_000, 0)
	return []*proc.Snapshot{
		{
			TakenAt: t0,
			Tasks: []proc.TaskUsage{
				{PID: 42, Cmd: "stress", CPUMsecs: 9000},
				{PID: 50, Cmd: "idleproc", CPUMsecs: 100},
			},
		},
		{
			TakenAt: t0.Add(10 * time.Second),
			Tasks: []proc.TaskUsage{
				{PID: 42, Cmd: "stress", CPUMsecs: 9700, RSSMrams: 5},
				{PID: 50, Cmd: "idleproc", CPUMsecs: 120},
			},
		},
	}
}

func TestRun_QuietToActiveCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.TaskCounts = []string{"stress"}

	sigs := &fakeSignals{
		// Busy on the first quiet-phase check, calm on the inner-loop
		// re-check, then calm again while the test shuts the loop down.
		loads:  []float64{10, 1, 1},
		onLoad: map[int]func(){3: cancel},
	}
	tasks := &fakeTasks{snaps: testSnapshots()}
	disks := &fakeDisks{out: "; diskusage sda:7"}
	pres := &fakePressure{vals: []int{999}}

	var out bytes.Buffer
	w := New(cfg, Deps{
		Signals:  sigs,
		Pressure: pres,
		Tasks:    tasks,
		Disks:    disks,
		ProcRoot: t.TempDir(),
		NumCPU:   1,
		Out:      &out,
		Now:      func() time.Time { return time.Unix(12345678, 0) },
	})
	require.NoError(t, w.Run(ctx))

	s := out.String()
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("12345678.5678.\n")),
		"quiet phase emits the full start marker then a short marker, got %q", s)
	assert.Contains(t, s,
		" - loadavg 10.00; CPU load   0%; Mem load  0%; Mem pres    0; cnt stress  1; diskusage sda:7\n")

	// 700 CPU msecs over the 10 seconds between snapshots: 70 mcpus.
	wantRow := fmt.Sprintf("    %8d  %16s  %10d  %10d  %10d  %-s\n",
		42, "stress", 70, 5, 0, fmt.Sprintf("%*s", 10, "<unknown>"))
	assert.Contains(t, s, wantRow)
	assert.NotContains(t, s, "idleproc", "2 mcpus is below the hog threshold")

	assert.Equal(t, 2, tasks.n, "one prior and one latest snapshot")
	assert.Equal(t, 3, disks.n, "startup priming, active warm-up, one report")
	assert.Zero(t, pres.n, "a zero pressure threshold disables the probe")
}

func TestRun_NoHogsNote(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.CPUHogMcpus = 10000

	sigs := &fakeSignals{loads: []float64{10, 1, 1}, onLoad: map[int]func(){3: cancel}}
	var out bytes.Buffer
	w := New(cfg, Deps{
		Signals:  sigs,
		Pressure: &fakePressure{vals: []int{0}},
		Tasks:    &fakeTasks{snaps: testSnapshots()},
		Disks:    &fakeDisks{},
		ProcRoot: t.TempDir(),
		NumCPU:   1,
		Out:      &out,
	})
	require.NoError(t, w.Run(ctx))

	assert.Contains(t, out.String(), " - no individual tasks are hogs.\n")
	assert.NotContains(t, out.String(), "cmdline", "empty hog list skips the table header")
}

func TestRun_PressureSignalTripsPredicate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.MinMemPressure = 100

	sigs := &fakeSignals{loads: []float64{1}, onLoad: map[int]func(){3: cancel}}
	pres := &fakePressure{vals: []int{150, 0, 0}}
	var out bytes.Buffer
	w := New(cfg, Deps{
		Signals:  sigs,
		Pressure: pres,
		Tasks:    &fakeTasks{snaps: testSnapshots()},
		Disks:    &fakeDisks{},
		ProcRoot: t.TempDir(),
		NumCPU:   1,
		Out:      &out,
	})
	require.NoError(t, w.Run(ctx))

	assert.Contains(t, out.String(), "Mem pres  150")
	assert.Equal(t, 3, pres.n)
}

func TestRun_SnapshotErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	sigs := &fakeSignals{loads: []float64{10}}
	w := New(testConfig(), Deps{
		Signals:  sigs,
		Pressure: &fakePressure{vals: []int{0}},
		Tasks:    &fakeTasks{err: boom},
		Disks:    &fakeDisks{},
		Out:      &bytes.Buffer{},
	})
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestRun_CancelDuringQuietPhase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := &fakeSignals{loads: []float64{1}, onLoad: map[int]func(){2: cancel}}
	var out bytes.Buffer
	w := New(testConfig(), Deps{
		Signals:  sigs,
		Pressure: &fakePressure{vals: []int{0}},
		Tasks:    &fakeTasks{},
		Disks:    &fakeDisks{},
		Out:      &out,
	})
	require.NoError(t, w.Run(ctx))
	assert.NotContains(t, out.String(), "loadavg", "never went active")
}

func TestTaskCount(t *testing.T) {
	s := &proc.Snapshot{Tasks: []proc.TaskUsage{
		{Cmd: "php-fpm"}, {Cmd: "php"}, {Cmd: "httpd"}, {Cmd: "bash"},
	}}
	assert.Equal(t, 2, taskCount(s, "php"))
	assert.Equal(t, 1, taskCount(s, "httpd"))
	assert.Zero(t, taskCount(s, "postgres"))
}
