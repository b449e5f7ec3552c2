//go:build linux

// Package watchdog runs the two-phase polling loop: a cheap quiet phase that
// watches a few system-wide signals, and an active phase that snapshots every
// task and reports the resource hogs until the system calms down again.
package watchdog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hogwatch/hogwatch/pkg/config"
	"github.com/hogwatch/hogwatch/pkg/rank"
	"github.com/hogwatch/hogwatch/pkg/system/proc"
)

// Signals reads the system-wide load indicators checked every polling cycle.
type Signals interface {
	LoadAvg() (float64, error)
	CPULoad() (float64, error)
	MemLoad() (float64, error)
}

// PressureReader reads the cpuset memory pressure value.
type PressureReader interface {
	Read() (int, error)
}

// Snapshotter captures per-task usage for every running process.
type Snapshotter interface {
	Snapshot() (*proc.Snapshot, error)
}

// DiskSampler renders the per-device queue-time suffix for a report header.
type DiskSampler interface {
	Sample() (string, error)
}

// Deps carries the watchdog's collaborators. Out, Logger, NumCPU and Now get
// sensible defaults when left zero.
type Deps struct {
	Signals  Signals
	Pressure PressureReader
	Tasks    Snapshotter
	Disks    DiskSampler

	// ProcRoot is where per-task cmdline files live, normally /proc.
	ProcRoot string
	NumCPU   int

	Out    io.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

// Watchdog is the polling state machine.
type Watchdog struct {
	cfg  config.Config
	deps Deps
}

func New(cfg config.Config, deps Deps) *Watchdog {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NumCPU < 1 {
		deps.NumCPU = 1
	}
	if deps.ProcRoot == "" {
		deps.ProcRoot = "/proc"
	}
	return &Watchdog{cfg: cfg, deps: deps}
}

// signals is one reading of the four busy indicators. cpu and mem are
// fractions in [0, 1].
type signals struct {
	loadAvg float64
	cpu     float64
	mem     float64
	pres    int
}

func (w *Watchdog) readSignals() (signals, error) {
	var s signals
	var err error
	if s.loadAvg, err = w.deps.Signals.LoadAvg(); err != nil {
		return s, err
	}
	if s.cpu, err = w.deps.Signals.CPULoad(); err != nil {
		return s, err
	}
	if s.mem, err = w.deps.Signals.MemLoad(); err != nil {
		return s, err
	}
	// A zero pressure threshold disables the pressure signal entirely, so
	// the probe (and its cpuset mount discovery) is never touched.
	if w.cfg.MinMemPressure > 0 {
		if s.pres, err = w.deps.Pressure.Read(); err != nil {
			return s, err
		}
	}
	return s, nil
}

// loaded is the busy predicate: any one signal over its threshold.
func (w *Watchdog) loaded(s signals) bool {
	return s.loadAvg > w.cfg.MinLoadAvg ||
		100*s.cpu > w.cfg.MinCPULoadPct ||
		100*s.mem > w.cfg.MinMemLoadPct ||
		s.pres > w.cfg.MinMemPressure
}

// sleep waits for d or for cancellation, whichever comes first.
func (w *Watchdog) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run drives the quiet/active loop until the context is canceled, which is
// the normal, graceful way to stop. Any probe or parse failure is fatal and
// returned.
//
// The quiet phase prints a compact time marker each cycle so that a scrolled
// log still shows when the watchdog was alive but idle. The first marker of
// each quiet phase is the full Unix time; later markers keep only the last
// four digits.
func (w *Watchdog) Run(ctx context.Context) error {
	// Prime the CPU counters and exercise the disk specs once so that a
	// mistyped stat path fails at startup, not minutes later.
	if _, err := w.deps.Signals.CPULoad(); err != nil {
		return err
	}
	if _, err := w.deps.Disks.Sample(); err != nil {
		return err
	}

	outer := w.cfg.OuterInterval.Std()
	inner := w.cfg.InnerInterval.Std()

	for {
		fmt.Fprintf(w.deps.Out, "%d.", w.deps.Now().Unix())

		var sig signals
		for {
			fmt.Fprintf(w.deps.Out, "%d.", w.deps.Now().Unix()%10000)
			if err := w.sleep(ctx, outer); err != nil {
				return nil
			}
			var err error
			if sig, err = w.readSignals(); err != nil {
				return err
			}
			if w.loaded(sig) {
				break
			}
		}
		fmt.Fprintln(w.deps.Out)
		w.deps.Logger.Debug("system busy, watching tasks",
			"loadavg", sig.loadAvg, "cpu", sig.cpu, "mem", sig.mem, "pressure", sig.pres)

		// Rates need two consecutive snapshots. Take the first one and a
		// disk baseline now, then sleep before the first report.
		prior, err := w.deps.Tasks.Snapshot()
		if err != nil {
			return err
		}
		if _, err := w.deps.Disks.Sample(); err != nil {
			return err
		}
		if err := w.sleep(ctx, min(outer, inner)); err != nil {
			return nil
		}

		for {
			latest, err := w.deps.Tasks.Snapshot()
			if err != nil {
				return err
			}
			dsk, err := w.deps.Disks.Sample()
			if err != nil {
				return err
			}
			if err := w.report(prior, latest, sig, dsk); err != nil {
				return err
			}
			prior = latest

			if err := w.sleep(ctx, inner); err != nil {
				return nil
			}
			if sig, err = w.readSignals(); err != nil {
				return err
			}
			if !w.loaded(sig) {
				break
			}
		}
		w.deps.Logger.Debug("system quiet again")
	}
}

func (w *Watchdog) criteria() rank.Criteria {
	return rank.Criteria{
		Mem:      rank.Dimension{Enabled: w.cfg.ShowMem, Threshold: w.cfg.MemHogMrams},
		DiskWait: rank.Dimension{Enabled: w.cfg.ShowBlkIO, Threshold: w.cfg.DiskWaitMsecs},
		CPU:      rank.Dimension{Enabled: w.cfg.ShowCPU, Threshold: w.cfg.CPUHogMcpus},
		MaxTasks: w.cfg.MaxTasks,
	}
}

// report writes one header line, then either the hog table or a short note
// that nothing stood out.
func (w *Watchdog) report(prior, latest *proc.Snapshot, sig signals, dsk string) error {
	elapsed := latest.TakenAt.Sub(prior.TakenAt).Seconds()
	joined, err := rank.Join(prior, latest, elapsed, w.deps.NumCPU)
	if err != nil {
		return err
	}

	fmt.Fprintf(w.deps.Out,
		"\n%s - loadavg %5.2f; CPU load %3.0f%%; Mem load %2.0f%%; Mem pres %4d",
		w.deps.Now().Format(time.ANSIC),
		sig.loadAvg, 100*sig.cpu, 100*sig.mem, sig.pres)
	for _, name := range w.cfg.TaskCounts {
		fmt.Fprintf(w.deps.Out, "; cnt %s %2d", name, taskCount(latest, name))
	}
	fmt.Fprint(w.deps.Out, dsk)

	if !rank.SelectHogs(joined, w.criteria()) {
		fmt.Fprint(w.deps.Out, " - no individual tasks are hogs.\n")
		return nil
	}
	fmt.Fprint(w.deps.Out, "\n")

	fmt.Fprintf(w.deps.Out, "    %8s  %16s  %10s  %10s  %10s  %-s\n",
		"pid", "cmd", "mcpus", "mrams", "diskwait", "cmdline")
	for i := range joined {
		j := &joined[i]
		if !j.Selected {
			continue
		}
		fmt.Fprintf(w.deps.Out, "    %8d  %16s  %10d  %10d  %10d  %-s\n",
			j.PID, j.Cmd, j.Mcpus, j.Mrams, j.DiskWait,
			proc.Cmdline(w.deps.ProcRoot, j.PID, w.cfg.CmdlineWidth))
	}
	return nil
}

// taskCount counts tasks whose command name contains name.
func taskCount(s *proc.Snapshot, name string) int {
	n := 0
	for i := range s.Tasks {
		if strings.Contains(s.Tasks[i].Cmd, name) {
			n++
		}
	}
	return n
}
