//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/hogwatch/hogwatch/pkg/config"
	"github.com/hogwatch/hogwatch/pkg/system/cpuset"
	"github.com/hogwatch/hogwatch/pkg/system/disk"
	"github.com/hogwatch/hogwatch/pkg/system/host"
	"github.com/hogwatch/hogwatch/pkg/system/pread"
	"github.com/hogwatch/hogwatch/pkg/system/probe"
	"github.com/hogwatch/hogwatch/pkg/system/proc"
	"github.com/hogwatch/hogwatch/pkg/types"
	"github.com/hogwatch/hogwatch/pkg/ui"
	"github.com/hogwatch/hogwatch/pkg/watchdog"
)

const version = "1.0.0"

type opts struct {
	showCPU   bool
	showMem   bool
	showBlkIO bool
	counts    []string
	quiet     bool

	outer time.Duration
	inner time.Duration

	minLoadAvg float64
	minCPULoad float64
	minMemLoad float64
	minMemPres int
	cpuHogs    uint64
	memHogs    uint64
	diskWait   uint64
	maxTasks   int
	cmdlineLen int
	emaAlpha   float64
	disks      []string
	configPath string
	debug      bool
}

func main() {
	var o opts
	def := config.Default()

	root := &cobra.Command{
		Use:   "hogwatch",
		Short: "Continuous low-overhead watchdog for resource hog tasks",
		Long: `hogwatch quietly watches a few system-wide load signals and, whenever the
host gets busy, snapshots every task to report which ones are hogging the
CPU, memory or disk.

While the system is quiet it prints only a compact time marker per polling
cycle, so weeks of output stay small enough to keep.

Examples:
  hogwatch -C -n 5
  hogwatch -M -B --min-loadavg 2 -d /sys/block/sda/stat,sda
  HOGWATCH_MAX_TASKS=3 hogwatch --config /etc/hogwatch.yaml`,
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, &o)
		},
	}

	f := root.Flags()
	f.BoolVarP(&o.showCPU, "show-cpu", "C", def.ShowCPU, "show CPU hogs")
	f.BoolVarP(&o.showMem, "show-mem", "M", def.ShowMem, "show memory hogs")
	f.BoolVarP(&o.showBlkIO, "show-blkio", "B", def.ShowBlkIO, "show tasks slowed by block I/O waits")
	f.StringArrayVarP(&o.counts, "count", "P", nil, "count tasks whose command contains NAME in each header (repeatable)")
	f.BoolVarP(&o.quiet, "quiet", "Q", def.Quiet, "suppress the settings display at startup")

	f.DurationVarP(&o.outer, "outer-interval", "s", def.OuterInterval.Std(), "polling interval while the system is quiet")
	f.DurationVarP(&o.inner, "inner-interval", "t", def.InnerInterval.Std(), "reporting interval while the system is busy")

	f.Float64VarP(&o.minLoadAvg, "min-loadavg", "p", def.MinLoadAvg, "loadavg above which the system is busy")
	f.Float64VarP(&o.minCPULoad, "min-cpu-load", "c", def.MinCPULoadPct, "CPU load percent above which the system is busy")
	f.Float64VarP(&o.minMemLoad, "min-mem-load", "m", def.MinMemLoadPct, "memory load percent above which the system is busy")
	f.IntVarP(&o.minMemPres, "min-mem-pressure", "u", def.MinMemPressure, "cpuset memory pressure above which the system is busy (0 disables)")

	f.Uint64VarP(&o.cpuHogs, "cpu-hogs", "q", def.CPUHogMcpus, "CPU hog threshold in mcpus (1/1000 of one CPU)")
	f.Uint64VarP(&o.memHogs, "mem-hogs", "r", def.MemHogMrams, "memory hog threshold in mrams (1/1000 of RAM)")
	f.Uint64VarP(&o.diskWait, "diskwait", "b", def.DiskWaitMsecs, "block I/O waiter threshold in msecs waited per second")

	f.IntVarP(&o.maxTasks, "max-tasks", "n", def.MaxTasks, "max tasks to show per report")
	f.IntVarP(&o.cmdlineLen, "cmdline-width", "L", def.CmdlineWidth, "length of cmdline to display")
	f.Float64Var(&o.emaAlpha, "ema", def.EMAAlpha, "EMA alpha for CPU load smoothing (0 disables)")
	f.StringArrayVarP(&o.disks, "disk", "d", nil, "block device stat file to report on, as path,name (repeatable)")
	f.StringVar(&o.configPath, "config", "", "YAML config file")
	f.BoolVar(&o.debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// bindEnv fills in flags not given on the command line from HOGWATCH_*
// environment variables, e.g. HOGWATCH_MAX_TASKS for --max-tasks.
func bindEnv(cmd *cobra.Command) {
	viper.SetEnvPrefix("HOGWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && viper.IsSet(f.Name) {
			_ = cmd.Flags().Set(f.Name, viper.GetString(f.Name))
		}
	})
}

func run(cmd *cobra.Command, o *opts) error {
	lvl := slog.LevelInfo
	if o.debug {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	bindEnv(cmd)

	// Flags given explicitly (or via environment) win over the config file.
	apply := map[string]func(){
		"show-cpu":         func() { cfg.ShowCPU = o.showCPU },
		"show-mem":         func() { cfg.ShowMem = o.showMem },
		"show-blkio":       func() { cfg.ShowBlkIO = o.showBlkIO },
		"count":            func() { cfg.TaskCounts = o.counts },
		"quiet":            func() { cfg.Quiet = o.quiet },
		"outer-interval":   func() { cfg.OuterInterval = config.Duration(o.outer) },
		"inner-interval":   func() { cfg.InnerInterval = config.Duration(o.inner) },
		"min-loadavg":      func() { cfg.MinLoadAvg = o.minLoadAvg },
		"min-cpu-load":     func() { cfg.MinCPULoadPct = o.minCPULoad },
		"min-mem-load":     func() { cfg.MinMemLoadPct = o.minMemLoad },
		"min-mem-pressure": func() { cfg.MinMemPressure = o.minMemPres },
		"cpu-hogs":         func() { cfg.CPUHogMcpus = o.cpuHogs },
		"mem-hogs":         func() { cfg.MemHogMrams = o.memHogs },
		"diskwait":         func() { cfg.DiskWaitMsecs = o.diskWait },
		"max-tasks":        func() { cfg.MaxTasks = o.maxTasks },
		"cmdline-width":    func() { cfg.CmdlineWidth = o.cmdlineLen },
		"ema":              func() { cfg.EMAAlpha = o.emaAlpha },
		"disk":             func() { cfg.Disks = o.disks },
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if fn := apply[f.Name]; fn != nil {
			fn()
		}
	})

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	h := host.New()
	ramKB, err := h.RAMKB()
	if err != nil {
		return err
	}

	if !cfg.Quiet {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Print(ui.Banner())
		}
		var u unix.Utsname
		if err := unix.Uname(&u); err == nil {
			fmt.Printf("Host: %s\nKernel: %s\nCPUs: %d\nMem: %s\n\n",
				unix.ByteSliceToString(u.Nodename[:]),
				unix.ByteSliceToString(u.Release[:]),
				h.NumCPU(), types.FromKB(ramKB).Humanized())
		}
		fmt.Print(cfg.Describe())
	}

	monitors := make([]*disk.Monitor, 0, len(cfg.Disks))
	for _, spec := range cfg.Disks {
		m, err := disk.ParseMonitor(spec)
		if err != nil {
			return err
		}
		monitors = append(monitors, m)
	}

	pool := pread.NewPool()
	w := watchdog.New(cfg, watchdog.Deps{
		Signals:  probe.New(pool, probe.DefaultPaths(), cfg.EMAAlpha, logger),
		Pressure: cpuset.New(pool, logger),
		Tasks:    proc.NewReader("", h),
		Disks:    disk.NewSet(monitors),
		ProcRoot: "/proc",
		NumCPU:   h.NumCPU(),
		Out:      os.Stdout,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return w.Run(ctx)
}
