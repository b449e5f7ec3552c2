// Package config holds the hogwatch option set: what to show, how often to
// poll, and the busy and hog thresholds. Options layer as defaults, then an
// optional YAML file, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts YAML values either as Go duration strings ("10s",
// "500ms") or as bare numbers of seconds, possibly fractional.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: parse duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("config: duration must be a string or seconds: %w", err)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Config is the complete option set. Zero values are not useful; start from
// Default and overlay.
type Config struct {
	ShowCPU   bool `yaml:"show_cpu"`
	ShowMem   bool `yaml:"show_mem"`
	ShowBlkIO bool `yaml:"show_blkio"`

	// TaskCounts lists command-name substrings counted in each report
	// header, e.g. "php" or "httpd".
	TaskCounts []string `yaml:"task_counts"`

	// Quiet suppresses the settings display at startup.
	Quiet bool `yaml:"quiet"`

	OuterInterval Duration `yaml:"outer_interval"`
	InnerInterval Duration `yaml:"inner_interval"`

	// Busy predicate thresholds. The host is considered busy when any one
	// of the four system signals exceeds its threshold.
	MinLoadAvg     float64 `yaml:"min_loadavg"`
	MinCPULoadPct  float64 `yaml:"min_cpu_load_pct"`
	MinMemLoadPct  float64 `yaml:"min_mem_load_pct"`
	MinMemPressure int     `yaml:"min_mem_pressure"`

	// Per-task hog thresholds, in the report's display units.
	CPUHogMcpus   uint64 `yaml:"cpu_hog_mcpus"`
	MemHogMrams   uint64 `yaml:"mem_hog_mrams"`
	DiskWaitMsecs uint64 `yaml:"diskwait_msecs"`

	MaxTasks     int `yaml:"max_tasks"`
	CmdlineWidth int `yaml:"cmdline_width"`

	// EMAAlpha smooths the system CPU load signal; 0 disables smoothing.
	EMAAlpha float64 `yaml:"ema_alpha"`

	// Disks lists block device stat files to report on, each as
	// "path,name" (e.g. "/sys/block/sda/stat,sda").
	Disks []string `yaml:"disks"`
}

// Default returns the stock option settings.
func Default() Config {
	return Config{
		OuterInterval:  Duration(10 * time.Second),
		InnerInterval:  Duration(10 * time.Second),
		MinLoadAvg:     5.0,
		MinCPULoadPct:  80.0,
		MinMemLoadPct:  80.0,
		MinMemPressure: 100,
		CPUHogMcpus:    100,
		MemHogMrams:    100,
		DiskWaitMsecs:  100,
		MaxTasks:       10,
		CmdlineWidth:   48,
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize applies the show-something default: with no show option set at
// all, CPU hogs are shown.
func (c *Config) Normalize() {
	if !c.ShowCPU && !c.ShowMem && !c.ShowBlkIO {
		c.ShowCPU = true
	}
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	if c.OuterInterval.Std() < time.Millisecond {
		return fmt.Errorf("%w: outer %v", ErrBadInterval, c.OuterInterval)
	}
	if c.InnerInterval.Std() < time.Millisecond {
		return fmt.Errorf("%w: inner %v", ErrBadInterval, c.InnerInterval)
	}
	if c.MinLoadAvg < 0 {
		return fmt.Errorf("%w: %v", ErrBadLoadAvg, c.MinLoadAvg)
	}
	for _, pct := range []struct {
		name string
		val  float64
	}{
		{"cpu", c.MinCPULoadPct},
		{"mem", c.MinMemLoadPct},
	} {
		if pct.val < 0.1 || pct.val > 100 {
			return fmt.Errorf("%w: %s %v", ErrBadPercent, pct.name, pct.val)
		}
	}
	if c.MinMemPressure < 0 {
		return fmt.Errorf("%w: %d", ErrBadPressure, c.MinMemPressure)
	}
	for _, th := range []struct {
		name string
		val  uint64
	}{
		{"cpu mcpus", c.CPUHogMcpus},
		{"mem mrams", c.MemHogMrams},
		{"diskwait msecs", c.DiskWaitMsecs},
	} {
		if th.val < 1 {
			return fmt.Errorf("%w: %s", ErrBadThreshold, th.name)
		}
	}
	if c.MaxTasks < 1 {
		return fmt.Errorf("%w: %d", ErrBadMaxTasks, c.MaxTasks)
	}
	if c.CmdlineWidth < 2 || c.CmdlineWidth > 1000 {
		return fmt.Errorf("%w: %d", ErrBadWidth, c.CmdlineWidth)
	}
	if c.EMAAlpha < 0 || c.EMAAlpha >= 1 {
		return fmt.Errorf("%w: %v", ErrBadAlpha, c.EMAAlpha)
	}
	for _, spec := range c.Disks {
		path, name, ok := strings.Cut(spec, ",")
		if !ok || path == "" || name == "" {
			return fmt.Errorf("%w: %q", ErrBadDiskSpec, spec)
		}
	}
	return nil
}

// Describe renders the settings display printed at startup.
func (c *Config) Describe() string {
	var b strings.Builder
	b.WriteString("Option settings:\n")
	fmt.Fprintf(&b, "  Show CPU hogs: %v\n", c.ShowCPU)
	fmt.Fprintf(&b, "  Show Mem hogs: %v\n", c.ShowMem)
	fmt.Fprintf(&b, "  Show Block I/O waiters: %v\n", c.ShowBlkIO)
	for _, name := range c.TaskCounts {
		fmt.Fprintf(&b, "  Show count of %s tasks: true\n", name)
	}
	fmt.Fprintf(&b, "  Outerloop time (secs): %.3f\n", c.OuterInterval.Std().Seconds())
	fmt.Fprintf(&b, "  Innerloop time (secs): %.3f\n", c.InnerInterval.Std().Seconds())
	fmt.Fprintf(&b, "  Min busy loadavg: %.3f\n", c.MinLoadAvg)
	fmt.Fprintf(&b, "  Min busy CPU load: %.1f%%\n", c.MinCPULoadPct)
	fmt.Fprintf(&b, "  Min busy Mem load: %.1f%%\n", c.MinMemLoadPct)
	fmt.Fprintf(&b, "  Min busy Cpuset memory pressure: %d\n", c.MinMemPressure)
	fmt.Fprintf(&b, "  Busy tasks (1/1000 of CPU, aka mcpus): %d\n", c.CPUHogMcpus)
	fmt.Fprintf(&b, "  RSS mem hogs (1/1000 of RAM, aka mrams): %d\n", c.MemHogMrams)
	fmt.Fprintf(&b, "  Block I/O waiters (msecs per sec): %d\n", c.DiskWaitMsecs)
	fmt.Fprintf(&b, "  Max number tasks to show: %d\n", c.MaxTasks)
	fmt.Fprintf(&b, "  Length cmdline to display: %d\n", c.CmdlineWidth)
	if len(c.Disks) == 0 {
		b.WriteString("  Show disks: [--disk path,name]\n")
	} else {
		b.WriteString("  Show disks:")
		for _, spec := range c.Disks {
			fmt.Fprintf(&b, " --disk %s", spec)
		}
		b.WriteString("\n")
	}
	b.WriteString("Use --quiet to suppress this settings display.\n\n")
	return b.String()
}
