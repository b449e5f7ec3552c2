//go:build linux

package probe

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hogwatch/hogwatch/pkg/system/pread"
	"github.com/hogwatch/hogwatch/pkg/system/util"
)

// Paths locates the system-wide resource pseudo-files.
type Paths struct {
	LoadAvg string
	Stat    string
	Meminfo string
}

func DefaultPaths() Paths {
	return Paths{
		LoadAvg: "/proc/loadavg",
		Stat:    "/proc/stat",
		Meminfo: "/proc/meminfo",
	}
}

// Probes reads the cheap system-wide signals sampled on every polling tick:
// load average, aggregate CPU utilization and memory utilization.
//
// File handles are resolved lazily on first use and cached for the process
// lifetime through a pread.Pool. Probes is not safe for concurrent use; the
// polling loop is single-threaded.
type Probes struct {
	pool   *pread.Pool
	paths  Paths
	logger *slog.Logger

	loadavg *pread.File
	stat    *pread.File
	meminfo *pread.File

	// CPU ratio state. The first call primes these and reports 0.
	primed     bool
	prevActive uint64
	prevTotal  uint64
	ema        *util.EMA
}

// New builds Probes over pool. emaAlpha > 0 enables EMA smoothing of the
// CPU ratio (0 disables it, matching the raw delta ratio).
func New(pool *pread.Pool, paths Paths, emaAlpha float64, logger *slog.Logger) *Probes {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Probes{pool: pool, paths: paths, logger: logger}
	if emaAlpha > 0 {
		p.ema = util.NewEMA(util.Clamp01(emaAlpha))
	}
	return p
}

func (p *Probes) file(fp **pread.File, path string) (*pread.File, error) {
	if *fp == nil {
		f, err := p.pool.Open(path)
		if err != nil {
			return nil, err
		}
		*fp = f
	}
	return *fp, nil
}

// LoadAvg returns the one-minute load average, the first field of the
// load-average pseudo-file. Any failure here is fatal; the file is assumed
// always present.
func (p *Probes) LoadAvg() (float64, error) {
	f, err := p.file(&p.loadavg, p.paths.LoadAvg)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 32)
	n, err := f.ReadZero(buf)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %s", ErrShortRead, p.paths.LoadAvg)
	}
	fs := strings.Fields(string(buf[:n]))
	if len(fs) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrShortRead, p.paths.LoadAvg)
	}
	v, err := strconv.ParseFloat(fs[0], 64)
	if err != nil {
		return 0, fmt.Errorf("probe: parse loadavg: %w", err)
	}
	return v, nil
}

// CPULoad returns the fraction [0,1] of non-idle CPU ticks since the
// previous call. The first call only establishes the baseline and returns 0.
// Shrinking cumulative counters are reported as a diagnostic and yield 0
// rather than an error.
func (p *Probes) CPULoad() (float64, error) {
	active, total, err := p.cumulativeCPU()
	if err != nil {
		return 0, err
	}
	if !p.primed {
		p.primed = true
		p.prevActive, p.prevTotal = active, total
		return 0, nil
	}
	if active < p.prevActive || total < p.prevTotal {
		p.logger.Warn("cpu tick counters shrank",
			"prev_active", p.prevActive, "active", active,
			"prev_total", p.prevTotal, "total", total)
		return 0, nil
	}

	deltaActive := active - p.prevActive
	deltaTotal := total - p.prevTotal
	p.prevActive, p.prevTotal = active, total

	// Rapid successive calls can see a zero total delta; active is bounded
	// by total, so that reads as zero load.
	load := util.SafeDiv(float64(deltaActive), float64(deltaTotal))
	if p.ema != nil {
		load = util.Clamp01(p.ema.Next(load))
	}
	return load, nil
}

// cumulativeCPU reads the first line of the stat pseudo-file: a literal
// "cpu" tag then the tick counters. Total is the sum of all counters, idle
// is the 4th.
func (p *Probes) cumulativeCPU() (active, total uint64, err error) {
	f, err := p.file(&p.stat, p.paths.Stat)
	if err != nil {
		return 0, 0, err
	}
	buf := make([]byte, 256)
	n, err := f.ReadZero(buf)
	if err != nil {
		return 0, 0, err
	}
	if n < 5 {
		return 0, 0, fmt.Errorf("%w: %s", ErrShortRead, p.paths.Stat)
	}
	line := string(buf[:n])
	if !strings.HasPrefix(line, "cpu ") {
		return 0, 0, fmt.Errorf("%w: first line not cpu", ErrCPUFormat)
	}
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	} else {
		return 0, 0, fmt.Errorf("%w: first line too long", ErrCPUFormat)
	}

	var sum, idle uint64
	fld := 0
	for _, tok := range strings.Fields(line) {
		if tok[0] < '0' || tok[0] > '9' {
			continue // the "cpu" tag
		}
		v, perr := strconv.ParseUint(tok, 10, 64)
		if perr != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrCPUFormat, perr)
		}
		fld++
		if fld == 4 {
			idle = v
		}
		sum += v
	}
	if fld < 4 {
		return 0, 0, fmt.Errorf("%w: only %d tick fields", ErrCPUFormat, fld)
	}
	return sum - idle, sum, nil
}

// MemLoad returns (MemTotal - MemAvailable) / MemTotal from the meminfo
// pseudo-file: the fraction of RAM that could not easily be repurposed.
func (p *Probes) MemLoad() (float64, error) {
	f, err := p.file(&p.meminfo, p.paths.Meminfo)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 512)
	n, err := f.ReadZero(buf)
	if err != nil {
		return 0, err
	}
	if n < 40 {
		return 0, fmt.Errorf("%w: %s", ErrShortRead, p.paths.Meminfo)
	}

	var total, free, avail uint64
	var haveTotal, haveFree, haveAvail bool
	for _, line := range strings.Split(string(buf[:n]), "\n") {
		fs := strings.Fields(line)
		if len(fs) < 2 {
			continue
		}
		v, perr := strconv.ParseUint(fs[1], 10, 64)
		if perr != nil {
			continue
		}
		switch fs[0] {
		case "MemTotal:":
			total, haveTotal = v, true
		case "MemFree:":
			free, haveFree = v, true
		case "MemAvailable:":
			avail, haveAvail = v, true
		}
		if haveTotal && haveFree && haveAvail {
			break
		}
	}
	_ = free // read for format validation; the ratio only needs total and available
	if !haveTotal || !haveFree || !haveAvail {
		return 0, fmt.Errorf("%w: %s", ErrMemFormat, p.paths.Meminfo)
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: %s", ErrMemTotalZero, p.paths.Meminfo)
	}
	if avail > total {
		return 0, fmt.Errorf("%w: %s", ErrMemAvailExceedsTotal, p.paths.Meminfo)
	}
	return float64(total-avail) / float64(total), nil
}
