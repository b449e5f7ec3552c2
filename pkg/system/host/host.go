//go:build linux

package host

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// Info holds host facts that are computed once and reused for the process
// lifetime: kernel clock ticks per second, page size, total RAM, CPU count.
// It is constructed explicitly and passed to the components that need it.
type Info struct {
	// MeminfoPath is the key-value memory pseudo-file, normally
	// /proc/meminfo. Overridable for tests.
	MeminfoPath string

	clkOnce sync.Once
	clk     int

	pageOnce sync.Once
	pageKB   uint64

	ramOnce sync.Once
	ramKB   uint64
	ramErr  error
}

func New() *Info {
	return &Info{MeminfoPath: "/proc/meminfo"}
}

// ClockTicks returns the number of jiffies (clock ticks) per second.
// It first checks the env var CLK_TCK (useful for testing), otherwise
// falls back to 100 (common default).
//
// Note: On real systems, the authoritative way is `sysconf(_SC_CLK_TCK)`,
// but calling that requires cgo. For portability in a pure-Go tool,
// this simplified approach is acceptable.
func (i *Info) ClockTicks() int {
	i.clkOnce.Do(func() {
		v, _ := strconv.Atoi(os.Getenv("CLK_TCK"))
		if v > 0 {
			i.clk = v
			return
		}
		i.clk = 100
	})
	return i.clk
}

// PageKB returns the system memory page size in kilobytes.
// Like ClockTicks, it first checks an env override (PAGE_SIZE, in bytes)
// to ease testing, then falls back to os.Getpagesize().
func (i *Info) PageKB() uint64 {
	i.pageOnce.Do(func() {
		if ps := os.Getenv("PAGE_SIZE"); ps != "" {
			if v, _ := strconv.Atoi(ps); v > 0 {
				i.pageKB = uint64(v) / 1024
				return
			}
		}
		i.pageKB = uint64(os.Getpagesize()) / 1024
	})
	return i.pageKB
}

// RAMKB returns the total RAM size in kilobytes, from the MemTotal line of
// the meminfo pseudo-file. A missing or zero MemTotal is an error; callers
// treat it as fatal.
func (i *Info) RAMKB() (uint64, error) {
	i.ramOnce.Do(func() {
		f, err := os.Open(i.MeminfoPath)
		if err != nil {
			i.ramErr = fmt.Errorf("host: open %s: %w", i.MeminfoPath, err)
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "MemTotal:") {
				continue
			}
			fs := strings.Fields(line)
			if len(fs) < 2 {
				break
			}
			i.ramKB, _ = strconv.ParseUint(fs[1], 10, 64)
			break
		}
		if err := sc.Err(); err != nil {
			i.ramErr = fmt.Errorf("host: scan %s: %w", i.MeminfoPath, err)
			return
		}
		if i.ramKB == 0 {
			i.ramErr = fmt.Errorf("host: no MemTotal in %s", i.MeminfoPath)
		}
	})
	return i.ramKB, i.ramErr
}

// NumCPU returns the number of usable CPUs, used to scale per-task CPU
// rates so 1000 means one full core.
func (i *Info) NumCPU() int { return runtime.NumCPU() }
