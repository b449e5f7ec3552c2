//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hogwatch/hogwatch/pkg/system/host"
)

// TaskCommLen mimics the kernel's TASK_COMM_LEN. If the running kernel uses
// a different value we just end up with the shorter of the two.
const TaskCommLen = 16

// TaskUsage is one process's accounting at one instant.
//
// CPUMsecs and DiskWait are cumulative counters (monotonic while the
// process exists); RSSMrams is an absolute gauge. PIDs are reused by the
// kernel, so a pid identifies a process only within a single snapshot.
type TaskUsage struct {
	Cmd      string // command name, at most TaskCommLen-1 chars
	PID      int
	CPUMsecs uint64 // user+sys, self+reaped children, msecs
	RSSMrams uint64 // resident set size, 1/1000ths of RAM
	DiskWait uint64 // accumulated block I/O delay, msecs
}

// Snapshot is the task table captured at one instant, ascending by pid.
type Snapshot struct {
	Tasks   []TaskUsage
	TakenAt time.Time
}

// Reader produces Snapshots from a proc filesystem root.
type Reader struct {
	root string
	host *host.Info
}

// NewReader returns a Reader over root ("" means /proc).
func NewReader(root string, h *host.Info) *Reader {
	if root == "" {
		root = "/proc"
	}
	return &Reader{root: root, host: h}
}

// Snapshot enumerates every pid visible under the proc root and parses its
// stat line. Processes that vanish between enumeration and read are skipped;
// any parse failure is returned, because it means an assumption about the
// kernel interface no longer holds.
//
// Enumeration comes from Readdirnames, which preserves kernel directory
// order: numerically ascending pids. (os.ReadDir would sort the names
// lexically and break that ordering.)
func (r *Reader) Snapshot() (*Snapshot, error) {
	ramKB, err := r.host.RAMKB()
	if err != nil {
		return nil, err
	}

	// Pre-size from the link count of the proc root: one subdirectory per
	// task plus a dozen or so others, a cheap upper-bound estimate.
	var st unix.Stat_t
	if err := unix.Stat(r.root, &st); err != nil {
		return nil, fmt.Errorf("proc: stat %s: %w", r.root, err)
	}

	dir, err := os.Open(r.root)
	if err != nil {
		return nil, fmt.Errorf("proc: open %s: %w", r.root, err)
	}
	defer dir.Close()
	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("proc: read %s: %w", r.root, err)
	}

	snap := &Snapshot{
		Tasks:   make([]TaskUsage, 0, st.Nlink),
		TakenAt: time.Now(),
	}
	for _, name := range names {
		if name[0] < '0' || name[0] > '9' {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.root, name, "stat"))
		if err != nil {
			continue // task just exited; expected and common
		}
		tu, err := parseStat(name, string(data), r.host, ramKB)
		if err != nil {
			return nil, err
		}
		snap.Tasks = append(snap.Tasks, tu)
	}
	return snap, nil
}

// parseStat extracts the accounting fields from one stat line.
//
// The command name is the second field, parenthesized, and may itself
// contain spaces and close parens. Splitting on the first '(' and the last
// ')' bounds it correctly regardless. Everything after ") " is the numeric
// field array; indices below are relative to it (field 14 overall, utime,
// is index 11 here, and so on).
func parseStat(pidstr, line string, h *host.Info, ramKB uint64) (TaskUsage, error) {
	if len(pidstr) > 30 {
		return TaskUsage{}, fmt.Errorf("%w: absurd pid %q", ErrStatFormat, pidstr)
	}
	lparen := strings.IndexByte(line, '(')
	rparen := strings.LastIndexByte(line, ')')
	if lparen < 0 || rparen < 0 || rparen < lparen {
		return TaskUsage{}, fmt.Errorf("%w: pid %s", ErrStatFormat, pidstr)
	}

	cmd := line[lparen+1 : rparen]
	if len(cmd) > TaskCommLen-1 {
		cmd = cmd[:TaskCommLen-1]
	}

	pid, err := strconv.Atoi(strings.TrimSpace(line[:lparen]))
	if err != nil {
		return TaskUsage{}, fmt.Errorf("%w: pid %s: %v", ErrStatFormat, pidstr, err)
	}
	want, err := strconv.Atoi(pidstr)
	if err != nil {
		return TaskUsage{}, fmt.Errorf("%w: dirent %q: %v", ErrStatFormat, pidstr, err)
	}
	if pid != want {
		return TaskUsage{}, fmt.Errorf("%w: dirent %d, line %d", ErrPIDMismatch, want, pid)
	}
	if pid == 0 {
		return TaskUsage{}, ErrZeroPID
	}

	if rparen+2 > len(line) {
		return TaskUsage{}, fmt.Errorf("%w: pid %d", ErrStatShort, pid)
	}
	rest := line[rparen+2:]
	if len(rest) < 50 {
		return TaskUsage{}, fmt.Errorf("%w: pid %d", ErrStatShort, pid)
	}

	fields := strings.Fields(rest)
	if len(fields) < 40 {
		return TaskUsage{}, fmt.Errorf("%w: pid %d has %d", ErrStatFields, pid, len(fields))
	}

	getU := func(idx int) (uint64, error) { return strconv.ParseUint(fields[idx], 10, 64) }

	utime, err1 := getU(11)
	stime, err2 := getU(12)
	// cutime/cstime are signed in the kernel for unclear historical
	// reasons; discard negative values rather than wrap.
	cutime, err3 := strconv.ParseInt(fields[13], 10, 64)
	cstime, err4 := strconv.ParseInt(fields[14], 10, 64)
	rssPages, err5 := getU(21)
	blkioTicks, err6 := getU(39)
	for _, perr := range []error{err1, err2, err3, err4, err5, err6} {
		if perr != nil {
			return TaskUsage{}, fmt.Errorf("%w: pid %d: %v", ErrStatFields, pid, perr)
		}
	}
	if cutime < 0 {
		cutime = 0
	}
	if cstime < 0 {
		cstime = 0
	}

	ticks := uint64(h.ClockTicks())
	cpuTicks := utime + stime + uint64(cutime) + uint64(cstime)

	// Multiply before dividing for better precision.
	rssKB := rssPages * h.PageKB()
	return TaskUsage{
		Cmd:      cmd,
		PID:      pid,
		CPUMsecs: 1000 * cpuTicks / ticks,
		RSSMrams: 1000 * rssKB / ramKB,
		DiskWait: 1000 * blkioTicks / ticks,
	}, nil
}
