//go:build linux

package cpuset

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hogwatch/hogwatch/pkg/system/pread"
)

// The memory pressure of the top cpuset: a decaying measure of recent
// forced memory reclamation. Optional kernel functionality layered on an
// optional interface, so discovery failure degrades instead of aborting.
//
// Two filename conventions exist. Older kernels exposed bare names in the
// cpuset mount; newer ones prefix them with "cpuset." so the names still
// make sense when the cpuset controller is co-mounted in a cgroup
// hierarchy.
var schemes = [][2]string{
	{"memory_pressure_enabled", "memory_pressure"},
	{"cpuset.memory_pressure_enabled", "cpuset.memory_pressure"},
}

// Unavailable is what Read reports when no cpuset mount or enabled flag was
// found. With any sane threshold it never triggers the busy predicate on
// its own, and as one OR-term it cannot suppress the other signals.
const Unavailable = 1

// Pressure reads the top-cpuset memory pressure value. Discovery of the
// cpuset mount point runs once, on first Read, and the result (including
// "not available") is cached for the process lifetime.
type Pressure struct {
	pool   *pread.Pool
	logger *slog.Logger

	// MountsPath is the mount-table pseudo-file, normally /proc/mounts.
	// Overridable for tests.
	MountsPath string

	once sync.Once
	file *pread.File // nil when unavailable
	derr error
}

func New(pool *pread.Pool, logger *slog.Logger) *Pressure {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pressure{pool: pool, logger: logger, MountsPath: "/proc/mounts"}
}

// Read returns the current memory pressure, or Unavailable if the cpuset
// interface was not found. Callers with the pressure threshold configured
// to zero should not call Read at all; that skips the discovery cost
// entirely.
func (p *Pressure) Read() (int, error) {
	p.once.Do(p.discover)
	if p.derr != nil {
		return 0, p.derr
	}
	if p.file == nil {
		return Unavailable, nil
	}

	buf := make([]byte, 256)
	n, err := p.file.ReadZero(buf)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("cpuset: empty pressure file %s", p.file.Path())
	}
	fs := bytes.Fields(buf[:n])
	if len(fs) == 0 {
		return 0, fmt.Errorf("cpuset: empty pressure file %s", p.file.Path())
	}
	v, err := strconv.Atoi(string(fs[0]))
	if err != nil {
		return 0, fmt.Errorf("cpuset: parse pressure: %w", err)
	}
	return v, nil
}

// discover scans the mount table for a cpuset filesystem, then probes both
// enabled-flag naming schemes under its mount point. Whichever flag file
// contains "1" first wins; its sibling pressure file is opened through the
// pool and cached.
func (p *Pressure) discover() {
	mnt, err := p.findMount()
	if err != nil {
		p.derr = err
		return
	}
	if mnt == "" {
		p.note()
		return
	}

	for _, s := range schemes {
		if !enabledAt(filepath.Join(mnt, s[0])) {
			continue
		}
		f, err := p.pool.Open(filepath.Join(mnt, s[1]))
		if err != nil {
			p.derr = err
			return
		}
		p.file = f
		return
	}
	p.note()
}

func (p *Pressure) note() {
	p.logger.Info("cpuset not mounted or memory pressure not enabled; this may cause less output")
}

// findMount returns the mount point of the cpuset filesystem, or "" if none
// is mounted. Mount-table tokens are split on spaces and commas so the
// cpuset marker is found whether it appears as the fstype field or among
// the mount options.
func (p *Pressure) findMount() (string, error) {
	f, err := os.Open(p.MountsPath)
	if err != nil {
		return "", fmt.Errorf("cpuset: open %s: %w", p.MountsPath, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := splitMountLine(sc.Text())
		if len(fields) < 3 {
			continue
		}
		for _, tok := range fields[2:] {
			if tok == "cpuset" {
				return fields[1], nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("cpuset: scan %s: %w", p.MountsPath, err)
	}
	return "", nil
}

func splitMountLine(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
}

// enabledAt reports whether the flag file at path starts with '1'.
// Unreadable or empty flag files just mean "not enabled".
func enabledAt(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var b [1]byte
	if n, err := f.Read(b[:]); err != nil || n != 1 {
		return false
	}
	return b[0] == '1'
}
