//go:build linux

package disk

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// timeInQueueField is the 1-indexed position of the cumulative
// "time in queue" counter (weighted msecs of I/O in flight) in a sysfs
// block device stat file, e.g. /sys/block/sda/stat. The same counter is
// field 14 of /proc/diskstats.
const timeInQueueField = 11

var (
	// ErrBadSpec indicates a device spec that is not "statpath,name".
	ErrBadSpec = errors.New("disk: device spec must be statpath,name")

	// ErrNoField indicates the stat file's first line had no field at the
	// time-in-queue position.
	ErrNoField = errors.New("disk: stat file missing time-in-queue field")
)

// Monitor tracks one block device's cumulative time-in-queue counter.
//
// The counter is 32 bits and wraps; at realistic sampling intervals it
// wraps at most once between readings, so the delta is computed with
// wraparound-safe unsigned subtraction.
type Monitor struct {
	Path string // sysfs stat file, e.g. /sys/block/sda/stat
	Name string // display name, e.g. sda

	prevTimeInQueue uint32
}

// ParseMonitor parses an operator-supplied "statpath,name" spec.
func ParseMonitor(spec string) (*Monitor, error) {
	path, name, ok := strings.Cut(spec, ",")
	if !ok || path == "" || name == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadSpec, spec)
	}
	return &Monitor{Path: path, Name: name}, nil
}

// Set samples all configured monitors together. With no monitors it is a
// no-op producing an empty string.
type Set struct {
	monitors []*Monitor
	prev     time.Time
}

func NewSet(monitors []*Monitor) *Set {
	return &Set{monitors: monitors}
}

// Empty reports whether no devices are configured.
func (s *Set) Empty() bool { return len(s.monitors) == 0 }

// Sample reads every monitor's counter, converts the delta since the
// previous call into msecs-of-queue-time per second of elapsed wall clock,
// and returns a display suffix like "; diskusage sda:1000 sdb1:40".
// A device 100% busy with a single op in flight reads about 1000.
func (s *Set) Sample() (string, error) {
	return s.sampleAt(time.Now())
}

func (s *Set) sampleAt(now time.Time) (string, error) {
	if len(s.monitors) == 0 {
		return "", nil
	}

	elapsed := now.Unix() - s.prev.Unix()
	if elapsed < 1 {
		elapsed = 1 // guard rapid successive calls
	}

	var b strings.Builder
	b.WriteString("; diskusage")
	for _, m := range s.monitors {
		cur, err := readTimeInQueue(m.Path)
		if err != nil {
			return "", err
		}
		delta := cur - m.prevTimeInQueue // uint32 arithmetic: wrap-safe
		m.prevTimeInQueue = cur
		fmt.Fprintf(&b, " %s:%d", m.Name, delta/uint32(elapsed))
	}
	s.prev = now
	return b.String(), nil
}

func readTimeInQueue(path string) (uint32, error) {
	field, err := readField(path, timeInQueueField)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("disk: parse time-in-queue of %s: %w", path, err)
	}
	return uint32(v), nil
}

// readField returns the 1-indexed whitespace-separated field of the first
// line of path.
func readField(path string, fieldnum int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("disk: read %s: %w", path, err)
	}
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if fieldnum > len(fields) {
		return "", fmt.Errorf("%w: %s has %d fields", ErrNoField, path, len(fields))
	}
	return fields[fieldnum-1], nil
}
