package proc

import "errors"

var (
	// ErrStatFormat indicates a stat line without the parenthesized
	// command-name field.
	ErrStatFormat = errors.New("proc: malformed stat line")

	// ErrStatShort indicates a stat line too short to hold the accounting
	// fields.
	ErrStatShort = errors.New("proc: stat line too short")

	// ErrStatFields indicates a stat line with too few fields after the
	// command name.
	ErrStatFields = errors.New("proc: too few stat fields")

	// ErrPIDMismatch indicates the pid embedded in a stat line differs
	// from the directory entry it was read from. That is corrupted input,
	// not a process race.
	ErrPIDMismatch = errors.New("proc: stat pid does not match directory entry")

	// ErrZeroPID indicates a stat line claiming process id zero.
	ErrZeroPID = errors.New("proc: zero pid")

	// ErrOutOfOrder indicates the process enumeration was not ascending by
	// pid. The join depends on that ordering; a violation is fatal.
	ErrOutOfOrder = errors.New("proc: pids out of order")
)
