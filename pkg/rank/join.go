//go:build linux

package rank

import (
	"errors"
	"fmt"

	"github.com/hogwatch/hogwatch/pkg/system/proc"
	"github.com/hogwatch/hogwatch/pkg/system/util"
)

// ErrBadInterval indicates a non-positive elapsed time between snapshots.
var ErrBadInterval = errors.New("rank: elapsed time must be > 0")

// Joined is one process present in both snapshots, with its usage rates
// over the interval between them. Joined values are recomputed every
// reporting iteration and discarded after display.
type Joined struct {
	PID int
	Cmd string

	Mcpus    uint64 // CPU used, 1/1000ths of one core (can exceed 1000 for multithreaded tasks)
	Mrams    uint64 // resident set size, 1/1000ths of RAM (latest gauge, not a delta)
	DiskWait uint64 // msecs per second spent waiting on block I/O

	Selected bool // marked for display by SelectHogs
}

// Join walks prior and latest in lock-step on ascending pid, pairing
// records for pids present in both. A process present in only one snapshot
// (started or exited between samples) is excluded. Out-of-order pids in the
// latest snapshot violate the enumeration invariant and are fatal.
//
// elapsedSec must be the measured wall-clock gap between the two snapshot
// reads, not the nominal polling interval; probe and processing time would
// otherwise bias every rate.
func Join(prior, latest *proc.Snapshot, elapsedSec float64, ncpus int) ([]Joined, error) {
	if elapsedSec <= 0 {
		return nil, ErrBadInterval
	}
	if ncpus < 1 {
		ncpus = 1
	}

	p, l := prior.Tasks, latest.Tasks
	out := make([]Joined, 0, min(len(p), len(l)))

	i, j := 0, 0
	for i < len(p) && j < len(l) {
		if j > 0 && l[j-1].PID > l[j].PID {
			return nil, fmt.Errorf("%w: pid %d after %d",
				proc.ErrOutOfOrder, l[j].PID, l[j-1].PID)
		}
		switch {
		case p[i].PID == l[j].PID:
			// Cumulative counters shrink only when the pid was reused by a
			// new process between samples; clamp rather than underflow.
			cpuDelta := util.DeltaU64(l[j].CPUMsecs, p[i].CPUMsecs)
			waitDelta := util.DeltaU64(l[j].DiskWait, p[i].DiskWait)
			out = append(out, Joined{
				PID:      l[j].PID,
				Cmd:      l[j].Cmd,
				Mcpus:    uint64(float64(cpuDelta)/elapsedSec) / uint64(ncpus),
				Mrams:    l[j].RSSMrams,
				DiskWait: uint64(float64(waitDelta) / elapsedSec),
			})
			i++
			j++
		case p[i].PID < l[j].PID:
			i++
		default:
			j++
		}
	}
	return out, nil
}
