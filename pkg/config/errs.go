package config

import "errors"

var (
	ErrBadInterval  = errors.New("config: interval must be at least 1ms")
	ErrBadPercent   = errors.New("config: percent threshold must be in [0.1, 100]")
	ErrBadLoadAvg   = errors.New("config: loadavg threshold must be >= 0")
	ErrBadPressure  = errors.New("config: memory pressure threshold must be >= 0")
	ErrBadThreshold = errors.New("config: hog threshold must be at least 1")
	ErrBadMaxTasks  = errors.New("config: max tasks must be at least 1")
	ErrBadWidth     = errors.New("config: cmdline width must be in [2, 1000]")
	ErrBadDiskSpec  = errors.New("config: disk spec must be path,name")
	ErrBadAlpha     = errors.New("config: smoothing alpha must be in [0, 1)")
)
