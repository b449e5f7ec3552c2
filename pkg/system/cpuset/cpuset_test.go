//go:build linux

package cpuset

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hogwatch/hogwatch/pkg/system/pread"
)

// mountLine mimics a /proc/mounts entry for a cpuset mount at dir.
func mountLine(dir string) string {
	return "cgroup " + dir + " cgroup rw,nosuid,nodev,noexec,relatime,cpuset 0 0\n"
}

func setup(t *testing.T, mounts string) *Pressure {
	t.Helper()
	mp := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(mp, []byte(mounts), 0o644))
	p := New(pread.NewPool(), slog.Default())
	p.MountsPath = mp
	return p
}

func TestRead_OldNamingScheme(t *testing.T) {
	cps := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cps, "memory_pressure_enabled"), []byte("1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cps, "memory_pressure"), []byte("42\n"), 0o644))

	p := setup(t, "proc /proc proc rw 0 0\n"+mountLine(cps))
	v, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRead_PrefixedNamingScheme(t *testing.T) {
	cps := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cps, "cpuset.memory_pressure_enabled"), []byte("1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cps, "cpuset.memory_pressure"), []byte("7\n"), 0o644))

	p := setup(t, mountLine(cps))
	v, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRead_NotEnabled(t *testing.T) {
	cps := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cps, "memory_pressure_enabled"), []byte("0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cps, "memory_pressure"), []byte("42\n"), 0o644))

	p := setup(t, mountLine(cps))
	v, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, Unavailable, v, "disabled flag degrades to the neutral value")
}

func TestRead_NoCpusetMount(t *testing.T) {
	p := setup(t, "proc /proc proc rw 0 0\nsysfs /sys sysfs rw 0 0\n")
	v, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, Unavailable, v)

	// Discovery is cached: a second read takes the same path.
	v, err = p.Read()
	require.NoError(t, err)
	assert.Equal(t, Unavailable, v)
}

func TestRead_ValueTracksFile(t *testing.T) {
	cps := t.TempDir()
	pressure := filepath.Join(cps, "memory_pressure")
	require.NoError(t, os.WriteFile(filepath.Join(cps, "memory_pressure_enabled"), []byte("1\n"), 0o644))
	require.NoError(t, os.WriteFile(pressure, []byte("0\n"), 0o644))

	p := setup(t, mountLine(cps))
	v, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, os.WriteFile(pressure, []byte("310\n"), 0o644))
	v, err = p.Read()
	require.NoError(t, err)
	assert.Equal(t, 310, v)
}
