//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Cmdline reads a process's full command line, fresh, for display. The raw
// file has NUL separators between arguments; they become spaces. Output is
// truncated to width bytes. If the file cannot be read (the process already
// exited) a right-justified "<unknown>" placeholder of the same width is
// returned instead.
func Cmdline(root string, pid, width int) string {
	path := filepath.Join(root, strconv.Itoa(pid), "cmdline")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("%*s", width, "<unknown>")
	}
	defer f.Close()

	buf := make([]byte, width)
	n, _ := f.Read(buf)
	if n <= 0 {
		return fmt.Sprintf("%*s", width, "<unknown>")
	}

	// Drop the final byte (the terminating NUL when the whole cmdline fit)
	// and replace the embedded separators.
	out := buf[:n-1]
	for i, b := range out {
		if b == 0 {
			out[i] = ' '
		}
	}
	return string(out)
}
