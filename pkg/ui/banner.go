package ui

import "strings"

const (
	reset = "\033[0m"
	bold  = "\033[1m"

	ember  = "\033[38;5;208m"
	amber  = "\033[38;5;214m"
	gold   = "\033[38;5;226m"
	moss   = "\033[38;5;121m"
	sky    = "\033[38;5;33m"
	indigo = "\033[38;5;61m"
	orchid = "\033[38;5;177m"
)

// Banner renders a colored hogwatch wordmark.
func Banner() string {
	gradient := []string{ember, amber, gold, moss, sky, indigo, orchid, ember}

	var b strings.Builder
	b.WriteString(bold)
	for i, r := range "hogwatch" {
		b.WriteString(gradient[i%len(gradient)])
		b.WriteRune(r)
	}
	b.WriteString(reset + "  •  resource hog watchdog\n\n")
	return b.String()
}
