package zone

import (
	"fmt"
	"strings"
)

// Render returns s as zone-definition text. Names are written fully
// qualified, single-label names with a trailing dot, so parsing the output
// with any domain reproduces s, provided comments do not contain the
// comment marker.
func Render(s *State) string {
	var b strings.Builder

	for i, n := range s.networks {
		if i > 0 {
			fmt.Fprintln(&b)
		}
		fmt.Fprintf(&b, "network\t%s\n", n.CIDR())
		for addr, h := range n.Hosts() {
			fmt.Fprintf(&b, "\nhost\t%s\n", addr)
			if h.Name != "" {
				fmt.Fprintf(&b, "name\t%s\n", absolute(h.Name))
			}
			if h.MAC != "" {
				fmt.Fprintf(&b, "mac\t%s\n", h.MAC)
			}
			if h.Comment != "" {
				fmt.Fprintf(&b, "comment\t%s\n", h.Comment)
			}
			for _, a := range h.Aliases {
				fmt.Fprintf(&b, "alias\t%s\n", absolute(a))
			}
		}
	}

	for _, c := range s.cnames {
		for _, a := range c.Aliases {
			fmt.Fprintf(&b, "\ncname\t%s\ntarget\t%s\n", absolute(a), absolute(c.Canonical))
		}
	}

	return b.String()
}

// absolute marks a single-label name so the parser does not qualify it.
func absolute(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + "."
}
