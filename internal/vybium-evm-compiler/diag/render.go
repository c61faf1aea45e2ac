package diag

import (
	"fmt"
	"strings"
)

// Render formats diagnostics against the original source text: each
// diagnostic with a known location gets a source excerpt and a caret
// pointing at the offending column (spec §7 "User-visible behavior").
// Diagnostics without a location are rendered as a bare message line.
func Render(source string, items []Diagnostic) string {
	lines := strings.Split(source, "\n")
	var b strings.Builder
	for _, d := range items {
		if d.Location == nil {
			fmt.Fprintf(&b, "%s\n", d)
			continue
		}
		fmt.Fprintf(&b, "%s\n", d)
		lineIdx := d.Location.Line - 1
		if lineIdx >= 0 && lineIdx < len(lines) {
			fmt.Fprintf(&b, "    %s\n", lines[lineIdx])
			col := d.Location.Col
			if col < 1 {
				col = 1
			}
			fmt.Fprintf(&b, "    %s^\n", strings.Repeat(" ", col-1))
		}
	}
	return b.String()
}
