package views

import "strings"

// ParseIdentifiers splits comma-separated product ids or handles, trimming
// whitespace and dropping empties and duplicates.
func ParseIdentifiers(input string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
