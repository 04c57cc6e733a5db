package parsers

import "strings"

var commentMarkers = []string{"#", ";", "//"}

// stripLineBOM removes a UTF-8 byte order mark from the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// isComment reports whether a trimmed line starts with a comment marker.
func isComment(trimmed string) bool {
	for _, m := range commentMarkers {
		if strings.HasPrefix(trimmed, m) {
			return true
		}
	}
	return false
}

// splitFields splits a rule line on ',' and trims every field.
func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
