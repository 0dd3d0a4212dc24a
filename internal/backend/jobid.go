package backend

import (
	"strings"
	"unicode"
)

// ParseJobID extracts the scheduler job identifier from a submission
// acknowledgement such as "Job <12345> is submitted to queue <normal>.".
// The word following marker keeps only its digits; the last occurrence wins.
// When no identifier is found the returned string is a diagnostic embedding the
// raw output and found is false.
func ParseJobID(output, marker string) (id string, found bool) {
	words := strings.Fields(output)
	for i := 0; i < len(words)-1; i++ {
		if words[i] != marker {
			continue
		}
		digits := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, words[i+1])
		if digits != "" {
			id, found = digits, true
		}
	}

	if !found {
		return "no job id in: " + output, false
	}
	return id, true
}
