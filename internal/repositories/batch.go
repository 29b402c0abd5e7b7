package repositories

import (
	"slices"
	"strings"
)

func batchName(payloads map[string][]byte) string {
	names := make([]string, 0, len(payloads))
	for name := range payloads {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, "+")
}
