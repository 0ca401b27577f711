package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLines reads a one-entry-per-line list, trimming whitespace and
// dropping blank lines. An empty list is an error.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan list %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("list %s has no entries", path)
	}
	return out, nil
}
