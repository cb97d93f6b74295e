// Package hostfile loads the list of candidate node identifiers.
package hostfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Load reads one hostname or IP per line, skipping blanks and comments.
// Duplicate entries are rejected since a node must appear in at most one
// test group position.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]struct{})
	hosts := make([]string, 0)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			return nil, fmt.Errorf("duplicate host %q in %q", line, path)
		}
		seen[line] = struct{}{}
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return hosts, nil
}
