package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Group is an ordered, non-empty set of nodes submitted together to one
// benchmark run. The first node acts as the launcher (rank 0).
type Group []string

// Hash returns the content hash identifying the group's membership,
// independent of node order: the first 16 hex chars of the sha256 of
// the sorted node list. Used for duplicate-launch avoidance and for
// naming per-group output files.
func (g Group) Hash() string {
	sorted := make([]string, len(g))
	copy(sorted, g)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])[:16]
}

func (g Group) String() string {
	return strings.Join(g, ",")
}

// Contains reports whether the group includes the node.
func (g Group) Contains(node string) bool {
	for _, n := range g {
		if n == node {
			return true
		}
	}
	return false
}
