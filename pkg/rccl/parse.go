package rccl

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeTolerance allows the sweep to land near, not exactly on, the
// requested maximum message size.
const sizeTolerance = 10000

var sizeUnits = map[byte]int64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a human size string such as "16M" or "8G" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("invalid size string: %q", s)
	}

	unit := int64(1)
	if u, ok := sizeUnits[s[len(s)-1]]; ok {
		unit = u
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size string: %q", s)
	}
	return int64(n * float64(unit)), nil
}

// ParseAlgBW extracts the algorithm bandwidth (GB/s) reported for the
// message size closest to targetSize from the rccl-tests result table.
//
// The table looks like:
//
//	#       size         count      type   redop    root     time   algbw   busbw #wrong     time   algbw   busbw #wrong
//	#        (B)    (elements)                               (us)  (GB/s)  (GB/s)            (us)  (GB/s)  (GB/s)
//	  1073741824     268435456     float     sum      -1  12345.6  86.98  162.43      0  12340.1  87.01  162.49      0
//
// Returns 0 when no row matches, which callers treat as unparsable.
func ParseAlgBW(text string, targetSize int64) float64 {
	parsingEnabled := false

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "#") {
			lower := strings.ToLower(line)
			if strings.Contains(lower, "algbw") && strings.Contains(lower, "busbw") &&
				strings.Contains(lower, "size") && strings.Contains(lower, "count") {
				parsingEnabled = true
			}
			continue
		}

		if !parsingEnabled || line == "" {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) <= 11 {
			continue
		}

		size, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		if abs64(size-targetSize) > sizeTolerance {
			continue
		}

		algbw, err := strconv.ParseFloat(parts[10], 64)
		if err != nil {
			continue
		}
		return algbw
	}

	return 0.0
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
