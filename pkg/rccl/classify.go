package rccl

import (
	"fmt"
	"strings"
)

// Verdict is the classified outcome of one benchmark run.
type Verdict string

const (
	// VerdictHealthy certifies every node in the tested group.
	VerdictHealthy Verdict = "Healthy"

	// VerdictUnhealthy implicates at least one node of the group,
	// without identifying which one.
	VerdictUnhealthy Verdict = "Unhealthy"

	// VerdictInconclusive covers everything that is neither a clean
	// pass nor an attributable communication failure: truncated output,
	// unknown error text, a run killed on timeout. It is never coerced
	// to Healthy or Unhealthy by the classifier itself.
	VerdictInconclusive Verdict = "Inconclusive"
)

// commErrorMarkers are output fragments attributable to the
// communication layer. A non-zero exit with one of these is a node
// health signal rather than an infrastructure hiccup.
var commErrorMarkers = []string{
	"nccl warn",
	"transport retry count exceeded",
	"connection refused",
	"connection timed out",
	"connection reset by peer",
	"remote process exited or there was a remote network error",
	"unhandled system error",
	"unhandled cuda error",
	"hip error",
	"link error",
	"test failure",
	"segmentation fault",
}

// Classification carries the verdict together with the parsed bandwidth
// and a human-readable reason.
type Classification struct {
	Verdict   Verdict `json:"verdict"`
	AlgBWGBps float64 `json:"algbw_gbps"`
	Reason    string  `json:"reason"`
}

// Classify derives the verdict for one benchmark run. targetSize is the
// message size whose table row carries the bandwidth of record, and
// thresholdGBps the minimum acceptable bandwidth for the group size.
//
// Pure function: deterministic given the same inputs, no shared state.
func Classify(output string, exitCode int, targetSize int64, thresholdGBps float64) Classification {
	lower := strings.ToLower(output)

	if exitCode != 0 {
		for _, marker := range commErrorMarkers {
			if strings.Contains(lower, marker) {
				return Classification{
					Verdict: VerdictUnhealthy,
					Reason:  fmt.Sprintf("exit code %d with communication error %q", exitCode, marker),
				}
			}
		}
		return Classification{
			Verdict: VerdictInconclusive,
			Reason:  fmt.Sprintf("exit code %d without a recognizable communication error", exitCode),
		}
	}

	algbw := ParseAlgBW(output, targetSize)
	if algbw == 0.0 {
		return Classification{
			Verdict: VerdictInconclusive,
			Reason:  "bandwidth table missing or truncated",
		}
	}

	if algbw < thresholdGBps {
		return Classification{
			Verdict:   VerdictUnhealthy,
			AlgBWGBps: algbw,
			Reason:    fmt.Sprintf("bandwidth %.2f GB/s below threshold %.2f GB/s", algbw, thresholdGBps),
		}
	}

	return Classification{
		Verdict:   VerdictHealthy,
		AlgBWGBps: algbw,
		Reason:    fmt.Sprintf("bandwidth %.2f GB/s meets threshold %.2f GB/s", algbw, thresholdGBps),
	}
}
