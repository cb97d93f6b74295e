package rccl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/config"
)

func TestClassifyHealthy(t *testing.T) {
	c := Classify(sampleOutput, 0, 1<<30, 100.0)
	assert.Equal(t, VerdictHealthy, c.Verdict)
	assert.InDelta(t, 132.18, c.AlgBWGBps, 0.001)
}

func TestClassifyLowBandwidth(t *testing.T) {
	c := Classify(sampleOutput, 0, 1<<30, 200.0)
	assert.Equal(t, VerdictUnhealthy, c.Verdict)
	assert.Contains(t, c.Reason, "below threshold")
}

func TestClassifyCommError(t *testing.T) {
	out := `node-03:12345:12345 [0] NCCL WARN NET/IB : Got completion with error 12, opcode 1, len 0, vendor err 129
transport retry count exceeded`
	c := Classify(out, 1, 1<<30, 100.0)
	assert.Equal(t, VerdictUnhealthy, c.Verdict)
}

func TestClassifyUnknownFailure(t *testing.T) {
	c := Classify("something unexpected happened", 137, 1<<30, 100.0)
	assert.Equal(t, VerdictInconclusive, c.Verdict)
}

func TestClassifyTruncatedOutput(t *testing.T) {
	// exit 0 but no bandwidth table must never pass silently
	c := Classify("# nThread 1 nGpus 1", 0, 1<<30, 100.0)
	assert.Equal(t, VerdictInconclusive, c.Verdict)
}

func TestClassifyDeterministic(t *testing.T) {
	a := Classify(sampleOutput, 0, 1<<30, 100.0)
	b := Classify(sampleOutput, 0, 1<<30, 100.0)
	assert.Equal(t, a, b)
}

func TestThresholdAllReduce(t *testing.T) {
	cfg := config.DefaultConfig()

	// 350*n*g/(2*n*g-1) * 0.85 with n=8, g=8
	got := Threshold(cfg, 8)
	assert.InDelta(t, 350.0*64/(127)*0.85, got, 0.001)

	// larger clusters approach the asymptote from above
	assert.Greater(t, Threshold(cfg, 2), Threshold(cfg, 64))
}

func TestThresholdAllToAll(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TestType = config.TestTypeAllToAll

	n, g := 8.0, 8.0
	remoteFrac := (n - 1) / n
	localFrac := (g - 1) / (g * n)
	want := 1 / (remoteFrac/cfg.BNICGBps + localFrac/cfg.BXGMIGBps) * 0.7

	assert.InDelta(t, want, Threshold(cfg, 8), 0.001)
}
