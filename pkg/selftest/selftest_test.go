package selftest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/config"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/rccl"
)

const sampleIBWriteBW = `---------------------------------------------------------------------------------------
                    RDMA_Write BW Test
 Dual-port       : OFF		Device         : bnxt_re0
 Number of qps   : 1		Transport type : IB
 Connection type : RC		Using SRQ      : OFF
---------------------------------------------------------------------------------------
 #bytes     #iterations    BW peak[Gb/sec]    BW average[Gb/sec]   MsgRate[Mpps]
 65536      807900           391.34             391.30             0.746365
---------------------------------------------------------------------------------------
`

const slowIBWriteBW = `---------------------------------------------------------------------------------------
 #bytes     #iterations    BW peak[Gb/sec]    BW average[Gb/sec]   MsgRate[Mpps]
 65536      412100           201.77             198.02             0.377740
---------------------------------------------------------------------------------------
`

func TestParseAvgGbps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   float64
	}{
		{
			name:   "full report",
			output: sampleIBWriteBW,
			want:   391.30,
		},
		{
			name:   "degraded link",
			output: slowIBWriteBW,
			want:   198.02,
		},
		{
			name:   "no table",
			output: "Couldn't connect to 127.0.0.1:18515\n",
			want:   0,
		},
		{
			name:   "empty output",
			output: "",
			want:   0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, ParseAvgGbps(tt.output), 0.001)
		})
	}
}

// writeSSHStub creates a script standing in for ssh that prints the
// given report regardless of the remote command.
func writeSSHStub(t *testing.T, report string, exitCode int) string {
	t.Helper()

	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(reportPath, []byte(report), 0o644))

	script := "#!/bin/sh\ncat " + reportPath + "\nexit " + itoa(exitCode) + "\n"
	scriptPath := filepath.Join(dir, "ssh")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))
	return scriptPath
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	return string(rune('0' + n))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.IBHCA = "bnxt_re0,bnxt_re1"
	cfg.MinNICGbps = 350.0
	cfg.OutputDir = t.TempDir()
	return cfg
}

func newTestChecker(cfg *config.Config, sshPath string) *Checker {
	return &Checker{
		cfg:           cfg,
		sshPath:       sshPath,
		deviceTimeout: 10 * time.Second,
	}
}

func TestCheckHealthy(t *testing.T) {
	cfg := testConfig(t)
	c := newTestChecker(cfg, writeSSHStub(t, sampleIBWriteBW, 0))

	report, err := c.Check(context.Background(), "node-1")
	require.NoError(t, err)

	assert.Equal(t, rccl.VerdictHealthy, report.Verdict)
	require.Len(t, report.Devices, 2)
	for _, d := range report.Devices {
		assert.True(t, d.Passed)
		assert.InDelta(t, 391.30, d.AvgGbps, 0.001)
	}
}

func TestCheckSlowDevice(t *testing.T) {
	cfg := testConfig(t)
	c := newTestChecker(cfg, writeSSHStub(t, slowIBWriteBW, 0))

	report, err := c.Check(context.Background(), "node-1")
	require.NoError(t, err)

	assert.Equal(t, rccl.VerdictUnhealthy, report.Verdict)
	require.Len(t, report.Devices, 2)
	for _, d := range report.Devices {
		assert.False(t, d.Passed)
		assert.Contains(t, d.Reason, "below floor")
	}
}

func TestCheckNoMeasurement(t *testing.T) {
	cfg := testConfig(t)
	c := newTestChecker(cfg, writeSSHStub(t, "Couldn't connect to 127.0.0.1:18515\n", 1))

	report, err := c.Check(context.Background(), "node-1")
	require.NoError(t, err)

	assert.Equal(t, rccl.VerdictInconclusive, report.Verdict)
	require.Len(t, report.Devices, 2)
	assert.Contains(t, report.Devices[0].Reason, "no bandwidth reported")
}

func TestCheckNoDevices(t *testing.T) {
	cfg := testConfig(t)
	cfg.IBHCA = ""
	c := newTestChecker(cfg, writeSSHStub(t, sampleIBWriteBW, 0))

	report, err := c.Check(context.Background(), "node-1")
	require.NoError(t, err)
	assert.Equal(t, rccl.VerdictInconclusive, report.Verdict)
	assert.Empty(t, report.Devices)
}
