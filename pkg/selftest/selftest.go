// Package selftest runs a local loopback RDMA bandwidth check on a
// single node. It is the fallback for nodes that cannot be localized by
// the collective bisection, which needs at least two nodes per group.
package selftest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/config"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/errdefs"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/log"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/process"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/rccl"
)

// DeviceResult is the loopback measurement for one RDMA device.
type DeviceResult struct {
	Device  string  `json:"device"`
	AvgGbps float64 `json:"avg_gbps"`
	Passed  bool    `json:"passed"`
	Reason  string  `json:"reason,omitempty"`
}

// Report is the self-test outcome for one node.
type Report struct {
	Node    string         `json:"node"`
	Devices []DeviceResult `json:"devices"`
	Verdict rccl.Verdict   `json:"verdict"`
}

type Checker struct {
	cfg     *config.Config
	sshPath string

	// per-device wall bound, shrunk by tests
	deviceTimeout time.Duration
}

func New(cfg *config.Config) *Checker {
	return &Checker{
		cfg:           cfg,
		sshPath:       "ssh",
		deviceTimeout: time.Minute,
	}
}

// Check measures loopback bandwidth on every configured RDMA device of
// the node. The node is Unhealthy when any device falls below the
// configured floor, Healthy when all pass, and Inconclusive when a
// measurement cannot be obtained.
func (c *Checker) Check(ctx context.Context, node string) (*Report, error) {
	devices := strings.Split(c.cfg.IBHCA, ",")
	report := &Report{Node: node, Verdict: rccl.VerdictHealthy}

	for _, device := range devices {
		device = strings.TrimSpace(device)
		if device == "" {
			continue
		}

		res, err := c.checkDevice(ctx, node, device)
		if err != nil {
			return nil, err
		}
		report.Devices = append(report.Devices, res)

		switch {
		case res.Reason != "" && !res.Passed && res.AvgGbps == 0:
			if report.Verdict == rccl.VerdictHealthy {
				report.Verdict = rccl.VerdictInconclusive
			}
		case !res.Passed:
			report.Verdict = rccl.VerdictUnhealthy
		}
	}

	if len(report.Devices) == 0 {
		report.Verdict = rccl.VerdictInconclusive
	}

	log.Logger.Infow("self-test finished", "node", node, "verdict", report.Verdict)
	return report, nil
}

func (c *Checker) checkDevice(ctx context.Context, node string, device string) (DeviceResult, error) {
	// server in the background, client against loopback on the same device
	remote := fmt.Sprintf(
		"%[1]s -d %[2]s --report_gbits -D 5 >/dev/null 2>&1 & sleep 1; %[1]s -d %[2]s --report_gbits -D 5 127.0.0.1",
		c.cfg.IBWriteBWPath, device)

	args := []string{
		c.sshPath,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-p", fmt.Sprintf("%d", c.cfg.SSHPort),
		node,
		remote,
	}

	p, err := process.New(process.WithCommand(args...))
	if err != nil {
		return DeviceResult{}, fmt.Errorf("%w: %v", errdefs.ErrLaunchFailed, err)
	}

	cctx, ccancel := context.WithTimeout(ctx, c.deviceTimeout)
	defer ccancel()

	if err := p.Start(cctx); err != nil {
		return DeviceResult{}, fmt.Errorf("%w: %v", errdefs.ErrLaunchFailed, err)
	}

	select {
	case <-p.Wait():
	case <-cctx.Done():
		_ = p.Close(context.Background())
		return DeviceResult{
			Device: device,
			Reason: "loopback measurement timed out",
		}, nil
	}

	avg := ParseAvgGbps(string(p.Output()))
	if avg == 0 {
		return DeviceResult{
			Device: device,
			Reason: fmt.Sprintf("no bandwidth reported (exit code %d)", p.ExitCode()),
		}, nil
	}

	res := DeviceResult{Device: device, AvgGbps: avg, Passed: avg >= c.cfg.MinNICGbps}
	if !res.Passed {
		res.Reason = fmt.Sprintf("loopback %.2f Gb/s below floor %.2f Gb/s", avg, c.cfg.MinNICGbps)
	}
	return res, nil
}

// ParseAvgGbps extracts the average bandwidth from ib_write_bw output.
// The result table looks like:
//
//	#bytes     #iterations    BW peak[Gb/sec]    BW average[Gb/sec]   MsgRate[Mpps]
//	65536      807900         391.34             391.30               0.746365
//
// The last data row (largest message size) is the measurement of
// record. Returns 0 when no row parses.
func ParseAvgGbps(output string) float64 {
	avg := 0.0
	inTable := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#bytes") {
			inTable = true
			continue
		}
		if !inTable || line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 4 {
			continue
		}
		if _, err := strconv.ParseInt(parts[0], 10, 64); err != nil {
			continue
		}
		v, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			continue
		}
		avg = v
	}

	return avg
}
