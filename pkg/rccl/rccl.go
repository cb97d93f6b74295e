// Package rccl builds collective-communication benchmark invocations and
// classifies their results.
//
// The benchmark is an MPI-launched rccl-tests binary (all_reduce_perf or
// alltoall_perf) spanning every node of a test group, one worker process
// per GPU. The classifier is a pure function over the captured output and
// exit code, so verdicts are deterministic and replayable from the run log.
package rccl

import (
	"fmt"
	"strings"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/config"
)

// BenchmarkArgs returns the launcher argv for one benchmark run across
// the given nodes.
func BenchmarkArgs(cfg *config.Config, nodes []string) []string {
	np := len(nodes) * cfg.GPUsPerNode
	args := []string{
		cfg.MpirunPath,
		"-n", fmt.Sprintf("%d", np),
		"-ppn", fmt.Sprintf("%d", cfg.GPUsPerNode),
		"-launcher", "ssh",
		"-hosts", strings.Join(nodes, ","),
		cfg.BenchmarkPath(),
		"-b", "16M",
		"-e", cfg.MaxBytesForNodes(len(nodes)),
		"-f", "2",
		"-g", "1",
	}
	return args
}

// ConnectivityArgs returns the launcher argv for the pre-run reachability
// check: one echo per node, all of which must come back.
func ConnectivityArgs(cfg *config.Config, nodes []string) []string {
	return []string{
		cfg.MpirunPath,
		"-n", fmt.Sprintf("%d", len(nodes)),
		"-ppn", "1",
		"-launcher", "ssh",
		"-hosts", strings.Join(nodes, ","),
		"/bin/echo", "OK",
	}
}

// BenchmarkEnvs returns the KEY=VALUE environment for one benchmark run.
func BenchmarkEnvs(cfg *config.Config, nodes []string) []string {
	envs := []string{
		"MPIEXEC_ALLOW_ROOT=1",
		fmt.Sprintf("MPIEXEC_RSH=ssh -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -p %d", cfg.SSHPort),
		"NCCL_SOCKET_IFNAME=" + cfg.SocketIfname,
		fmt.Sprintf("NCCL_IB_GID_INDEX=%d", cfg.IBGIDIndex),
		"NCCL_IB_HCA=" + cfg.IBHCA,
		"NCCL_IB_DISABLE=0",
		"NCCL_IB_PCI_RELAXED_ORDERING=1",
		"NCCL_SHM_DISABLE=1",
		"NCCL_CHECKS_DISABLE=1",
		"NCCL_CROSS_NIC=0",
		"RCCL_MSCCL_ENABLE=0",
		"NCCL_DEBUG=" + cfg.CommDebug,
	}

	if cfg.TestType == config.TestTypeAllToAll && len(nodes) < 16 {
		envs = append(envs,
			"NCCL_PXN_DISABLE=1",
			"NCCL_P2P_NET_CHUNKSIZE=524288",
		)
	}

	if cfg.EnableAINIC {
		envs = append(envs,
			"LD_LIBRARY_PATH=/opt/amd-anp/build:/opt/rccl/build/release:"+cfg.LDLibraryPath,
			"NCCL_NET_GDR_LEVEL=2",
			"NCCL_NET_GDR_READ=1",
			"NCCL_PXN_DISABLE=0",
			"NCCL_DMABUF_ENABLE=0",
			"NCCL_GDR_FLUSH_DISABLE=1",
			"NCCL_IGNORE_CPU_AFFINITY=1",
			"NCCL_IB_QPS_PER_CONNECTION=1",
			"UCX_NET_DEVICES="+cfg.SocketIfname,
		)
	} else {
		firstHCA := strings.Split(cfg.IBHCA, ",")[0]
		envs = append(envs,
			"LD_LIBRARY_PATH="+cfg.LDLibraryPath,
			"NCCL_NET_GDR_LEVEL=2",
			"NCCL_NET_GDR_READ=1",
			"UCX_NET_DEVICES="+firstHCA+":1",
		)
	}

	return envs
}

// ConnectivityEnvs returns the KEY=VALUE environment for the
// reachability check.
func ConnectivityEnvs(cfg *config.Config) []string {
	return []string{
		"MPIEXEC_ALLOW_ROOT=1",
		fmt.Sprintf("MPIEXEC_RSH=ssh -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -p %d", cfg.SSHPort),
		"LD_LIBRARY_PATH=" + cfg.LDLibraryPath,
	}
}

// Threshold returns the minimum acceptable bus bandwidth (GB/s) for a
// group of the given size.
//
// For allreduce the bound follows the ring model, derated to 85%.
// For alltoall the effective bandwidth combines the remote (NIC) and
// local (xGMI) traffic fractions, derated to 70%.
func Threshold(cfg *config.Config, nodeCount int) float64 {
	g := float64(cfg.GPUsPerNode)
	n := float64(nodeCount)

	if cfg.TestType != config.TestTypeAllToAll {
		return 350.0 * n * g / (2*n*g - 1) * 0.85
	}

	remoteFrac := (n - 1) / n
	localFrac := (g - 1) / (g * n)
	beff := 1 / (remoteFrac/cfg.BNICGBps + localFrac/cfg.BXGMIGBps)
	return beff * 0.7
}
