// Package config provides the preflight diagnostic configuration data.
package config

import (
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

const (
	TestTypeAllReduce = "all_reduce"
	TestTypeAllToAll  = "alltoall"
)

// Config provides the configuration for a diagnostic session.
// Every value the launcher environment used to hardcode is a field here,
// so operators can override per cluster.
type Config struct {
	// Path to the MPI launcher binary.
	MpirunPath string `json:"mpirun_path"`

	// Paths to the collective benchmark binaries.
	AllReducePerfPath string `json:"all_reduce_perf_path"`
	AllToAllPerfPath  string `json:"alltoall_perf_path"`

	// Benchmark flavor to run: "all_reduce" or "alltoall".
	TestType string `json:"test_type"`

	// Number of worker processes (one per GPU) launched on each node.
	GPUsPerNode int `json:"gpus_per_node"`

	// Largest message size swept by the benchmark (e.g. "8G").
	// Empty derives it from the cluster size: 16G at >=64 nodes, 8G below.
	MaxBytes string `json:"max_bytes"`

	// Communication-library environment.
	SocketIfname  string `json:"socket_ifname"`
	IBHCA         string `json:"ib_hca"`
	IBGIDIndex    int    `json:"ib_gid_index"`
	LDLibraryPath string `json:"ld_library_path"`
	CommDebug     string `json:"comm_debug"`

	// Set true to load the AMD network plugin environment profile.
	EnableAINIC bool `json:"enable_ainic"`

	// Per-NIC and intra-node link bandwidths (GB/s) feeding the
	// alltoall threshold model.
	BNICGBps  float64 `json:"bnic_gbps"`
	BXGMIGBps float64 `json:"bxgmi_gbps"`

	// Port used for passwordless SSH between nodes.
	SSHPort int `json:"ssh_port"`

	// Wall-clock bound for one benchmark run, in seconds.
	RunTimeoutSeconds int `json:"run_timeout_seconds"`

	// Bound for the pre-run connectivity check, in seconds.
	ConnectTimeoutSeconds int `json:"connect_timeout_seconds"`

	// Number of times an inconclusive group is re-run before the
	// conservative unhealthy fallback applies.
	RetryBudget int `json:"retry_budget"`

	// Maximum number of concurrently running benchmark launches.
	Concurrency int `json:"concurrency"`

	// How long a suspect waits for a confirmed-healthy reference node
	// before pairing with an arbitrary untested one, in seconds.
	ReferenceWaitSeconds int `json:"reference_wait_seconds"`

	// Directory for per-group raw benchmark output files.
	OutputDir string `json:"output_dir"`

	// SQLite file that persists the benchmark run log.
	// If empty, runs are kept in memory only.
	StateFile string `json:"state_file"`

	// Single-node self-test fallback.
	IBWriteBWPath string  `json:"ib_write_bw_path"`
	MinNICGbps    float64 `json:"min_nic_gbps"`
}

func DefaultConfig() *Config {
	return &Config{
		MpirunPath:        "/opt/mpich/bin/mpirun",
		AllReducePerfPath: "/opt/rccl-tests/build/all_reduce_perf",
		AllToAllPerfPath:  "/opt/rccl-tests/build/alltoall_perf",
		TestType:          TestTypeAllReduce,

		GPUsPerNode: 8,

		SocketIfname:  "ens51f0",
		IBHCA:         "bnxt_re0,bnxt_re1,bnxt_re2,bnxt_re3,bnxt_re4,bnxt_re5,bnxt_re6,bnxt_re7",
		IBGIDIndex:    3,
		LDLibraryPath: "/opt/rocm/lib:/opt/mpich/lib:/usr/local/lib",
		CommDebug:     "DEBUG",

		BNICGBps:  48.0,
		BXGMIGBps: 315.0,

		SSHPort: 22,

		RunTimeoutSeconds:     300,
		ConnectTimeoutSeconds: 300,
		RetryBudget:           1,
		Concurrency:           8,
		ReferenceWaitSeconds:  60,

		OutputDir: os.TempDir(),

		IBWriteBWPath: "/opt/rdma-perftest/bin/ib_write_bw",
		MinNICGbps:    350.0,
	}
}

func (config *Config) Validate() error {
	if config.MpirunPath == "" {
		return errors.New("mpirun_path is required")
	}
	if config.TestType != TestTypeAllReduce && config.TestType != TestTypeAllToAll {
		return fmt.Errorf("invalid test_type %q (expected %q or %q)", config.TestType, TestTypeAllReduce, TestTypeAllToAll)
	}
	if config.GPUsPerNode <= 0 {
		return errors.New("gpus_per_node must be positive")
	}
	if config.RunTimeoutSeconds <= 0 {
		return errors.New("run_timeout_seconds must be positive")
	}
	if config.RetryBudget < 0 {
		return errors.New("retry_budget must not be negative")
	}
	if config.Concurrency <= 0 {
		return errors.New("concurrency must be positive")
	}
	if config.ReferenceWaitSeconds < 0 {
		return errors.New("reference_wait_seconds must not be negative")
	}
	return nil
}

// BenchmarkPath returns the benchmark binary for the configured test type.
func (config *Config) BenchmarkPath() string {
	if config.TestType == TestTypeAllToAll {
		return config.AllToAllPerfPath
	}
	return config.AllReducePerfPath
}

// MaxBytesForNodes returns the configured sweep bound, or derives it
// from the cluster size when unset.
func (config *Config) MaxBytesForNodes(nodeCount int) string {
	if config.MaxBytes != "" {
		return config.MaxBytes
	}
	if nodeCount >= 64 {
		return "16G"
	}
	return "8G"
}

// LoadConfig loads the configuration from the given YAML file and
// fills in defaults for any field left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	return config, nil
}
