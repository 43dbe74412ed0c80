package metrics

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource sample of one process.
type Usage struct {
	CPUPercent float64 `json:"cpuPercent"`
	MemoryMB   float64 `json:"memoryMB"`
	MemoryRSS  uint64  `json:"memoryRSS"`
	NumThreads int32   `json:"numThreads"`
}

// SampleUsage reads CPU and memory figures for pid. CPU and thread counts
// are best effort; a missing process is an error.
func SampleUsage(pid int) (Usage, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	u := Usage{
		MemoryRSS: mem.RSS,
		MemoryMB:  float64(mem.RSS) / 1024 / 1024,
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if n, err := proc.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}
