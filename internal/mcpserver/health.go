package mcpserver

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthReport is the rhema.health tool's result: process and host
// resource stats alongside the daemon's own view of its state, distinct
// from the admin liveness/readiness HTTP probes in middleware_health.go.
type HealthReport struct {
	Status        string    `json:"status"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Goroutines    int       `json:"goroutines"`
	MemRSSBytes   uint64    `json:"mem_rss_bytes"`
	MemVMSBytes   uint64    `json:"mem_vms_bytes"`
	CPUPercent    float64   `json:"cpu_percent"`
	HostMemUsed   float64   `json:"host_mem_used_percent"`
	OpenSessions  int       `json:"open_sessions"`
	CheckedAt     time.Time `json:"checked_at"`
}

// HealthReporter samples process and host metrics for the rhema.health
// tool (§11 domain stack: github.com/shirou/gopsutil/v3).
type HealthReporter struct {
	startedAt time.Time
	proc      *process.Process
}

// NewHealthReporter captures the current process handle at daemon start.
func NewHealthReporter(pid int32) (*HealthReporter, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	return &HealthReporter{startedAt: time.Now(), proc: proc}, nil
}

// Report samples the current process and host state. Sampling failures on
// individual gopsutil calls are tolerated (left at zero value) rather than
// failing the whole report: a health tool that can't answer "how much CPU"
// should still answer "is it up".
func (h *HealthReporter) Report(ctx context.Context, openSessions int) HealthReport {
	report := HealthReport{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		OpenSessions:  openSessions,
		CheckedAt:     time.Now(),
	}

	if h.proc != nil {
		if memInfo, err := h.proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
			report.MemRSSBytes = memInfo.RSS
			report.MemVMSBytes = memInfo.VMS
		}
		if pct, err := h.proc.CPUPercentWithContext(ctx); err == nil {
			report.CPUPercent = pct
		}
	}

	if cpuPercents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(cpuPercents) > 0 && report.CPUPercent == 0 {
		report.CPUPercent = cpuPercents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		report.HostMemUsed = vm.UsedPercent
	}

	return report
}
