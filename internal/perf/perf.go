// Package perf samples host and process resource usage for the stats command.
package perf

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
)

// DefaultSampleInterval is how long CPU usage is measured.
const DefaultSampleInterval = 200 * time.Millisecond

// Report is a snapshot of resource usage.
type Report struct {
	CPUPercent float64

	MemoryTotal       uint64
	MemoryUsed        uint64
	MemoryUsedPercent float64

	// ProcessRSS is the resident set size of this process.
	ProcessRSS uint64

	// Disk usage of the filesystem holding the storage root.
	DiskPath        string
	DiskTotal       uint64
	DiskFree        uint64
	DiskUsedPercent float64
}

// Collect samples CPU over interval and reads memory and disk usage for the
// filesystem containing root. Individual probes that are unsupported on the
// platform leave their fields zero; only a failure of every probe is an error.
func Collect(ctx context.Context, root string, interval time.Duration) (*Report, error) {
	r := &Report{DiskPath: root}
	var errs []error

	if pct, err := cpu.PercentWithContext(ctx, interval, false); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else if len(pct) > 0 {
		r.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		r.MemoryTotal = vm.Total
		r.MemoryUsed = vm.Used
		r.MemoryUsedPercent = vm.UsedPercent
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err != nil {
		errs = append(errs, fmt.Errorf("process: %w", err))
	} else if mi, err := p.MemoryInfoWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("process memory: %w", err))
	} else {
		r.ProcessRSS = mi.RSS
	}

	if du, err := disk.UsageWithContext(ctx, root); err != nil {
		errs = append(errs, fmt.Errorf("disk: %w", err))
	} else {
		r.DiskTotal = du.Total
		r.DiskFree = du.Free
		r.DiskUsedPercent = du.UsedPercent
	}

	for _, err := range errs {
		log.Warnf("[Perf] %v", err)
	}
	if len(errs) == 4 {
		return nil, fmt.Errorf("no resource probe succeeded: %w", errs[0])
	}
	return r, nil
}
