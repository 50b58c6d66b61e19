package convert

import (
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceGuard refuses to start a job when the host is short on idle CPU,
// memory or disk. Zero thresholds disable the corresponding check.
type ResourceGuard struct {
	IdleCPU  float64 // percent
	FreeMem  int64
	FreeDisk int64
	Dir      string
}

func (g *ResourceGuard) Check() error {
	if g.IdleCPU > 0 {
		p, err := cpu.Percent(0, false)
		if err != nil {
			slog.Warn("could not get CPU usage", "error", err)
		} else if len(p) > 0 && p[0] > (100.0-g.IdleCPU) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], g.IdleCPU)
		}
	}

	if g.FreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			slog.Warn("could not get memory usage", "error", err)
		} else if vm.Available < uint64(g.FreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, g.FreeMem)
		}
	}

	if g.FreeDisk > 0 && g.Dir != "" {
		d, err := disk.Usage(g.Dir)
		if err != nil {
			slog.Warn("could not get disk usage", "dir", g.Dir, "error", err)
		} else if d.Free < uint64(g.FreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, g.FreeDisk)
		}
	}
	return nil
}
