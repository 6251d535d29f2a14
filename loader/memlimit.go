package loader

import (
	"os"

	"github.com/containerd/cgroups/v3/cgroup2"
	"github.com/pbnjay/memory"
	"github.com/shirou/gopsutil/v4/mem"
)

// Budget is a sample of how much memory the process may use before the
// cache-arranger should start backing off its own prefetch requests
// (spec.md §5). TotalBytes comes from the host via pbnjay/memory and
// AvailableBytes via gopsutil; CgroupLimitBytes, if CgroupDetected, overrides TotalBytes
// when the process is confined tighter than the host itself (a container
// memory limit, most commonly).
type Budget struct {
	TotalBytes       uint64
	AvailableBytes   uint64
	CgroupLimitBytes uint64
	CgroupDetected   bool
}

// EffectiveTotal is the smaller of the host total and any detected
// cgroup limit — the number the cache-arranger should size its working
// set against.
func (b Budget) EffectiveTotal() uint64 {
	if b.CgroupDetected && b.CgroupLimitBytes > 0 && b.CgroupLimitBytes < b.TotalBytes {
		return b.CgroupLimitBytes
	}
	return b.TotalBytes
}

// SampleBudget takes a one-shot reading of host memory (pbnjay/memory for
// the total, shirou/gopsutil/v4/mem for what's currently available) plus
// a best-effort cgroup v2 memory limit lookup. Any failure in the cgroup
// lookup degrades silently to CgroupDetected=false rather than failing
// the caller — this is a sizing hint, not a correctness dependency.
func SampleBudget() *Budget {
	b := &Budget{TotalBytes: memory.TotalMemory()}

	if vm, err := mem.VirtualMemory(); err == nil {
		b.AvailableBytes = vm.Available
	} else {
		b.AvailableBytes = b.TotalBytes
	}

	if limit, ok := cgroupMemoryLimit(); ok {
		b.CgroupLimitBytes = limit
		b.CgroupDetected = true
	}

	return b
}

// cgroupMemoryLimit reads the current process's own cgroup v2
// memory.max via containerd/cgroups/v3/cgroup2. It returns ok=false on
// any error — no cgroup v2 mount, process not in a confined group,
// "max" (unlimited) reported, or running on a cgroup v1-only host —
// since the caller only uses this to tighten its memory estimate, never
// to loosen or gate correctness on it.
func cgroupMemoryLimit() (limit uint64, ok bool) {
	path, err := cgroup2.PidGroupPath(os.Getpid())
	if err != nil {
		return 0, false
	}
	manager, err := cgroup2.Load(path)
	if err != nil {
		return 0, false
	}
	stat, err := manager.Stat()
	if err != nil || stat == nil || stat.Memory == nil {
		return 0, false
	}
	if stat.Memory.UsageLimit == 0 || stat.Memory.UsageLimit == uint64(1)<<63 {
		return 0, false
	}
	return stat.Memory.UsageLimit, true
}
