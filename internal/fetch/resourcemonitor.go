// Package fetch implements the bounded-concurrency, anti-detection HTTP
// fetcher described in spec §4.9: a task pool, cookie jar, User-Agent
// rotation, per-host rate limiting, manual redirect handling with
// 429/403/503/network retry policies, and body-size ceilings.
package fetch

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sitearchiver/sitearchiver/internal/utils"
)

// ResourceMonitor samples system memory/CPU and converts that into a
// concurrency ceiling, so the Fetcher backs off under memory pressure
// instead of blindly holding the pool open at its configured size.
//
// Grounded on the teacher's internal/crawlers/resource_monitor.go
// (ResourceMonitor.CalculateMaxTabs, the 1-second result cache, the
// progressive available-memory thresholds), generalized from "browser
// tab count" to "fetch concurrency".
type ResourceMonitor struct {
	totalMemory         uint64
	safetyReserveMemory int64
	safetyThreshold     int64
	maxConcurrencyLimit int

	mu            sync.RWMutex
	cachedLimit   int
	lastCacheTime time.Time
}

// NewResourceMonitor builds a monitor capped at maxConcurrencyLimit,
// reading total system memory via gopsutil (falling back to a 4GB
// assumption if the host doesn't expose it, same fallback the teacher
// uses).
func NewResourceMonitor(maxConcurrencyLimit int) *ResourceMonitor {
	vmStat, err := mem.VirtualMemory()
	total := uint64(4 * 1024 * 1024 * 1024)
	if err == nil {
		total = vmStat.Total
	} else {
		utils.Warnf("failed to read system memory, assuming 4GB: %v", err)
	}

	return &ResourceMonitor{
		totalMemory:         total,
		safetyReserveMemory: 256 * 1024 * 1024,
		safetyThreshold:     200 * 1024 * 1024,
		maxConcurrencyLimit: maxConcurrencyLimit,
	}
}

// MaxConcurrency returns the concurrency ceiling the pool should honor
// right now: the lesser of the configured limit, available memory
// divided by a per-worker budget, and four times NumCPU, cached for one second to
// avoid re-sampling on every fetch.
func (rm *ResourceMonitor) MaxConcurrency() int {
	rm.mu.RLock()
	if time.Since(rm.lastCacheTime) < time.Second && rm.cachedLimit > 0 {
		cached := rm.cachedLimit
		rm.mu.RUnlock()
		return cached
	}
	rm.mu.RUnlock()

	vmStat, err := mem.VirtualMemory()
	var available int64
	if err == nil {
		available = int64(vmStat.Available) - rm.safetyReserveMemory
	} else {
		available = int64(rm.totalMemory) - rm.safetyReserveMemory
	}

	const perWorkerBudget = 64 * 1024 * 1024
	byMemory := 1
	if available > rm.safetyThreshold {
		byMemory = int((available - rm.safetyThreshold) / perWorkerBudget)
		if byMemory < 1 {
			byMemory = 1
		}
	}

	limit := byMemory
	if cpus := runtime.NumCPU() * 4; cpus < limit {
		limit = cpus
	}
	if rm.maxConcurrencyLimit > 0 && rm.maxConcurrencyLimit < limit {
		limit = rm.maxConcurrencyLimit
	}
	if limit < 1 {
		limit = 1
	}

	rm.mu.Lock()
	rm.cachedLimit = limit
	rm.lastCacheTime = time.Now()
	rm.mu.Unlock()

	return limit
}

// CPUPercent reports current CPU utilization (100ms sample, matching the
// teacher's sampling window). Nothing in the Fetcher calls it, and
// MaxConcurrency does not take CPU load into account.
func CPUPercent() float64 {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		return 0
	}
	return percentages[0]
}
