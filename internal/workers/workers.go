package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "PIPELINE_WORKERS"

// Count returns the number of workers for a task type, scaled from
// GOMAXPROCS (which follows container CPU limits).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks (resizing)
//   - 2.0 for I/O-bound tasks (database writes, socket sends)
//   - 1.5 for mixed tasks
//
// limit caps the result; 0 means no cap. PIPELINE_WORKERS overrides the
// computed value but not the cap.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capAt(count, limit)
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	return capAt(workers, limit)
}

// Resolve returns configured when positive, otherwise ForCPU(limit).
func Resolve(configured, limit int) int {
	if configured > 0 {
		return capAt(configured, limit)
	}
	return ForCPU(limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
