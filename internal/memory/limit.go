package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"thumbnail-gallery/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest covers libvips buffers and goroutine stacks.
const DefaultMemoryRatio = 0.8

// LimitResult describes what ConfigureFromEnv did.
type LimitResult struct {
	Configured     bool
	Source         string // GOMEMLIMIT, MEMORY_LIMIT or none
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets the Go soft memory limit from MEMORY_LIMIT (bytes,
// usually from the Kubernetes Downward API) scaled by MEMORY_RATIO. An
// explicit GOMEMLIMIT wins. Call before large allocations.
func ConfigureFromEnv() LimitResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := LimitResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, leaving GOMEMLIMIT unset")
		return LimitResult{Source: "none"}
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", raw)
		return LimitResult{Source: "none"}
	}

	ratio := DefaultMemoryRatio
	if rs := os.Getenv("MEMORY_RATIO"); rs != "" {
		r, err := strconv.ParseFloat(rs, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using %.2f", rs, err, DefaultMemoryRatio)
		case r <= 0 || r > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using %.2f", rs, DefaultMemoryRatio)
		default:
			ratio = r
		}
	}

	goLimit := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(goLimit)
	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s)", FormatBytes(goLimit), ratio*100, FormatBytes(limit))

	return LimitResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: limit,
		GoMemLimit:     goLimit,
		Ratio:          ratio,
	}
}

// FormatBytes renders b with a binary unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
