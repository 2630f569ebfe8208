package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"thumbnail-gallery/internal/logging"
	"thumbnail-gallery/internal/metrics"
)

// MonitorConfig holds the thresholds of a Monitor, as fractions of the limit.
type MonitorConfig struct {
	// LimitBytes is the reference limit; 0 uses GOMEMLIMIT.
	LimitBytes int64
	// ResumeAt releases waiting work once usage falls below it.
	ResumeAt float64
	// PauseAt holds new work once usage reaches it.
	PauseAt       float64
	CheckInterval time.Duration
}

// DefaultMonitorConfig returns the thresholds used by the server.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ResumeAt:      0.7,
		PauseAt:       0.85,
		CheckInterval: 2 * time.Second,
	}
}

// Monitor samples heap usage and holds thumbnail generation while it is
// above PauseAt. A Monitor without a limit never pauses.
type Monitor struct {
	config MonitorConfig
	limit  int64
	read   func() uint64

	mu      sync.Mutex
	current uint64
	paused  bool
	resume  chan struct{}

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor creates a monitor. Start begins sampling.
func NewMonitor(config MonitorConfig) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no limit configured, throttling disabled")
	}

	return &Monitor{
		config: config,
		limit:  limit,
		read:   heapAlloc,
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start samples usage every CheckInterval until Stop.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases every waiter.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
		m.setPaused(false, 0)
	})
}

func (m *Monitor) sample() {
	alloc := m.read()
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	m.current = alloc
	paused := m.paused
	m.mu.Unlock()

	switch {
	case !paused && usage >= m.config.PauseAt:
		logging.Warn("Memory at %.1f%% of limit, pausing thumbnail generation", usage*100)
		metrics.MemoryThrottleEvents.Inc()
		m.setPaused(true, usage)
		go runtime.GC()
	case paused && usage < m.config.ResumeAt:
		logging.Info("Memory recovered to %.1f%% of limit, resuming thumbnail generation", usage*100)
		m.setPaused(false, usage)
	}
}

func (m *Monitor) setPaused(paused bool, usage float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused == paused {
		return
	}
	m.paused = paused
	if paused {
		metrics.MemoryThrottled.Set(1)
		return
	}
	metrics.MemoryThrottled.Set(0)
	close(m.resume)
	m.resume = make(chan struct{})
	logging.Debug("Memory throttle released at %.2f usage", usage)
}

// Wait blocks while generation is paused. It returns ctx's error if ctx
// ends first.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return nil
	}
	resume := m.resume
	m.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether generation is currently held.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled allocation and the limit.
func (m *Monitor) Usage() (current uint64, limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.limit
}
