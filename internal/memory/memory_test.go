package memory

import (
	"context"
	"errors"
	"math"
	"runtime/debug"
	"testing"
	"time"
)

func testMonitor(limit int64, alloc *uint64) *Monitor {
	m := NewMonitor(MonitorConfig{LimitBytes: limit, ResumeAt: 0.5, PauseAt: 0.8, CheckInterval: time.Hour})
	m.read = func() uint64 { return *alloc }
	return m
}

func TestMonitorPausesAndResumes(t *testing.T) {
	alloc := uint64(10)
	m := testMonitor(100, &alloc)

	m.sample()
	if m.Paused() {
		t.Fatal("paused at 10% usage")
	}

	alloc = 90
	m.sample()
	if !m.Paused() {
		t.Fatal("not paused at 90% usage")
	}

	released := make(chan error, 1)
	go func() { released <- m.Wait(context.Background()) }()

	// Between the thresholds the pause holds.
	alloc = 60
	m.sample()
	select {
	case <-released:
		t.Fatal("Wait returned while usage above ResumeAt")
	case <-time.After(20 * time.Millisecond):
	}

	alloc = 40
	m.sample()
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after usage recovered")
	}

	if cur, limit := m.Usage(); cur != 40 || limit != 100 {
		t.Errorf("Usage() = %d, %d", cur, limit)
	}
}

func TestMonitorWaitHonoursContext(t *testing.T) {
	alloc := uint64(95)
	m := testMonitor(100, &alloc)
	m.sample()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	alloc := uint64(95)
	m := testMonitor(100, &alloc)
	m.Start()
	m.sample()

	done := make(chan struct{})
	go func() {
		_ = m.Wait(context.Background())
		close(done)
	}()

	m.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not release waiter")
	}
	m.Stop()
}

func TestConfigureFromEnv(t *testing.T) {
	t.Cleanup(func() { debug.SetMemoryLimit(math.MaxInt64) })

	tests := []struct {
		name       string
		limit      string
		ratio      string
		wantSource string
		wantLimit  int64
	}{
		{"unset", "", "", "none", 0},
		{"invalid limit", "lots", "", "none", 0},
		{"default ratio", "1000000000", "", "MEMORY_LIMIT", 800000000},
		{"custom ratio", "1000000000", "0.5", "MEMORY_LIMIT", 500000000},
		{"ratio out of range", "1000000000", "1.5", "MEMORY_LIMIT", 800000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			got := ConfigureFromEnv()
			if got.Source != tt.wantSource || got.GoMemLimit != tt.wantLimit {
				t.Errorf("ConfigureFromEnv() = %+v, want source %s limit %d", got, tt.wantSource, tt.wantLimit)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		1 << 30: "1.0 GiB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
