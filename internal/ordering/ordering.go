package ordering

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/logging"
	"thumbnail-gallery/internal/metrics"
)

var log = logging.Component("ordering")

// Store is the persistence the order service needs.
type Store interface {
	MaxImageOrder(ctx context.Context, folderID int64) (int64, bool, error)
	OrderedImagesInFolder(ctx context.Context, folderID int64) ([]database.ImageRef, error)
	RenumberImages(ctx context.Context, folderID int64, ids []int64) (int64, error)
	FolderIDs(ctx context.Context) ([]int64, error)
}

// counter is the order state of one folder. Assignments hold gate shared;
// a recount holds it exclusively.
type counter struct {
	gate   sync.RWMutex
	seedMu sync.Mutex
	seeded bool
	next   atomic.Int64
}

// Service hands out per-folder display orders and re-densifies them.
type Service struct {
	store Store

	mu       sync.Mutex
	counters map[int64]*counter
}

// New creates an order service backed by store.
func New(store Store) *Service {
	return &Service{
		store:    store,
		counters: make(map[int64]*counter),
	}
}

func (s *Service) counter(folderID int64) *counter {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[folderID]
	if !ok {
		c = &counter{}
		s.counters[folderID] = c
		metrics.OrderCountersTracked.Set(float64(len(s.counters)))
	}
	return c
}

// seed loads the next value from storage once: one past the current
// maximum, or 0 for a folder with no ordered images.
func (s *Service) seed(ctx context.Context, folderID int64, c *counter) error {
	c.seedMu.Lock()
	defer c.seedMu.Unlock()

	if c.seeded {
		return nil
	}

	max, ok, err := s.store.MaxImageOrder(ctx, folderID)
	if err != nil {
		return fmt.Errorf("seed order counter for folder %d: %w", folderID, err)
	}
	next := int64(0)
	if ok {
		next = max + 1
	}
	c.next.Store(next)
	c.seeded = true
	log.Debugf("folder %d counter seeded at %d", folderID, next)
	return nil
}

// NextOrder returns an order value no other caller for folderID receives.
func (s *Service) NextOrder(ctx context.Context, folderID int64) (int64, error) {
	c := s.counter(folderID)
	c.gate.RLock()
	defer c.gate.RUnlock()

	return s.take(ctx, folderID, c)
}

func (s *Service) take(ctx context.Context, folderID int64, c *counter) (int64, error) {
	if err := s.seed(ctx, folderID, c); err != nil {
		return 0, err
	}
	metrics.OrderAssignmentsTotal.Inc()
	return c.next.Add(1) - 1, nil
}

// Assign takes the next order for folderID and runs persist with it before
// any recount of that folder can start. A failed persist leaves a gap that
// the next recount closes.
func (s *Service) Assign(ctx context.Context, folderID int64, persist func(ctx context.Context, order int64) error) (int64, error) {
	c := s.counter(folderID)
	c.gate.RLock()
	defer c.gate.RUnlock()

	order, err := s.take(ctx, folderID, c)
	if err != nil {
		return 0, err
	}
	if err := persist(ctx, order); err != nil {
		return 0, err
	}
	return order, nil
}

// Recount renumbers the ordered images of folderID to 0..n-1, keeping their
// relative order and skipping excluded ids, then resets the counter to n.
// Images still waiting for an order are not touched; they will receive
// n, n+1, ... when they complete.
func (s *Service) Recount(ctx context.Context, folderID int64, excluded ...int64) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.OrderRecountsTotal.WithLabelValues(status).Inc()
		metrics.OrderRecountDuration.Observe(time.Since(start).Seconds())
	}()

	c := s.counter(folderID)
	c.gate.Lock()
	defer c.gate.Unlock()

	refs, err := s.store.OrderedImagesInFolder(ctx, folderID)
	if err != nil {
		return fmt.Errorf("recount folder %d: %w", folderID, err)
	}

	skip := make(map[int64]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		if !skip[ref.ID] {
			ids = append(ids, ref.ID)
		}
	}

	n, err := s.store.RenumberImages(ctx, folderID, ids)
	if err != nil {
		// The counter may now lag storage; reseed on next use.
		c.seedMu.Lock()
		c.seeded = false
		c.seedMu.Unlock()
		return fmt.Errorf("recount folder %d: %w", folderID, err)
	}

	c.seedMu.Lock()
	c.next.Store(n)
	c.seeded = true
	c.seedMu.Unlock()

	log.Debugf("folder %d recounted: %d images", folderID, n)
	return nil
}

// Initialize seeds counters for the root and every stored folder. Folders
// that fail to seed are logged and seeded lazily on first use.
func (s *Service) Initialize(ctx context.Context) error {
	ids, err := s.store.FolderIDs(ctx)
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	ids = append([]int64{database.RootFolderID}, ids...)

	seeded := 0
	for _, id := range ids {
		if err := s.seed(ctx, id, s.counter(id)); err != nil {
			log.Warnf("%v; will retry on first use", err)
			continue
		}
		seeded++
	}
	log.Infof("order counters initialized for %d/%d folders", seeded, len(ids))
	return nil
}

// Forget drops the counter of a deleted folder.
func (s *Service) Forget(folderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, folderID)
	metrics.OrderCountersTracked.Set(float64(len(s.counters)))
}

// Peek returns the value the next assignment in folderID would get, if the
// counter has been seeded.
func (s *Service) Peek(folderID int64) (int64, bool) {
	s.mu.Lock()
	c, ok := s.counters[folderID]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}

	c.seedMu.Lock()
	defer c.seedMu.Unlock()
	if !c.seeded {
		return 0, false
	}
	return c.next.Load(), true
}
