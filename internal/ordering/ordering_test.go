package ordering

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"thumbnail-gallery/internal/database"
)

// fakeStore keeps image orders per folder in memory.
type fakeStore struct {
	mu      sync.Mutex
	folders map[int64]map[int64]*int64 // folder -> image -> order
	failMax map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		folders: map[int64]map[int64]*int64{},
		failMax: map[int64]bool{},
	}
}

func (f *fakeStore) put(folder, id int64, order *int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.folders[folder] == nil {
		f.folders[folder] = map[int64]*int64{}
	}
	f.folders[folder][id] = order
}

func (f *fakeStore) setOrder(folder, id, order int64) {
	f.put(folder, id, &order)
}

func (f *fakeStore) MaxImageOrder(_ context.Context, folder int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMax[folder] {
		return 0, false, errors.New("storage offline")
	}
	var (
		max int64
		ok  bool
	)
	for _, o := range f.folders[folder] {
		if o != nil && (!ok || *o > max) {
			max, ok = *o, true
		}
	}
	return max, ok, nil
}

func (f *fakeStore) OrderedImagesInFolder(_ context.Context, folder int64) ([]database.ImageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []database.ImageRef
	for id, o := range f.folders[folder] {
		if o != nil {
			v := *o
			refs = append(refs, database.ImageRef{ID: id, FolderID: folder, Order: &v})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if *refs[i].Order != *refs[j].Order {
			return *refs[i].Order < *refs[j].Order
		}
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}

func (f *fakeStore) RenumberImages(_ context.Context, folder int64, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := f.folders[folder][id]; !ok {
			continue
		}
		v := n
		f.folders[folder][id] = &v
		n++
	}
	return n, nil
}

func (f *fakeStore) FolderIDs(context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.folders {
		if id != database.RootFolderID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) orders(folder int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, o := range f.folders[folder] {
		if o != nil {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func assertDense(t *testing.T, orders []int64) {
	t.Helper()
	for i, o := range orders {
		if o != int64(i) {
			t.Fatalf("orders not dense: %v", orders)
		}
	}
}

func TestNextOrderSeeding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	store.setOrder(1, 10, 4)
	store.setOrder(1, 11, 2)
	store.put(1, 12, nil)

	svc := New(store)

	if got, err := svc.NextOrder(ctx, 1); err != nil || got != 5 {
		t.Errorf("NextOrder(seeded folder) = %d, %v; want 5", got, err)
	}
	if got, _ := svc.NextOrder(ctx, 1); got != 6 {
		t.Errorf("second NextOrder = %d, want 6", got)
	}
	if got, _ := svc.NextOrder(ctx, 2); got != 0 {
		t.Errorf("NextOrder(empty folder) = %d, want 0", got)
	}
}

func TestNextOrderConcurrentUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := New(newFakeStore())

	const n = 200
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.NextOrder(ctx, 7)
			if err != nil {
				t.Errorf("NextOrder() error = %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	assertDense(t, results)
}

func TestRecountDensifies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	store.setOrder(3, 1, 0)
	store.setOrder(3, 2, 3)
	store.setOrder(3, 3, 7)
	store.setOrder(3, 4, 9)
	store.put(3, 5, nil)

	svc := New(store)
	if err := svc.Recount(ctx, 3); err != nil {
		t.Fatalf("Recount() error = %v", err)
	}

	assertDense(t, store.orders(3))
	if next, ok := svc.Peek(3); !ok || next != 4 {
		t.Errorf("Peek() = %d, %v; want 4, true", next, ok)
	}

	// The in-flight image keeps a NULL order and gets the next value later.
	if got, _ := svc.NextOrder(ctx, 3); got != 4 {
		t.Errorf("NextOrder after recount = %d, want 4", got)
	}
}

func TestRecountExcludes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	for i := int64(0); i < 5; i++ {
		store.setOrder(0, 100+i, i)
	}

	svc := New(store)
	if err := svc.Recount(ctx, 0, 101, 103); err != nil {
		t.Fatalf("Recount() error = %v", err)
	}

	refs, _ := store.OrderedImagesInFolder(ctx, 0)
	got := map[int64]int64{}
	for _, r := range refs {
		got[r.ID] = *r.Order
	}
	for id, want := range map[int64]int64{100: 0, 102: 1, 104: 2} {
		if got[id] != want {
			t.Errorf("image %d order = %d, want %d", id, got[id], want)
		}
	}
	if next, _ := svc.Peek(0); next != 3 {
		t.Errorf("Peek() = %d, want 3", next)
	}
}

func TestAssignAndRecountInterleave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	svc := New(store)

	const uploads = 100
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		id := int64(1000 + i)
		store.put(9, id, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Assign(ctx, 9, func(_ context.Context, order int64) error {
				store.setOrder(9, id, order)
				return nil
			})
			if err != nil {
				t.Errorf("Assign() error = %v", err)
			}
		}()
		if i%10 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := svc.Recount(ctx, 9); err != nil {
					t.Errorf("Recount() error = %v", err)
				}
			}()
		}
	}
	wg.Wait()

	orders := store.orders(9)
	if len(orders) != uploads {
		t.Fatalf("got %d ordered images, want %d", len(orders), uploads)
	}
	for i := 1; i < len(orders); i++ {
		if orders[i] == orders[i-1] {
			t.Fatalf("duplicate order %d in %v", orders[i], orders)
		}
	}

	if err := svc.Recount(ctx, 9); err != nil {
		t.Fatalf("final Recount() error = %v", err)
	}
	assertDense(t, store.orders(9))
}

func TestAssignPersistFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := New(newFakeStore())

	boom := errors.New("write failed")
	if _, err := svc.Assign(ctx, 1, func(context.Context, int64) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Assign() error = %v, want %v", err, boom)
	}
	if got, _ := svc.NextOrder(ctx, 1); got != 1 {
		t.Errorf("NextOrder after failed persist = %d, want 1", got)
	}
}

func TestInitializeFallsBackToLazySeeding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	store.setOrder(4, 1, 2)
	store.setOrder(5, 2, 6)
	store.failMax[4] = true

	svc := New(store)
	if err := svc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if next, ok := svc.Peek(5); !ok || next != 7 {
		t.Errorf("Peek(5) = %d, %v; want 7, true", next, ok)
	}
	if _, ok := svc.Peek(4); ok {
		t.Error("folder 4 should not be seeded after a failed seed")
	}
	if next, ok := svc.Peek(database.RootFolderID); !ok || next != 0 {
		t.Errorf("Peek(root) = %d, %v; want 0, true", next, ok)
	}

	store.mu.Lock()
	store.failMax[4] = false
	store.mu.Unlock()

	if got, err := svc.NextOrder(ctx, 4); err != nil || got != 3 {
		t.Errorf("lazy NextOrder(4) = %d, %v; want 3", got, err)
	}
}

func TestForget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := New(newFakeStore())

	_, _ = svc.NextOrder(ctx, 8)
	svc.Forget(8)
	if _, ok := svc.Peek(8); ok {
		t.Error("Peek() after Forget should report unseeded")
	}
}
