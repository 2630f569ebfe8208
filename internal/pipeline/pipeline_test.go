package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/media"
	"thumbnail-gallery/internal/ordering"
)

// stubResizer fails for payloads starting with "bad". hook, when set, runs
// once before the first resize.
type stubResizer struct {
	mu    sync.Mutex
	calls map[media.Tier]int
	gate  chan struct{}
	hook  func()
	once  sync.Once
}

func (r *stubResizer) Name() string { return "stub" }

func (r *stubResizer) Resize(data []byte, tier media.Tier) ([]byte, error) {
	if r.gate != nil {
		<-r.gate
	}
	if r.hook != nil {
		r.once.Do(r.hook)
	}
	r.mu.Lock()
	if r.calls == nil {
		r.calls = map[media.Tier]int{}
	}
	r.calls[tier]++
	r.mu.Unlock()

	if bytes.HasPrefix(data, []byte("bad")) {
		return nil, media.ErrUnsupportedFormat
	}
	return append([]byte(string(tier)+":"), data...), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	thumbs []database.Thumbnail
	errs   []error
}

func (n *recordingNotifier) NotifyNewThumbnail(_ context.Context, t database.Thumbnail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.thumbs = append(n.thumbs, t)
	return nil
}

func (n *recordingNotifier) NotifyError(_ context.Context, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

type fixture struct {
	db       *database.Database
	orders   *ordering.Service
	notifier *recordingNotifier
	resizer  *stubResizer
	pipe     *Pipeline
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "pipeline.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:       db,
		orders:   ordering.New(db),
		notifier: &recordingNotifier{},
		resizer:  &stubResizer{},
	}
	f.pipe = New(cfg, db, f.orders, f.notifier, f.resizer)
	return f
}

func (f *fixture) save(t *testing.T, data string, folder int64) int64 {
	t.Helper()
	id, err := f.db.SaveImage(context.Background(), []byte(data), folder)
	if err != nil {
		t.Fatalf("SaveImage() error = %v", err)
	}
	return id
}

func TestProcessAssignsOrderAndNotifies(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Workers: 2, QueueCapacity: 4})
	ctx := context.Background()

	ids := []int64{f.save(t, "a", 0), f.save(t, "b", 0), f.save(t, "c", 0)}
	for _, id := range ids {
		if err := f.pipe.Process(ctx, Job{ImageID: id}); err != nil {
			t.Fatalf("Process(%d) error = %v", id, err)
		}
	}

	refs, _ := f.db.OrderedImagesInFolder(ctx, 0)
	var orders []int64
	for _, r := range refs {
		orders = append(orders, *r.Order)
	}
	if len(orders) != 3 || orders[0] != 0 || orders[1] != 1 || orders[2] != 2 {
		t.Fatalf("orders = %v, want [0 1 2]", orders)
	}

	small := 0
	for _, th := range f.notifier.thumbs {
		if th.Tier == media.TierSmall {
			small++
		}
	}
	if small != 3 || len(f.notifier.thumbs) != 9 {
		t.Errorf("notified %d thumbnails (%d SMALL), want 9 (3 SMALL)", len(f.notifier.thumbs), small)
	}

	thumbs, _ := f.db.ThumbnailsByImage(ctx, ids[1])
	for _, th := range thumbs {
		if th.Order != 1 {
			t.Errorf("thumbnail %s order = %d, want 1", th.Tier, th.Order)
		}
	}
}

func TestProcessRemovesUnsupportedImage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Workers: 1, QueueCapacity: 1})
	ctx := context.Background()

	var reported []int64
	f.pipe.OnFailure = func(id int64, _ error) { reported = append(reported, id) }

	id := f.save(t, "bad-bytes", 0)
	err := f.pipe.Process(ctx, Job{ImageID: id})

	var uerr *media.UnsupportedFormatError
	if !errors.As(err, &uerr) || uerr.ImageID != id {
		t.Fatalf("Process() error = %v, want UnsupportedFormatError for %d", err, id)
	}
	if _, err := f.db.FindImage(ctx, id); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("unsupported image still stored: %v", err)
	}
	if len(reported) != 1 || reported[0] != id {
		t.Errorf("OnFailure calls = %v", reported)
	}
	if len(f.notifier.errs) != 1 || len(f.notifier.thumbs) != 0 {
		t.Errorf("notifier got %d errors, %d thumbnails", len(f.notifier.errs), len(f.notifier.thumbs))
	}
}

func TestProcessImageMovedDuringResize(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	target, err := f.db.EnsureFolder(ctx, "target", 0)
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	existing := f.save(t, "e", target)
	if err := f.pipe.Process(ctx, Job{ImageID: existing}); err != nil {
		t.Fatalf("Process(existing) error = %v", err)
	}

	moved := f.save(t, "m", 0)
	var moveErr error
	f.resizer.hook = func() {
		_, moveErr = f.orders.Assign(ctx, target, func(ctx context.Context, order int64) error {
			return f.db.MoveImage(ctx, moved, 0, target, order)
		})
	}
	if err := f.pipe.Process(ctx, Job{ImageID: moved}); err != nil {
		t.Fatalf("Process(moved) error = %v", err)
	}
	if moveErr != nil {
		t.Fatalf("move during resize error = %v", moveErr)
	}

	refs, _ := f.db.OrderedImagesInFolder(ctx, target)
	if len(refs) != 2 || refs[0].ID != existing || *refs[0].Order != 0 || refs[1].ID != moved || *refs[1].Order != 1 {
		t.Fatalf("target folder = %+v, want existing at 0 and moved at 1", refs)
	}
	thumbs, _ := f.db.ThumbnailsByImage(ctx, moved)
	if len(thumbs) != 3 {
		t.Fatalf("moved image has %d thumbnails, want 3", len(thumbs))
	}
	for _, th := range thumbs {
		if th.Order != 1 {
			t.Errorf("thumbnail %s order = %d, want 1", th.Tier, th.Order)
		}
	}
	if next, ok := f.orders.Peek(0); !ok || next != 0 {
		t.Errorf("root counter = %d, %v; want 0 after the unused order was recounted", next, ok)
	}
	if len(f.notifier.errs) != 0 {
		t.Errorf("unexpected errors: %v", f.notifier.errs)
	}
}

func TestBadImageDoesNotStopSiblings(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Workers: 2, QueueCapacity: 8})
	ctx := context.Background()
	f.pipe.Start()

	good1 := f.save(t, "first", 0)
	bad := f.save(t, "bad-bytes", 0)
	good2 := f.save(t, "second", 0)
	for _, id := range []int64{good1, bad, good2} {
		if err := f.pipe.Submit(Job{ImageID: id}); err != nil {
			t.Fatalf("Submit(%d) error = %v", id, err)
		}
	}
	f.pipe.Stop()

	refs, _ := f.db.OrderedImagesInFolder(ctx, 0)
	if len(refs) != 2 {
		t.Fatalf("ordered images = %+v, want the two good ones", refs)
	}
	got := map[int64]bool{}
	for i, r := range refs {
		if *r.Order != int64(i) {
			t.Errorf("orders not dense: %+v", refs)
		}
		got[r.ID] = true
	}
	if !got[good1] || !got[good2] {
		t.Errorf("ordered images = %+v, want %d and %d", refs, good1, good2)
	}
	if _, err := f.db.FindImage(ctx, bad); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("bad image still stored: %v", err)
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.thumbs) != 6 {
		t.Errorf("notified %d thumbnails, want 6", len(f.notifier.thumbs))
	}
	var uerr *media.UnsupportedFormatError
	if len(f.notifier.errs) != 1 || !errors.As(f.notifier.errs[0], &uerr) || uerr.ImageID != bad {
		t.Errorf("errors = %v, want one UnsupportedFormatError for %d", f.notifier.errs, bad)
	}
	if processed, failed := f.pipe.Stats(); processed != 3 || failed != 1 {
		t.Errorf("Stats() = %d, %d; want 3, 1", processed, failed)
	}
}

func TestProcessSkipsDeletedImage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	if err := f.pipe.Process(context.Background(), Job{ImageID: 12345}); err != nil {
		t.Errorf("Process(missing) error = %v", err)
	}
	if len(f.notifier.errs) != 0 {
		t.Errorf("missing image reported as error: %v", f.notifier.errs)
	}
}

func TestSubmitFailsFastWhenFull(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Workers: 1, QueueCapacity: 1})

	// Without Start nothing drains the queue.
	if err := f.pipe.Submit(Job{ImageID: 1}); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if err := f.pipe.Submit(Job{ImageID: 2}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Submit() error = %v, want ErrQueueFull", err)
	}

	f.pipe.Start()
	f.pipe.Stop()
	if err := f.pipe.Submit(Job{ImageID: 3}); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() after Stop error = %v, want ErrStopped", err)
	}
	f.pipe.Stop()
}

func TestWorkersDrainQueueOnStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Workers: 3, QueueCapacity: 16})
	f.pipe.Start()

	const n = 10
	for i := 0; i < n; i++ {
		id := f.save(t, "img", 0)
		if err := f.pipe.Submit(Job{ImageID: id}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	f.pipe.Stop()

	refs, _ := f.db.OrderedImagesInFolder(context.Background(), 0)
	if len(refs) != n {
		t.Fatalf("ordered images = %d, want %d", len(refs), n)
	}
	orders := make([]int64, n)
	for i, r := range refs {
		orders[i] = *r.Order
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i] < orders[j] })
	for i, o := range orders {
		if o != int64(i) {
			t.Fatalf("orders = %v, want 0..%d", orders, n-1)
		}
	}
	if processed, failed := f.pipe.Stats(); processed != n || failed != 0 {
		t.Errorf("Stats() = %d, %d", processed, failed)
	}
}

func TestGenerateMissingThumbnails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Workers: 2, QueueCapacity: 2})
	ctx := context.Background()

	partial := f.save(t, "p", 0)
	if _, err := f.db.CompleteImage(ctx, partial, 0, 0, []database.NewThumbnail{{Tier: media.TierSmall, Data: []byte("s")}}); err != nil {
		t.Fatalf("CompleteImage() error = %v", err)
	}
	fresh := f.save(t, "f", 0)

	n, err := f.pipe.GenerateMissingThumbnails(ctx)
	if err != nil || n != 2 {
		t.Fatalf("GenerateMissingThumbnails() = %d, %v; want 2", n, err)
	}

	if f.resizer.calls[media.TierSmall] != 1 {
		t.Errorf("SMALL resized %d times, want 1 (only the fresh image)", f.resizer.calls[media.TierSmall])
	}
	for _, id := range []int64{partial, fresh} {
		thumbs, _ := f.db.ThumbnailsByImage(ctx, id)
		if len(thumbs) != 3 {
			t.Errorf("image %d has %d thumbnails, want 3", id, len(thumbs))
		}
	}
	img, _ := f.db.FindImage(ctx, fresh)
	if !img.HasOrder() || *img.Order != 1 {
		t.Errorf("fresh image order = %v, want 1", img.Order)
	}

	if n, err := f.pipe.GenerateMissingThumbnails(ctx); err != nil || n != 0 {
		t.Errorf("second scan = %d, %v; want 0", n, err)
	}
}

type blockingThrottle struct{}

func (blockingThrottle) Wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestProcessHonoursThrottle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Throttle: blockingThrottle{}})
	id := f.save(t, "a", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.pipe.Process(ctx, Job{ImageID: id}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Process() error = %v, want deadline exceeded", err)
	}
	if len(f.resizer.calls) != 0 {
		t.Error("resized while throttled")
	}
}
