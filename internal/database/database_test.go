package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"thumbnail-gallery/internal/media"
)

func setupTestDB(t testing.TB) *Database {
	t.Helper()

	db, err := Open(context.Background(), Options{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func thumbsFor(tiers ...media.Tier) []NewThumbnail {
	out := make([]NewThumbnail, len(tiers))
	for i, tier := range tiers {
		out[i] = NewThumbnail{Tier: tier, Data: []byte("thumb-" + tier)}
	}
	return out
}

func TestRebind(t *testing.T) {
	t.Parallel()

	q := "SELECT * FROM images WHERE folder_id = ? AND id = ?"
	if got := sqliteDialect.rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	want := "SELECT * FROM images WHERE folder_id = $1 AND id = $2"
	if got := postgresDialect.rebind(q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestIDsFilter(t *testing.T) {
	t.Parallel()

	clause, args := sqliteDialect.idsFilter("id", []int64{4, 5, 6})
	if clause != "id IN (?,?,?)" || len(args) != 3 {
		t.Errorf("sqlite idsFilter = %q, %v", clause, args)
	}
	clause, args = postgresDialect.idsFilter("id", []int64{4, 5, 6})
	if clause != "id = ANY(?)" || len(args) != 1 {
		t.Errorf("postgres idsFilter = %q, %v", clause, args)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Options{Driver: "mysql"}); err == nil {
		t.Error("Open() expected error for unknown driver")
	}
}

func TestSaveAndFindImage(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	payload := []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01, 0x02}
	id, err := db.SaveImage(ctx, payload, RootFolderID)
	if err != nil {
		t.Fatalf("SaveImage() error = %v", err)
	}

	img, err := db.FindImage(ctx, id)
	if err != nil {
		t.Fatalf("FindImage() error = %v", err)
	}
	if string(img.Data) != string(payload) {
		t.Errorf("FindImage() data = %v, want %v", img.Data, payload)
	}
	if img.HasOrder() {
		t.Error("fresh image should have no order")
	}

	if _, err := db.FindImage(ctx, id+100); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindImage(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFindImages(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	a, _ := db.SaveImage(ctx, []byte("a"), RootFolderID)
	b, _ := db.SaveImage(ctx, []byte("b"), RootFolderID)

	imgs, err := db.FindImages(ctx, []int64{b, a, 9999})
	if err != nil {
		t.Fatalf("FindImages() error = %v", err)
	}
	if len(imgs) != 2 || imgs[0].ID != a || imgs[1].ID != b {
		t.Fatalf("FindImages() = %+v, want ids [%d %d]", imgs, a, b)
	}
	if string(imgs[1].Data) != "b" {
		t.Errorf("FindImages()[1].Data = %q, want b", imgs[1].Data)
	}
}

func TestCompleteImageAndPage(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	folder, err := db.EnsureFolder(ctx, "holiday", RootFolderID)
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := db.SaveImage(ctx, []byte{byte(i)}, folder)
		if err != nil {
			t.Fatalf("SaveImage() error = %v", err)
		}
		ids = append(ids, id)
	}

	// Complete out of id order to check paging follows order, not id.
	for order, idx := range []int{2, 0, 1} {
		saved, err := db.CompleteImage(ctx, ids[idx], folder, int64(order), thumbsFor(media.AllTiers...))
		if err != nil {
			t.Fatalf("CompleteImage() error = %v", err)
		}
		if len(saved) != 3 || saved[0].ID == 0 || saved[0].Order != int64(order) {
			t.Fatalf("CompleteImage() = %+v", saved)
		}
	}

	page, err := db.ThumbnailsPage(ctx, folder, media.TierSmall, 2, 0)
	if err != nil {
		t.Fatalf("ThumbnailsPage() error = %v", err)
	}
	if len(page) != 2 || page[0].ImageID != ids[2] || page[1].ImageID != ids[0] {
		t.Fatalf("ThumbnailsPage() = %+v", page)
	}

	page, _ = db.ThumbnailsPage(ctx, folder, media.TierSmall, 2, 2)
	if len(page) != 1 || page[0].ImageID != ids[1] || page[0].Order != 2 {
		t.Fatalf("second page = %+v", page)
	}

	if page, _ := db.ThumbnailsPage(ctx, RootFolderID, media.TierSmall, 10, 0); len(page) != 0 {
		t.Errorf("root page should be empty, got %d", len(page))
	}

	max, ok, err := db.MaxImageOrder(ctx, folder)
	if err != nil || !ok || max != 2 {
		t.Errorf("MaxImageOrder() = %d, %v, %v; want 2, true, nil", max, ok, err)
	}
	if _, ok, _ := db.MaxImageOrder(ctx, RootFolderID); ok {
		t.Error("MaxImageOrder(empty) should report ok=false")
	}
}

func TestCompleteImageIsConditional(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	target, _ := db.EnsureFolder(ctx, "target", RootFolderID)
	id, _ := db.SaveImage(ctx, []byte("x"), RootFolderID)
	if _, err := db.CompleteImage(ctx, id, target, 0, thumbsFor(media.TierSmall)); !errors.Is(err, ErrConflict) {
		t.Errorf("CompleteImage(wrong folder) error = %v, want ErrConflict", err)
	}
	if _, err := db.CompleteImage(ctx, id, RootFolderID, 4, thumbsFor(media.TierSmall)); err != nil {
		t.Fatalf("CompleteImage() error = %v", err)
	}
	if _, err := db.CompleteImage(ctx, id, RootFolderID, 9, thumbsFor(media.TierBig)); !errors.Is(err, ErrConflict) {
		t.Errorf("CompleteImage(already ordered) error = %v, want ErrConflict", err)
	}

	ref, _ := db.ImageRef(ctx, id)
	if ref.Order == nil || *ref.Order != 4 {
		t.Errorf("order after rejected completion = %v, want 4", ref.Order)
	}
	if thumbs, _ := db.ThumbnailsByImage(ctx, id); len(thumbs) != 1 {
		t.Errorf("ThumbnailsByImage() returned %d thumbnails, want 1", len(thumbs))
	}

	if _, err := db.CompleteImage(ctx, 424242, RootFolderID, 0, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteImage(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSaveThumbnails(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	pending, _ := db.SaveImage(ctx, []byte("p"), RootFolderID)
	if _, err := db.SaveThumbnails(ctx, pending, thumbsFor(media.TierSmall)); err == nil {
		t.Error("SaveThumbnails() on an image without order should fail")
	}

	id, _ := db.SaveImage(ctx, []byte("x"), RootFolderID)
	if _, err := db.CompleteImage(ctx, id, RootFolderID, 3, thumbsFor(media.TierSmall)); err != nil {
		t.Fatalf("CompleteImage() error = %v", err)
	}
	saved, err := db.SaveThumbnails(ctx, id, thumbsFor(media.TierMedium, media.TierBig))
	if err != nil {
		t.Fatalf("SaveThumbnails() error = %v", err)
	}
	for _, th := range saved {
		if th.Order != 3 || th.ID == 0 {
			t.Errorf("saved thumbnail = %+v, want order 3 and an id", th)
		}
	}
	if thumbs, _ := db.ThumbnailsByImage(ctx, id); len(thumbs) != 3 {
		t.Errorf("ThumbnailsByImage() returned %d thumbnails, want 3", len(thumbs))
	}

	if _, err := db.SaveThumbnails(ctx, 424242, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveThumbnails(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteImageCascades(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	id, _ := db.SaveImage(ctx, []byte("x"), RootFolderID)
	if _, err := db.CompleteImage(ctx, id, RootFolderID, 0, thumbsFor(media.AllTiers...)); err != nil {
		t.Fatalf("CompleteImage() error = %v", err)
	}

	folder, err := db.DeleteImage(ctx, id)
	if err != nil || folder != RootFolderID {
		t.Fatalf("DeleteImage() = %d, %v", folder, err)
	}
	if thumbs, _ := db.ThumbnailsByImage(ctx, id); len(thumbs) != 0 {
		t.Errorf("thumbnails survived delete: %d", len(thumbs))
	}
	if _, err := db.DeleteImage(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteImage() error = %v, want ErrNotFound", err)
	}
}

func TestRenumberImages(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		id, _ := db.SaveImage(ctx, []byte{byte(i)}, RootFolderID)
		if _, err := db.CompleteImage(ctx, id, RootFolderID, int64(i*3+1), thumbsFor(media.TierSmall)); err != nil {
			t.Fatalf("CompleteImage() error = %v", err)
		}
		ids = append(ids, id)
	}

	other, _ := db.EnsureFolder(ctx, "other", RootFolderID)
	stray, _ := db.SaveImage(ctx, []byte("s"), other)

	n, err := db.RenumberImages(ctx, RootFolderID, []int64{ids[3], stray, ids[1], ids[0]})
	if err != nil {
		t.Fatalf("RenumberImages() error = %v", err)
	}
	if n != 3 {
		t.Errorf("RenumberImages() assigned %d, want 3", n)
	}

	refs, _ := db.OrderedImagesInFolder(ctx, RootFolderID)
	got := map[int64]int64{}
	for _, r := range refs {
		got[r.ID] = *r.Order
	}
	want := map[int64]int64{ids[3]: 0, ids[1]: 1, ids[0]: 2, ids[2]: 7}
	for id, order := range want {
		if got[id] != order {
			t.Errorf("image %d order = %d, want %d", id, got[id], order)
		}
	}

	thumbs, _ := db.ThumbnailsByImage(ctx, ids[3])
	if len(thumbs) != 1 || thumbs[0].Order != 0 {
		t.Errorf("thumbnail order not renumbered: %+v", thumbs)
	}
}

func TestMoveImage(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	target, _ := db.EnsureFolder(ctx, "target", RootFolderID)
	id, _ := db.SaveImage(ctx, []byte("x"), RootFolderID)
	if _, err := db.CompleteImage(ctx, id, RootFolderID, 5, thumbsFor(media.TierMedium)); err != nil {
		t.Fatalf("CompleteImage() error = %v", err)
	}

	if err := db.MoveImage(ctx, id, target, RootFolderID, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("MoveImage(wrong source) error = %v, want ErrNotFound", err)
	}
	if err := db.MoveImage(ctx, id, RootFolderID, target, 0); err != nil {
		t.Fatalf("MoveImage() error = %v", err)
	}

	ref, _ := db.ImageRef(ctx, id)
	if ref.FolderID != target || *ref.Order != 0 {
		t.Errorf("moved image = %+v", ref)
	}
	page, _ := db.ThumbnailsPage(ctx, target, media.TierMedium, 10, 0)
	if len(page) != 1 || page[0].Order != 0 {
		t.Errorf("target page = %+v", page)
	}
}

func TestImagesMissingTiers(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	complete, _ := db.SaveImage(ctx, []byte("c"), RootFolderID)
	partial, _ := db.SaveImage(ctx, []byte("p"), RootFolderID)
	bare, _ := db.SaveImage(ctx, []byte("b"), RootFolderID)

	_, _ = db.CompleteImage(ctx, complete, RootFolderID, 0, thumbsFor(media.AllTiers...))
	_, _ = db.CompleteImage(ctx, partial, RootFolderID, 1, thumbsFor(media.TierSmall))

	missing, err := db.ImagesMissingTiers(ctx, media.AllTiers)
	if err != nil {
		t.Fatalf("ImagesMissingTiers() error = %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("ImagesMissingTiers() = %+v, want 2 entries", missing)
	}
	if missing[0].Image.ID != partial || len(missing[0].Tiers) != 2 || missing[0].Image.Order == nil {
		t.Errorf("partial entry = %+v", missing[0])
	}
	if missing[1].Image.ID != bare || len(missing[1].Tiers) != 3 || missing[1].Image.Order != nil {
		t.Errorf("bare entry = %+v", missing[1])
	}
}

func TestFolders(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	b, err := db.EnsureFolder(ctx, "beta", RootFolderID)
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	a, _ := db.EnsureFolder(ctx, "alpha", RootFolderID)
	nested, _ := db.EnsureFolder(ctx, "alpha", b)

	if again, _ := db.EnsureFolder(ctx, " beta ", RootFolderID); again != b {
		t.Errorf("EnsureFolder() not idempotent: %d != %d", again, b)
	}
	if nested == a {
		t.Error("same name under a different parent must be a different folder")
	}
	if _, err := db.EnsureFolder(ctx, "  ", RootFolderID); err == nil {
		t.Error("EnsureFolder() accepted blank name")
	}

	subs, _ := db.Subfolders(ctx, RootFolderID)
	if len(subs) != 2 || subs[0].Name != "alpha" || subs[1].Name != "beta" {
		t.Errorf("Subfolders() = %+v", subs)
	}
	if p, _ := db.ParentID(ctx, nested); p != b {
		t.Errorf("ParentID(nested) = %d, want %d", p, b)
	}
	if p, _ := db.ParentID(ctx, RootFolderID); p != RootFolderID {
		t.Errorf("ParentID(root) = %d", p)
	}

	if _, err := db.DeleteFolder(ctx, RootFolderID); err == nil {
		t.Error("DeleteFolder(root) should fail")
	}
	if _, err := db.DeleteFolder(ctx, b); !errors.Is(err, ErrConflict) {
		t.Errorf("DeleteFolder(with subfolder) error = %v, want ErrConflict", err)
	}
	if _, err := db.DeleteFolder(ctx, nested); err != nil {
		t.Fatalf("DeleteFolder() error = %v", err)
	}
	if ok, _ := db.FolderExists(ctx, nested); ok {
		t.Error("deleted folder still exists")
	}
	if ids, _ := db.FolderIDs(ctx); len(ids) != 2 {
		t.Errorf("FolderIDs() = %v", ids)
	}
}

func TestDeletedFolderRejectsNewContent(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	folder, _ := db.EnsureFolder(ctx, "doomed", RootFolderID)
	id, _ := db.SaveImage(ctx, []byte("x"), folder)
	if _, err := db.CompleteImage(ctx, id, folder, 0, thumbsFor(media.TierSmall)); err != nil {
		t.Fatalf("CompleteImage() error = %v", err)
	}
	_, _ = db.SaveImage(ctx, []byte("y"), folder)

	removed, err := db.DeleteFolder(ctx, folder)
	if err != nil || removed != 2 {
		t.Fatalf("DeleteFolder() = %d, %v; want 2 removed", removed, err)
	}
	if thumbs, _ := db.ThumbnailsByImage(ctx, id); len(thumbs) != 0 {
		t.Errorf("thumbnails survived folder delete: %d", len(thumbs))
	}

	if _, err := db.SaveImage(ctx, []byte("z"), folder); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveImage(deleted folder) error = %v, want ErrNotFound", err)
	}
	if _, err := db.EnsureFolder(ctx, "child", folder); !errors.Is(err, ErrNotFound) {
		t.Errorf("EnsureFolder(deleted parent) error = %v, want ErrNotFound", err)
	}
	if n, _ := db.CountImagesInFolder(ctx, folder); n != 0 {
		t.Errorf("deleted folder still holds %d images", n)
	}
	if _, err := db.SaveImage(ctx, []byte("r"), RootFolderID); err != nil {
		t.Errorf("SaveImage(root) error = %v", err)
	}
}

func TestEnsureFolderConcurrent(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	const n = 16
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := db.EnsureFolder(ctx, "shared", RootFolderID)
			if err != nil {
				t.Errorf("EnsureFolder() error = %v", err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("EnsureFolder() returned different ids: %v", ids)
		}
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	_, _ = db.EnsureFolder(ctx, "f", RootFolderID)
	done, _ := db.SaveImage(ctx, []byte("d"), RootFolderID)
	_, _ = db.SaveImage(ctx, []byte("p"), RootFolderID)
	_, _ = db.CompleteImage(ctx, done, RootFolderID, 0, thumbsFor(media.TierSmall, media.TierBig))

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Images != 2 || stats.PendingImages != 1 || stats.Folders != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.Thumbnails["SMALL"] != 1 || stats.Thumbnails["MEDIUM"] != 0 {
		t.Errorf("Stats().Thumbnails = %v", stats.Thumbnails)
	}
}
