package gallery

import (
	"context"
	"fmt"

	"thumbnail-gallery/internal/broadcast"
	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/media"
	"thumbnail-gallery/internal/protocol"
	"thumbnail-gallery/internal/session"
)

// TotalPages returns the number of pages for count items, at least 1.
func TotalPages(count, size int) int {
	pages := (count + size - 1) / size
	if pages < 1 {
		return 1
	}
	return pages
}

// Placeholders returns how many items page holds.
func Placeholders(count, size, page int) int {
	n := count - size*(page-1)
	if n > size {
		n = size
	}
	if n < 0 {
		return 0
	}
	return n
}

// GetThumbnails switches the session to the requested view and streams it:
// placeholder count, folder listing, one message per thumbnail, then
// FETCHING_END_RESPONSE.
func (g *Gallery) GetThumbnails(ctx context.Context, sess session.Session, req protocol.GetThumbnailsRequest) error {
	if err := g.requireFolder(ctx, req.FolderID); err != nil {
		return err
	}
	count, err := g.db.CountImagesInFolder(ctx, req.FolderID)
	if err != nil {
		return fmt.Errorf("count images: %w", err)
	}

	page := min(max(req.Page, 1), TotalPages(count, req.Size))
	updated, ok := g.sessions.UpdateSubscription(sess.ID(), req.Tier, req.FolderID, page)
	if ok {
		sess = updated
	}

	if err := g.bcast.Send(ctx, sess, protocol.Placeholders(Placeholders(count, req.Size, page))); err != nil {
		return err
	}
	listing, err := g.bcast.FolderListing(ctx, req.FolderID)
	if err != nil {
		return err
	}
	if err := g.bcast.Send(ctx, sess, listing); err != nil {
		return err
	}
	return g.streamPage(ctx, sess, req.Tier, req.FolderID, page, req.Size)
}

// GetNextPage advances the session by one page, stopping at the last, and
// streams it in the session's tier.
func (g *Gallery) GetNextPage(ctx context.Context, sess session.Session, req protocol.GetNextPageRequest) error {
	count, err := g.db.CountImagesInFolder(ctx, req.FolderID)
	if err != nil {
		return fmt.Errorf("count images: %w", err)
	}

	next := min(req.Page+1, TotalPages(count, req.Size))
	tier := sess.Tier
	if !tier.Valid() {
		tier = media.TierSmall
	}
	var (
		updated session.Session
		ok      bool
	)
	if req.FolderID == sess.FolderID && tier == sess.Tier {
		updated, ok = g.sessions.UpdatePage(sess.ID(), next)
	} else {
		updated, ok = g.sessions.UpdateSubscription(sess.ID(), tier, req.FolderID, next)
	}
	if ok {
		sess = updated
	}
	return g.streamPage(ctx, sess, tier, req.FolderID, next, req.Size)
}

func (g *Gallery) streamPage(ctx context.Context, sess session.Session, tier media.Tier, folderID int64, page, size int) error {
	thumbs, err := g.db.ThumbnailsPage(ctx, folderID, tier, size, (page-1)*size)
	if err != nil {
		return fmt.Errorf("load page %d: %w", page, err)
	}
	for _, t := range thumbs {
		msg := protocol.Thumbnails(tier, folderID, broadcast.ThumbnailData(t))
		if err := g.bcast.Send(ctx, sess, msg); err != nil {
			return err
		}
	}
	return g.bcast.NotifyFetchingEnd(ctx, sess)
}

// GetImage sends the full bytes of every requested image that exists.
func (g *Gallery) GetImage(ctx context.Context, sess session.Session, req protocol.GetImageRequest) error {
	images, err := g.db.FindImages(ctx, req.IDs)
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	if len(images) == 0 {
		return fmt.Errorf("images %v: %w", req.IDs, database.ErrNotFound)
	}

	items := make([]protocol.ImageData, len(images))
	for i, img := range images {
		items[i] = protocol.ImageData{ID: img.ID, Data: img.Data, IconOrder: img.Order}
	}
	return g.bcast.Send(ctx, sess, protocol.Images(req.IDs, items))
}
