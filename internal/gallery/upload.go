package gallery

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"thumbnail-gallery/internal/archive"
	"thumbnail-gallery/internal/metrics"
	"thumbnail-gallery/internal/protocol"
	"thumbnail-gallery/internal/session"
)

// IsLastPage reports whether page is the last page of a folder holding
// count images, shown size per page. An empty folder has only page 1.
func IsLastPage(count, size, page int) bool {
	lastPage := (count + size - 1) / size
	return page == lastPage || lastPage == 0
}

// UploadImages stores each image and queues it for thumbnails. When the
// uploader is looking at the last page, viewers of that page first get a
// placeholder count.
func (g *Gallery) UploadImages(ctx context.Context, sess session.Session, req protocol.UploadImagesRequest) error {
	if err := g.requireFolder(ctx, req.FolderID); err != nil {
		return err
	}

	count, err := g.db.CountImagesInFolder(ctx, req.FolderID)
	if err != nil {
		return fmt.Errorf("count images: %w", err)
	}
	if IsLastPage(count, req.Size, req.Page) {
		g.bcast.NotifyPlaceholderCount(ctx, req.FolderID, len(req.Images), req.Page)
	}

	errs := make([]error, len(req.Images))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.UploadConcurrency)
	for i, data := range req.Images {
		eg.Go(func() error {
			id, err := g.db.SaveImage(egctx, data, req.FolderID)
			if err != nil {
				errs[i] = fmt.Errorf("save image %d of %d: %w", i+1, len(req.Images), err)
				return nil
			}
			metrics.UploadsTotal.WithLabelValues("batch").Inc()
			metrics.UploadBytes.Observe(float64(len(data)))
			g.submit(egctx, sess, id)
			return nil
		})
	}
	_ = eg.Wait()

	log.Debugf("%s uploaded %d images to folder %d", sess.ID(), len(req.Images), req.FolderID)
	return errors.Join(errs...)
}

// UploadArchive stores every file of a zip archive below req.FolderID,
// recreating the archive's directories as folders. Failing entries are
// reported to the uploader and skipped.
func (g *Gallery) UploadArchive(ctx context.Context, sess session.Session, req protocol.UploadZipRequest) error {
	if err := g.requireFolder(ctx, req.FolderID); err != nil {
		return err
	}

	resolver := archive.NewResolver(g.db, req.FolderID)
	stored := 0

	err := archive.Walk(req.Data, g.cfg.MaxArchiveEntryBytes, func(e archive.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		folderID, err := resolver.Resolve(ctx, e.Dirs)
		if err != nil {
			g.Respond(ctx, sess, fmt.Errorf("%s: %w", e.Path(), err))
			return nil
		}
		id, err := g.db.SaveImage(ctx, e.Data, folderID)
		if err != nil {
			g.Respond(ctx, sess, fmt.Errorf("save %s: %w", e.Path(), err))
			return nil
		}
		metrics.UploadsTotal.WithLabelValues("zip").Inc()
		metrics.UploadBytes.Observe(float64(len(e.Data)))
		stored++
		g.submit(ctx, sess, id)
		return nil
	}, func(name string, err error) {
		g.Respond(ctx, sess, fmt.Errorf("%s: %w", name, err))
	})
	if err != nil {
		return err
	}

	log.Infof("%s uploaded archive with %d images to folder %d", sess.ID(), stored, req.FolderID)
	return g.bcast.NotifyFolderListing(ctx, req.FolderID)
}
