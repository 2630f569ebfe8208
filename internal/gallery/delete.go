package gallery

import (
	"context"
	"errors"
	"fmt"

	"thumbnail-gallery/internal/broadcast"
	"thumbnail-gallery/internal/database"
)

// DeleteImage removes an image with its thumbnails, closes the gap in its
// folder's order and refreshes every view.
func (g *Gallery) DeleteImage(ctx context.Context, imageID int64, pageSize int) error {
	folderID, err := g.db.DeleteImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	g.recount(ctx, folderID)

	g.bcast.NotifyDeleted(ctx, broadcast.KindImage, imageID)
	g.bcast.RefreshViews(ctx, pageSize)
	return nil
}

// DeleteFolder removes a folder with its subfolders and images, depth first.
func (g *Gallery) DeleteFolder(ctx context.Context, folderID int64, pageSize int) error {
	if folderID == database.RootFolderID {
		return errors.New("the root folder cannot be deleted")
	}
	folder, err := g.db.FindFolder(ctx, folderID)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}

	if err := g.deleteTree(ctx, folderID); err != nil {
		return err
	}

	g.bcast.NotifyDeleted(ctx, broadcast.KindFolder, folderID)
	if err := g.bcast.NotifyFolderListing(ctx, folder.ParentID); err != nil {
		log.Warnf("refresh listing of folder %d: %v", folder.ParentID, err)
	}
	g.bcast.RefreshViews(ctx, pageSize)
	return nil
}

// deleteAttempts bounds how often a folder is walked again when a
// subfolder appears while it is being deleted.
const deleteAttempts = 3

func (g *Gallery) deleteTree(ctx context.Context, folderID int64) error {
	for attempt := 1; ; attempt++ {
		err := g.deleteTreeOnce(ctx, folderID)
		if !errors.Is(err, database.ErrConflict) || attempt == deleteAttempts {
			return err
		}
		log.Debugf("folder %d changed while deleting: %v", folderID, err)
	}
}

func (g *Gallery) deleteTreeOnce(ctx context.Context, folderID int64) error {
	subfolders, err := g.db.Subfolders(ctx, folderID)
	if err != nil {
		return fmt.Errorf("list subfolders of %d: %w", folderID, err)
	}
	for _, sub := range subfolders {
		if err := g.deleteTree(ctx, sub.ID); err != nil {
			return err
		}
	}

	images, err := g.db.ImagesInFolder(ctx, folderID)
	if err != nil {
		return fmt.Errorf("list images of folder %d: %w", folderID, err)
	}
	for _, img := range images {
		if _, err := g.db.DeleteImage(ctx, img.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("delete image %d: %w", img.ID, err)
		}
	}
	g.recount(ctx, folderID)

	late, err := g.db.DeleteFolder(ctx, folderID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("delete folder %d: %w", folderID, err)
	}
	g.orders.Forget(folderID)
	log.Debugf("folder %d deleted with %d images", folderID, len(images)+int(late))
	return nil
}

func (g *Gallery) recount(ctx context.Context, folderID int64, excluded ...int64) {
	if err := g.orders.Recount(ctx, folderID, excluded...); err != nil {
		log.Errorf("recount folder %d: %v", folderID, err)
	}
}
