package gallery

import (
	"context"
	"errors"
	"fmt"

	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/protocol"
	"thumbnail-gallery/internal/session"
)

// MoveImages appends each image to the end of the target folder and then
// renumbers the source folder. Images that are not in the source folder are
// reported as not found; the others are still moved.
func (g *Gallery) MoveImages(ctx context.Context, sess session.Session, req protocol.MoveImagesRequest) error {
	if err := g.requireFolder(ctx, req.ToFolderID); err != nil {
		return err
	}
	if req.FromFolderID == req.ToFolderID {
		return nil
	}

	var (
		moved   []int64
		missing []int64
	)
	for _, id := range req.ImageIDs {
		_, err := g.orders.Assign(ctx, req.ToFolderID, func(ctx context.Context, order int64) error {
			return g.db.MoveImage(ctx, id, req.FromFolderID, req.ToFolderID, order)
		})
		switch {
		case errors.Is(err, database.ErrNotFound):
			missing = append(missing, id)
		case err != nil:
			return fmt.Errorf("move image %d: %w", id, err)
		default:
			moved = append(moved, id)
			g.bcast.NotifyMoved(ctx, id)
		}
	}

	if len(moved) > 0 {
		g.recount(ctx, req.FromFolderID, moved...)
	}
	if len(missing) > 0 {
		// Failed assignments consumed orders in the target.
		g.recount(ctx, req.ToFolderID)
		return fmt.Errorf("images %v not in folder %d: %w", missing, req.FromFolderID, database.ErrNotFound)
	}

	log.Debugf("%s moved %d images from %d to %d", sess.ID(), len(moved), req.FromFolderID, req.ToFolderID)
	return nil
}
