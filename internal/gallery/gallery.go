package gallery

import (
	"context"
	"errors"
	"fmt"

	"thumbnail-gallery/internal/broadcast"
	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/logging"
	"thumbnail-gallery/internal/media"
	"thumbnail-gallery/internal/ordering"
	"thumbnail-gallery/internal/pipeline"
	"thumbnail-gallery/internal/protocol"
	"thumbnail-gallery/internal/session"
)

var log = logging.Component("gallery")

// DefaultMaxArchiveEntryBytes applies when Config leaves the entry limit unset.
const DefaultMaxArchiveEntryBytes = 64 << 20

// Config tunes request handling.
type Config struct {
	// UploadConcurrency bounds concurrent image saves of one upload.
	UploadConcurrency int
	// MaxArchiveEntryBytes skips larger archive entries.
	MaxArchiveEntryBytes int64
}

// Gallery executes client requests against storage, the order service and
// the thumbnail pipeline, and reports results through the broadcaster.
type Gallery struct {
	cfg      Config
	db       *database.Database
	orders   *ordering.Service
	pipe     *pipeline.Pipeline
	bcast    *broadcast.Broadcaster
	sessions *session.Registry
}

// New wires a gallery.
func New(cfg Config, db *database.Database, orders *ordering.Service, pipe *pipeline.Pipeline,
	bcast *broadcast.Broadcaster, sessions *session.Registry) *Gallery {
	if cfg.UploadConcurrency < 1 {
		cfg.UploadConcurrency = 4
	}
	if cfg.MaxArchiveEntryBytes < 1 {
		cfg.MaxArchiveEntryBytes = DefaultMaxArchiveEntryBytes
	}
	return &Gallery{
		cfg:      cfg,
		db:       db,
		orders:   orders,
		pipe:     pipe,
		bcast:    bcast,
		sessions: sessions,
	}
}

// Handle dispatches one parsed request from sess.
func (g *Gallery) Handle(ctx context.Context, sess session.Session, req protocol.Request) error {
	switch r := req.(type) {
	case protocol.UploadImagesRequest:
		return g.UploadImages(ctx, sess, r)
	case protocol.UploadZipRequest:
		return g.UploadArchive(ctx, sess, r)
	case protocol.GetThumbnailsRequest:
		return g.GetThumbnails(ctx, sess, r)
	case protocol.GetNextPageRequest:
		return g.GetNextPage(ctx, sess, r)
	case protocol.GetImageRequest:
		return g.GetImage(ctx, sess, r)
	case protocol.MoveImagesRequest:
		return g.MoveImages(ctx, sess, r)
	case protocol.DeleteImageRequest:
		return g.DeleteImage(ctx, r.ID, r.PageSize)
	case protocol.DeleteFolderRequest:
		return g.DeleteFolder(ctx, r.ID, r.PageSize)
	case protocol.PongRequest:
		return nil
	default:
		return &protocol.UnsupportedTypeError{Type: req.MessageType()}
	}
}

// StatusFor maps a request error to its INFO_RESPONSE status.
func StatusFor(err error) int {
	var (
		unsupportedType *protocol.UnsupportedTypeError
		unsupportedImg  *media.UnsupportedFormatError
	)
	switch {
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrStopped):
		return protocol.StatusServiceUnavailable
	case errors.As(err, &unsupportedType), errors.As(err, &unsupportedImg):
		return protocol.StatusUnsupportedMediaType
	default:
		return protocol.StatusBadRequest
	}
}

// Respond sends err to sess as an INFO_RESPONSE.
func (g *Gallery) Respond(ctx context.Context, sess session.Session, err error) {
	if err == nil {
		return
	}
	if sendErr := g.bcast.Send(ctx, sess, protocol.Info(StatusFor(err), err.Error())); sendErr != nil {
		log.Warnf("report error to %s: %v", sess.ID(), sendErr)
	}
}

func (g *Gallery) requireFolder(ctx context.Context, id int64) error {
	ok, err := g.db.FolderExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("folder %d: %w", id, database.ErrNotFound)
	}
	return nil
}

// submit queues a stored image. A rejected image is removed again and the
// requester is told to retry later.
func (g *Gallery) submit(ctx context.Context, sess session.Session, imageID int64) {
	err := g.pipe.Submit(pipeline.Job{ImageID: imageID})
	if err == nil {
		return
	}

	if _, derr := g.db.DeleteImage(ctx, imageID); derr != nil && !errors.Is(derr, database.ErrNotFound) {
		log.Errorf("remove rejected image %d: %v", imageID, derr)
	}
	log.Warnf("image %d rejected: %v", imageID, err)
	g.Respond(ctx, sess, err)
}
