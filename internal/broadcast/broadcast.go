package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/logging"
	"thumbnail-gallery/internal/media"
	"thumbnail-gallery/internal/metrics"
	"thumbnail-gallery/internal/protocol"
	"thumbnail-gallery/internal/session"
)

var log = logging.Component("broadcast")

// Store is the read access notifications need.
type Store interface {
	ImageRef(ctx context.Context, id int64) (database.ImageRef, error)
	Subfolders(ctx context.Context, parentID int64) ([]database.Folder, error)
	ParentID(ctx context.Context, folderID int64) (int64, error)
	ThumbnailsPage(ctx context.Context, folderID int64, tier media.Tier, limit, offset int) ([]database.Thumbnail, error)
}

// DeleteKind selects the confirmation sent by NotifyDeleted.
type DeleteKind int

const (
	KindImage DeleteKind = iota
	KindFolder
)

// Broadcaster delivers server messages to sessions.
type Broadcaster struct {
	sessions *session.Registry
	store    Store
	retry    RetryConfig
}

// New creates a broadcaster over the given sessions.
func New(sessions *session.Registry, store Store, retry RetryConfig) *Broadcaster {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if retry.MaxBackoff < retry.MinBackoff {
		retry.MaxBackoff = retry.MinBackoff
	}
	return &Broadcaster{sessions: sessions, store: store, retry: retry}
}

// fanOut sends msg to every recipient concurrently. Failures are logged per
// session and do not affect the others. It returns the number of sessions
// the message reached.
func (b *Broadcaster) fanOut(ctx context.Context, recipients []session.Session, msg protocol.Message) int {
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, sess := range recipients {
		wg.Add(1)
		go func(sess session.Session) {
			defer wg.Done()
			if err := b.Send(ctx, sess, msg); err != nil {
				log.Warnf("%v", err)
				return
			}
			delivered.Add(1)
		}(sess)
	}
	wg.Wait()
	return int(delivered.Load())
}

func (b *Broadcaster) filter(keep func(session.Session) bool) []session.Session {
	all := b.sessions.Snapshot()
	out := all[:0]
	for _, s := range all {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// ThumbnailData converts a stored thumbnail to its wire form.
func ThumbnailData(t database.Thumbnail) protocol.ThumbnailData {
	return protocol.ThumbnailData{ID: t.ID, ImageID: t.ImageID, Data: t.Data, IconOrder: t.Order}
}

// NotifyNewThumbnail sends a freshly stored thumbnail to every session
// viewing its tier in its image's folder, one GET_THUMBNAILS per session.
func (b *Broadcaster) NotifyNewThumbnail(ctx context.Context, thumb database.Thumbnail) error {
	ref, err := b.store.ImageRef(ctx, thumb.ImageID)
	if err != nil {
		return fmt.Errorf("resolve folder of image %d: %w", thumb.ImageID, err)
	}

	recipients := b.filter(func(s session.Session) bool {
		return s.Matches(ref.FolderID, thumb.Tier)
	})
	metrics.FanoutRecipients.Observe(float64(len(recipients)))
	if len(recipients) == 0 {
		return nil
	}

	msg := protocol.Thumbnails(thumb.Tier, ref.FolderID, ThumbnailData(thumb))
	b.fanOut(ctx, recipients, msg)
	return nil
}

// FolderListing builds the FOLDERS_RESPONSE for folderID: its subfolders
// sorted by name and its parent.
func (b *Broadcaster) FolderListing(ctx context.Context, folderID int64) (protocol.FoldersMessage, error) {
	subfolders, err := b.store.Subfolders(ctx, folderID)
	if err != nil {
		return protocol.FoldersMessage{}, fmt.Errorf("list subfolders of %d: %w", folderID, err)
	}
	parent, err := b.store.ParentID(ctx, folderID)
	if err != nil {
		return protocol.FoldersMessage{}, fmt.Errorf("parent of %d: %w", folderID, err)
	}

	folders := make([]protocol.FolderData, len(subfolders))
	for i, f := range subfolders {
		folders[i] = protocol.FolderData{ID: f.ID, Name: f.Name, ParentID: f.ParentID}
	}
	return protocol.Folders(folderID, parent, folders), nil
}

// NotifyFolderListing sends the listing of folderID to every session
// viewing it.
func (b *Broadcaster) NotifyFolderListing(ctx context.Context, folderID int64) error {
	recipients := b.filter(func(s session.Session) bool { return s.FolderID == folderID })
	if len(recipients) == 0 {
		return nil
	}
	msg, err := b.FolderListing(ctx, folderID)
	if err != nil {
		return err
	}
	b.fanOut(ctx, recipients, msg)
	return nil
}

// NotifyPlaceholderCount tells sessions viewing page of folderID how many
// thumbnails to expect.
func (b *Broadcaster) NotifyPlaceholderCount(ctx context.Context, folderID int64, n, page int) {
	recipients := b.filter(func(s session.Session) bool {
		return s.FolderID == folderID && s.Page == page
	})
	b.fanOut(ctx, recipients, protocol.Placeholders(n))
}

// NotifyDeleted confirms a deletion to every session.
func (b *Broadcaster) NotifyDeleted(ctx context.Context, kind DeleteKind, id int64) {
	msg := protocol.ImageDeleted(id)
	if kind == KindFolder {
		msg = protocol.FolderDeleted(id)
	}
	b.fanOut(ctx, b.sessions.Snapshot(), msg)
}

// NotifyMoved confirms a move to every session.
func (b *Broadcaster) NotifyMoved(ctx context.Context, imageID int64) {
	b.fanOut(ctx, b.sessions.Snapshot(), protocol.ImageMoved(imageID))
}

// NotifyFetchingEnd marks the end of a page stream for one session.
func (b *Broadcaster) NotifyFetchingEnd(ctx context.Context, sess session.Session) error {
	return b.Send(ctx, sess, protocol.FetchingEnd())
}

// RefreshViews re-sends pages 1..Page of each session's view, so clients
// fill the gaps left by deleted images.
func (b *Broadcaster) RefreshViews(ctx context.Context, pageSize int) {
	if pageSize < 1 {
		return
	}

	var wg sync.WaitGroup
	for _, sess := range b.sessions.Snapshot() {
		wg.Add(1)
		go func(sess session.Session) {
			defer wg.Done()
			if err := b.refresh(ctx, sess, pageSize); err != nil {
				log.Warnf("refresh view of %s: %v", sess.ID(), err)
			}
		}(sess)
	}
	wg.Wait()
}

func (b *Broadcaster) refresh(ctx context.Context, sess session.Session, pageSize int) error {
	page := sess.Page
	if page < 1 {
		page = 1
	}
	thumbs, err := b.store.ThumbnailsPage(ctx, sess.FolderID, sess.Tier, page*pageSize, 0)
	if err != nil {
		return err
	}
	for _, t := range thumbs {
		msg := protocol.Thumbnails(sess.Tier, sess.FolderID, ThumbnailData(t))
		if err := b.Send(ctx, sess, msg); err != nil {
			return err
		}
	}
	return nil
}

// NotifyError reports a failure to every session. Unsupported formats are
// sent as 415, everything else as 400.
func (b *Broadcaster) NotifyError(ctx context.Context, err error) {
	b.fanOut(ctx, b.sessions.Snapshot(), ErrorInfo(err))
}

// ErrorInfo maps err to an INFO_RESPONSE.
func ErrorInfo(err error) protocol.InfoMessage {
	var unsupported *media.UnsupportedFormatError
	if errors.As(err, &unsupported) || errors.Is(err, media.ErrUnsupportedFormat) || errors.Is(err, media.ErrImageTooLarge) {
		return protocol.Info(protocol.StatusUnsupportedMediaType, err.Error())
	}
	return protocol.Info(protocol.StatusBadRequest, err.Error())
}
