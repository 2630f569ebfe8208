package database

import (
	"errors"
	"time"

	"thumbnail-gallery/internal/media"
)

// RootFolderID is the implicit root. It never has a row.
const RootFolderID int64 = 0

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a row no longer matches the state a
	// write was conditioned on.
	ErrConflict = errors.New("changed concurrently")
)

// Image is a stored upload. Data is only populated by FindImage and FindImages.
type Image struct {
	ID        int64
	FolderID  int64
	Order     *int64
	Data      []byte
	CreatedAt time.Time
}

// HasOrder reports whether the image has been placed in its folder sequence.
func (i Image) HasOrder() bool { return i.Order != nil }

// ImageRef identifies an image without its payload.
type ImageRef struct {
	ID       int64
	FolderID int64
	Order    *int64
}

// Thumbnail is one encoded tier of an image.
type Thumbnail struct {
	ID      int64
	ImageID int64
	Tier    media.Tier
	Data    []byte
	Order   int64
}

// NewThumbnail is a thumbnail not yet persisted.
type NewThumbnail struct {
	Tier media.Tier
	Data []byte
}

// Folder is a named container. ParentID is RootFolderID for top-level folders.
type Folder struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parentId"`
}

// MissingThumbnails describes an image lacking one or more tiers.
type MissingThumbnails struct {
	Image ImageRef
	Tiers []media.Tier
}
