package protocol

import (
	"encoding/json"
	"fmt"

	"thumbnail-gallery/internal/media"
)

// Upper bounds for view fields.
const (
	MaxPage     = 1 << 20
	MaxPageSize = 1000
)

// Request is a decoded, validated client message.
type Request interface {
	MessageType() Type
}

// UploadImagesRequest adds images to a folder. Page and Size describe the
// uploader's current view and decide whether placeholders are sent.
type UploadImagesRequest struct {
	Images   [][]byte
	Page     int
	Size     int
	FolderID int64
}

// UploadZipRequest adds an archive's images below FolderID, recreating its
// directories as folders.
type UploadZipRequest struct {
	Data     []byte
	FolderID int64
}

// GetThumbnailsRequest changes the session view and streams one page.
type GetThumbnailsRequest struct {
	Tier     media.Tier
	Page     int
	Size     int
	FolderID int64
}

// GetImageRequest asks for full images.
type GetImageRequest struct {
	IDs []int64
}

// GetNextPageRequest advances the session one page.
type GetNextPageRequest struct {
	Page     int
	Size     int
	FolderID int64
}

// MoveImagesRequest moves images between folders.
type MoveImagesRequest struct {
	ImageIDs     []int64
	FromFolderID int64
	ToFolderID   int64
}

// DeleteImageRequest deletes one image; PageSize drives the view refresh.
type DeleteImageRequest struct {
	ID       int64
	PageSize int
}

// DeleteFolderRequest deletes a folder tree.
type DeleteFolderRequest struct {
	ID       int64
	PageSize int
}

// PongRequest answers a PING.
type PongRequest struct{}

func (UploadImagesRequest) MessageType() Type  { return TypeUploadImages }
func (UploadZipRequest) MessageType() Type     { return TypeUploadZip }
func (GetThumbnailsRequest) MessageType() Type { return TypeGetThumbnails }
func (GetImageRequest) MessageType() Type      { return TypeGetImage }
func (GetNextPageRequest) MessageType() Type   { return TypeGetNextPage }
func (MoveImagesRequest) MessageType() Type    { return TypeMoveImage }
func (DeleteImageRequest) MessageType() Type   { return TypeDeleteImage }
func (DeleteFolderRequest) MessageType() Type  { return TypeDeleteFolder }
func (PongRequest) MessageType() Type          { return TypePong }

type envelope struct {
	Type Type `json:"type"`
}

type wireImage struct {
	Data []byte `json:"data"`
}

type wireUploadImages struct {
	ImagesData []wireImage `json:"imagesData"`
	Page       flexInt     `json:"page"`
	Size       flexInt     `json:"size"`
	FolderID   flexInt     `json:"folderId"`
}

type wireUploadZip struct {
	ZipData  []byte  `json:"zipData"`
	FolderID flexInt `json:"folderId"`
}

type wireGetThumbnails struct {
	ThumbnailType string  `json:"thumbnailType"`
	Page          flexInt `json:"page"`
	Size          flexInt `json:"size"`
	FolderID      flexInt `json:"folderId"`
}

type wireGetImage struct {
	IDs []flexInt `json:"ids"`
}

type wireGetNextPage struct {
	Page     flexInt `json:"page"`
	Size     flexInt `json:"size"`
	FolderID flexInt `json:"folderId"`
}

type wireMoveImage struct {
	ImageIDs        []flexInt `json:"imageIds"`
	ImageID         []flexInt `json:"imageId"`
	CurrentFolderID flexInt   `json:"currentFolderId"`
	TargetFolderID  flexInt   `json:"targetFolderId"`
}

type wireDelete struct {
	ID       flexInt `json:"id"`
	PageSize flexInt `json:"pageSize"`
	Size     flexInt `json:"size"`
}

// Parse decodes and validates one client message. Malformed input yields a
// *ValidationError; unknown or server-only types an *UnsupportedTypeError.
func Parse(raw []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if env.Type == "" {
		return nil, &ValidationError{Field: "type", Reason: "is required"}
	}

	switch env.Type {
	case TypeUploadImages:
		return parseUploadImages(raw)
	case TypeUploadZip:
		return parseUploadZip(raw)
	case TypeGetThumbnails:
		return parseGetThumbnails(raw)
	case TypeGetImage:
		return parseGetImage(raw)
	case TypeGetNextPage:
		return parseGetNextPage(raw)
	case TypeMoveImage:
		return parseMoveImage(raw)
	case TypeDeleteImage:
		id, size, err := parseDelete(raw, TypeDeleteImage)
		if err != nil {
			return nil, err
		}
		return DeleteImageRequest{ID: id, PageSize: size}, nil
	case TypeDeleteFolder:
		id, size, err := parseDelete(raw, TypeDeleteFolder)
		if err != nil {
			return nil, err
		}
		return DeleteFolderRequest{ID: id, PageSize: size}, nil
	case TypePong:
		return PongRequest{}, nil
	}
	return nil, &UnsupportedTypeError{Type: env.Type}
}

func decode(raw []byte, t Type, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &ValidationError{Type: t, Reason: err.Error()}
	}
	return nil
}

func requireInRange(t Type, field string, f flexInt, limit int64) (int, error) {
	if !f.set {
		return 0, &ValidationError{Type: t, Field: field, Reason: "is required"}
	}
	if f.v < 1 {
		return 0, &ValidationError{Type: t, Field: field, Reason: "must be at least 1"}
	}
	if f.v > limit {
		return 0, &ValidationError{Type: t, Field: field, Reason: fmt.Sprintf("must be at most %d", limit)}
	}
	return int(f.v), nil
}

func requirePage(t Type, f flexInt) (int, error) {
	return requireInRange(t, "page", f, MaxPage)
}

func requireSize(t Type, field string, f flexInt) (int, error) {
	return requireInRange(t, field, f, MaxPageSize)
}

func folderID(t Type, field string, f flexInt) (int64, error) {
	if !f.set {
		return 0, nil
	}
	if f.v < 0 {
		return 0, &ValidationError{Type: t, Field: field, Reason: "must not be negative"}
	}
	return f.v, nil
}

func parseUploadImages(raw []byte) (Request, error) {
	var w wireUploadImages
	if err := decode(raw, TypeUploadImages, &w); err != nil {
		return nil, err
	}
	page, err := requirePage(TypeUploadImages, w.Page)
	if err != nil {
		return nil, err
	}
	size, err := requireSize(TypeUploadImages, "size", w.Size)
	if err != nil {
		return nil, err
	}
	folder, err := folderID(TypeUploadImages, "folderId", w.FolderID)
	if err != nil {
		return nil, err
	}
	if len(w.ImagesData) == 0 {
		return nil, &ValidationError{Type: TypeUploadImages, Field: "imagesData", Reason: "is empty"}
	}

	images := make([][]byte, len(w.ImagesData))
	for i, img := range w.ImagesData {
		if len(img.Data) == 0 {
			return nil, &ValidationError{Type: TypeUploadImages, Field: fmt.Sprintf("imagesData[%d].data", i), Reason: "is empty"}
		}
		images[i] = img.Data
	}
	return UploadImagesRequest{Images: images, Page: page, Size: size, FolderID: folder}, nil
}

func parseUploadZip(raw []byte) (Request, error) {
	var w wireUploadZip
	if err := decode(raw, TypeUploadZip, &w); err != nil {
		return nil, err
	}
	if len(w.ZipData) == 0 {
		return nil, &ValidationError{Type: TypeUploadZip, Field: "zipData", Reason: "is empty"}
	}
	folder, err := folderID(TypeUploadZip, "folderId", w.FolderID)
	if err != nil {
		return nil, err
	}
	return UploadZipRequest{Data: w.ZipData, FolderID: folder}, nil
}

func parseGetThumbnails(raw []byte) (Request, error) {
	var w wireGetThumbnails
	if err := decode(raw, TypeGetThumbnails, &w); err != nil {
		return nil, err
	}
	tier, err := media.ParseTier(w.ThumbnailType)
	if err != nil {
		return nil, &ValidationError{Type: TypeGetThumbnails, Field: "thumbnailType", Reason: err.Error()}
	}
	page, err := requirePage(TypeGetThumbnails, w.Page)
	if err != nil {
		return nil, err
	}
	size, err := requireSize(TypeGetThumbnails, "size", w.Size)
	if err != nil {
		return nil, err
	}
	folder, err := folderID(TypeGetThumbnails, "folderId", w.FolderID)
	if err != nil {
		return nil, err
	}
	return GetThumbnailsRequest{Tier: tier, Page: page, Size: size, FolderID: folder}, nil
}

func parseGetImage(raw []byte) (Request, error) {
	var w wireGetImage
	if err := decode(raw, TypeGetImage, &w); err != nil {
		return nil, err
	}
	ids := flexInts(w.IDs)
	if len(ids) == 0 {
		return nil, &ValidationError{Type: TypeGetImage, Field: "ids", Reason: "is empty"}
	}
	return GetImageRequest{IDs: ids}, nil
}

func parseGetNextPage(raw []byte) (Request, error) {
	var w wireGetNextPage
	if err := decode(raw, TypeGetNextPage, &w); err != nil {
		return nil, err
	}
	page, err := requirePage(TypeGetNextPage, w.Page)
	if err != nil {
		return nil, err
	}
	size, err := requireSize(TypeGetNextPage, "size", w.Size)
	if err != nil {
		return nil, err
	}
	folder, err := folderID(TypeGetNextPage, "folderId", w.FolderID)
	if err != nil {
		return nil, err
	}
	return GetNextPageRequest{Page: page, Size: size, FolderID: folder}, nil
}

func parseMoveImage(raw []byte) (Request, error) {
	var w wireMoveImage
	if err := decode(raw, TypeMoveImage, &w); err != nil {
		return nil, err
	}
	ids := flexInts(append(w.ImageIDs, w.ImageID...))
	if len(ids) == 0 {
		return nil, &ValidationError{Type: TypeMoveImage, Field: "imageIds", Reason: "is empty"}
	}
	if !w.TargetFolderID.set {
		return nil, &ValidationError{Type: TypeMoveImage, Field: "targetFolderId", Reason: "is required"}
	}
	from, err := folderID(TypeMoveImage, "currentFolderId", w.CurrentFolderID)
	if err != nil {
		return nil, err
	}
	to, err := folderID(TypeMoveImage, "targetFolderId", w.TargetFolderID)
	if err != nil {
		return nil, err
	}
	return MoveImagesRequest{ImageIDs: dedupe(ids), FromFolderID: from, ToFolderID: to}, nil
}

func parseDelete(raw []byte, t Type) (int64, int, error) {
	var w wireDelete
	if err := decode(raw, t, &w); err != nil {
		return 0, 0, err
	}
	if !w.ID.set {
		return 0, 0, &ValidationError{Type: t, Field: "id", Reason: "is required"}
	}
	if w.ID.v < 1 {
		return 0, 0, &ValidationError{Type: t, Field: "id", Reason: "must be at least 1"}
	}
	sizeField := w.PageSize
	if !sizeField.set {
		sizeField = w.Size
	}
	size, err := requireSize(t, "pageSize", sizeField)
	if err != nil {
		return 0, 0, err
	}
	return w.ID.v, size, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
