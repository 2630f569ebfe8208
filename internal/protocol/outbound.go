package protocol

import (
	"encoding/json"

	"thumbnail-gallery/internal/media"
)

// Message is a server-to-client message.
type Message interface {
	MessageType() Type
}

// Marshal encodes m for the wire.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// ThumbnailData is one thumbnail in a GET_THUMBNAILS response. ID is the
// thumbnail id, ImageID the id clients use for GET_IMAGE, MOVE_IMAGE and
// DELETE_IMAGE.
type ThumbnailData struct {
	ID        int64  `json:"id"`
	ImageID   int64  `json:"imageId"`
	Data      []byte `json:"data"`
	IconOrder int64  `json:"iconOrder"`
}

// ImageData is one full image in a GET_IMAGE response.
type ImageData struct {
	ID        int64  `json:"id"`
	Data      []byte `json:"data"`
	IconOrder *int64 `json:"iconOrder"`
}

// FolderData is a subfolder entry in FOLDERS_RESPONSE.
type FolderData struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parentId"`
}

type ThumbnailsMessage struct {
	Type       Type            `json:"type"`
	Tier       media.Tier      `json:"thumbnailType"`
	FolderID   int64           `json:"folderId"`
	ImagesData []ThumbnailData `json:"imagesData"`
}

type ImagesMessage struct {
	Type       Type        `json:"type"`
	IDs        []int64     `json:"ids"`
	ImagesData []ImageData `json:"imagesData"`
}

type FoldersMessage struct {
	Type      Type         `json:"type"`
	Folders   []FolderData `json:"folders"`
	CurrentID int64        `json:"currentId"`
	ParentID  int64        `json:"parentId"`
}

type PlaceholdersMessage struct {
	Type  Type `json:"type"`
	Count int  `json:"thumbnailsNumber"`
}

type InfoMessage struct {
	Type   Type   `json:"type"`
	Status int    `json:"status"`
	Info   string `json:"info,omitempty"`
}

// IDMessage confirms a move or delete.
type IDMessage struct {
	Type Type  `json:"type"`
	ID   int64 `json:"id"`
}

// SignalMessage carries only a type (PING, FETCHING_END_RESPONSE).
type SignalMessage struct {
	Type Type `json:"type"`
}

func (m ThumbnailsMessage) MessageType() Type   { return m.Type }
func (m ImagesMessage) MessageType() Type       { return m.Type }
func (m FoldersMessage) MessageType() Type      { return m.Type }
func (m PlaceholdersMessage) MessageType() Type { return m.Type }
func (m InfoMessage) MessageType() Type         { return m.Type }
func (m IDMessage) MessageType() Type           { return m.Type }
func (m SignalMessage) MessageType() Type       { return m.Type }

func Thumbnails(tier media.Tier, folderID int64, items ...ThumbnailData) ThumbnailsMessage {
	if items == nil {
		items = []ThumbnailData{}
	}
	return ThumbnailsMessage{Type: TypeGetThumbnails, Tier: tier, FolderID: folderID, ImagesData: items}
}

func Images(ids []int64, items []ImageData) ImagesMessage {
	if items == nil {
		items = []ImageData{}
	}
	return ImagesMessage{Type: TypeGetImage, IDs: ids, ImagesData: items}
}

func Folders(currentID, parentID int64, folders []FolderData) FoldersMessage {
	if folders == nil {
		folders = []FolderData{}
	}
	return FoldersMessage{Type: TypeFolders, Folders: folders, CurrentID: currentID, ParentID: parentID}
}

func Placeholders(n int) PlaceholdersMessage {
	return PlaceholdersMessage{Type: TypePlaceholders, Count: n}
}

func Info(status int, info string) InfoMessage {
	return InfoMessage{Type: TypeInfo, Status: status, Info: info}
}

func ImageMoved(id int64) IDMessage    { return IDMessage{Type: TypeMoveImageResponse, ID: id} }
func ImageDeleted(id int64) IDMessage  { return IDMessage{Type: TypeDeleteImageResponse, ID: id} }
func FolderDeleted(id int64) IDMessage { return IDMessage{Type: TypeDeleteFolderResponse, ID: id} }

func Ping() SignalMessage        { return SignalMessage{Type: TypePing} }
func FetchingEnd() SignalMessage { return SignalMessage{Type: TypeFetchingEnd} }
