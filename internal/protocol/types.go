package protocol

// Type is the value of a message's "type" field.
type Type string

// Client to server.
const (
	TypeUploadImages  Type = "UPLOAD_IMAGES"
	TypeUploadZip     Type = "UPLOAD_ZIP"
	TypeGetThumbnails Type = "GET_THUMBNAILS"
	TypeGetImage      Type = "GET_IMAGE"
	TypeGetNextPage   Type = "GET_NEXT_PAGE"
	TypeMoveImage     Type = "MOVE_IMAGE"
	TypeDeleteImage   Type = "DELETE_IMAGE"
	TypeDeleteFolder  Type = "DELETE_FOLDER"
	TypePong          Type = "PONG"
)

// Server to client. GET_THUMBNAILS and GET_IMAGE are reused for responses.
const (
	TypePing                 Type = "PING"
	TypeInfo                 Type = "INFO_RESPONSE"
	TypePlaceholders         Type = "PLACEHOLDERS_NUMBER_RESPONSE"
	TypeFolders              Type = "FOLDERS_RESPONSE"
	TypeMoveImageResponse    Type = "MOVE_IMAGE_RESPONSE"
	TypeDeleteImageResponse  Type = "DELETE_IMAGE_RESPONSE"
	TypeDeleteFolderResponse Type = "DELETE_FOLDER_RESPONSE"
	TypeFetchingEnd          Type = "FETCHING_END_RESPONSE"
)

// Status codes carried by INFO_RESPONSE.
const (
	StatusOK                   = 200
	StatusBadRequest           = 400
	StatusUnsupportedMediaType = 415
	StatusServiceUnavailable   = 503
)

// InboundTypes lists the types a client may send.
var InboundTypes = []Type{
	TypeUploadImages, TypeUploadZip, TypeGetThumbnails, TypeGetImage,
	TypeGetNextPage, TypeMoveImage, TypeDeleteImage, TypeDeleteFolder, TypePong,
}

// OutboundTypes lists the types the server sends.
var OutboundTypes = []Type{
	TypeGetThumbnails, TypeGetImage, TypePing, TypeInfo, TypePlaceholders,
	TypeFolders, TypeMoveImageResponse, TypeDeleteImageResponse,
	TypeDeleteFolderResponse, TypeFetchingEnd,
}

// MetricLabels returns every known type name, for metric pre-population.
func MetricLabels() []string {
	seen := make(map[Type]bool)
	var out []string
	for _, list := range [][]Type{InboundTypes, OutboundTypes} {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, string(t))
			}
		}
	}
	return append(out, "unknown")
}

// IsServerOnly reports whether t is a type clients must not send.
func IsServerOnly(t Type) bool {
	switch t {
	case TypePing, TypeInfo, TypePlaceholders, TypeFolders, TypeMoveImageResponse,
		TypeDeleteImageResponse, TypeDeleteFolderResponse, TypeFetchingEnd:
		return true
	}
	return false
}
