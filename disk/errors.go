package disk

import "errors"

var (
	ErrMetadataMismatch   = errors.New("metadata mismatch")
	ErrSectorAccess       = errors.New("unable to access sector")
	ErrTrackCountMismatch = errors.New("track count did not match request")
	ErrImageTypeMismatch  = errors.New("image type not compatible with request")
	ErrImageSizeMismatch  = errors.New("image size did not match the request")
	ErrUnknownDiskKind    = errors.New("unknown kind of disk")
)
