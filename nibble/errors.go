package nibble

import "errors"

var (
	ErrInvalidByte        = errors.New("invalid byte while decoding")
	ErrBadChecksum        = errors.New("checksum does not match")
	ErrBadTrack           = errors.New("unable to find address marker on track")
	ErrSectorNotFound     = errors.New("unable to find sector")
	ErrNibbleType         = errors.New("wrong nibble type")
	ErrBitPatternNotFound = errors.New("bit pattern not found")
)
