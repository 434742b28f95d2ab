package pex

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned when the input path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrBadImageFormat is matched by every header or metadata validation failure.
	ErrBadImageFormat = errors.New("bad image format")

	ErrNotAPEFile = fmt.Errorf("%w: not a PE file", ErrBadImageFormat)
	ErrTruncated  = fmt.Errorf("%w: truncated image", ErrBadImageFormat)
	ErrNotManaged = fmt.Errorf("%w: no CLI header", ErrBadImageFormat)
	ErrNotPresent = errors.New("not present in this PE image")
)
