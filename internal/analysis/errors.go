package analysis

import (
	"errors"
	"fmt"
)

// FormatError reports that the input is not a valid .NET assembly.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: target file is not a valid .NET Assembly: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err carries a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
