// internal/apperr/errors.go
package apperr

import "fmt"

// UnsupportedFileTypeError reports input that could not be decoded as a
// supported raster format. It rejects the whole upload.
type UnsupportedFileTypeError struct {
	ContentType string
	Err         error
}

func (e *UnsupportedFileTypeError) Error() string {
	if e.ContentType != "" {
		return fmt.Sprintf("unsupported file type %q: %v", e.ContentType, e.Err)
	}
	return fmt.Sprintf("unsupported file type: %v", e.Err)
}

func (e *UnsupportedFileTypeError) Unwrap() error { return e.Err }

// ImageProcessingError reports a failed encode step. Individual variant
// failures are recovered by omitting that variant; the error is terminal
// only when the whole matrix produced nothing.
type ImageProcessingError struct {
	Op  string
	Err error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing failed (%s): %v", e.Op, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }
