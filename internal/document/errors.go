package document

import "fmt"

// DocumentOpenError means the file is missing, unreadable, not a PDF or unparseable.
type DocumentOpenError struct {
	Path string
	Err  error
}

func (e *DocumentOpenError) Error() string {
	return fmt.Sprintf("cannot open document %s: %v", e.Path, e.Err)
}

func (e *DocumentOpenError) Unwrap() error { return e.Err }

// EmptyDocumentError means the document parsed but has no pages.
type EmptyDocumentError struct {
	Path string
}

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("document %s has no pages", e.Path)
}

// NoPagesProducedError means rasterization of a non-empty document yielded no image.
type NoPagesProducedError struct {
	Path string
	Err  error
}

func (e *NoPagesProducedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no pages rendered from %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("no pages rendered from %s", e.Path)
}

func (e *NoPagesProducedError) Unwrap() error { return e.Err }
