package dom

import "errors"

// Document errors
var (
	ErrForeignTarget    = errors.New("target does not belong to this document")
	ErrHierarchy        = errors.New("node cannot be inserted here")
	ErrNotChild         = errors.New("node is not a child of this node")
	ErrInvalidSelector  = errors.New("invalid selector")
	ErrDocumentDetached = errors.New("document has been discarded")
	ErrListenerPanic    = errors.New("listener panicked")
)
