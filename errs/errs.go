package errs

import "errors"

// Storage operation error kinds. Callers branch with errors.Is, the
// wrapped chain keeps the underlying transport/protocol detail.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConnectivity    = errors.New("connectivity failure")
	ErrProtocol        = errors.New("protocol failure")
	ErrTransfer        = errors.New("transfer failure")
	ErrMetadataCorrupt = errors.New("metadata corrupt")
)
