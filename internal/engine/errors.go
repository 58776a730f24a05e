package engine

import "errors"

// ErrStoreUnavailable means a backing store could not be reached and no
// decision was made for the event. The caller should NACK so the platform
// redelivers.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrDuplicateEvent means the event id was already processed.
var ErrDuplicateEvent = errors.New("duplicate event")
