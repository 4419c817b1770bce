package runlog

import "errors"

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("runlog: run not found")
