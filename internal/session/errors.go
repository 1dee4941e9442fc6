package session

import "errors"

// errInterruptedByUser is the rejection reason given to pending enqueue
// futures when Clear() runs (§4.2.1).
var errInterruptedByUser = errors.New("interrupted by user")
