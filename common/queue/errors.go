package queue

import "errors"

// ErrClosed is returned when publishing to or subscribing on a closed queue
var ErrClosed = errors.New("queue closed")
