package transport

import "errors"

// ErrNotConnected is returned by Send while no connection is established.
var ErrNotConnected = errors.New("transport: not connected")
