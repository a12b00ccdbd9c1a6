package roomkit

import "errors"

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrTrackNotFound    = errors.New("track not found")
	ErrReconnectFailed  = errors.New("reconnect attempts exhausted")
)
