package domain

import "errors"

var (
	ErrNoPeers    = errors.New("no peers available")
	ErrEmptyBase  = errors.New("empty endpoint")
	ErrRoomActive = errors.New("session already joined to a room")
	ErrNotInRoom  = errors.New("session not joined to a room")
)
