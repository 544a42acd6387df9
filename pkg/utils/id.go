package utils

import "github.com/google/uuid"

// GenerateClientID returns a fresh room client identifier. Client ids
// take part in the offer tie-break, which only needs a total order, so
// any unique string works.
func GenerateClientID() string {
	return "c-" + uuid.NewString()
}

// GenerateRoomTag returns an identifier for locally created rooms when
// the relay lets the client pick one.
func GenerateRoomTag() string {
	return "room-" + uuid.NewString()
}
