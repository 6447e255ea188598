package domain

// RoomKey is the opaque identifier a connection addresses a room by.
type RoomKey string
