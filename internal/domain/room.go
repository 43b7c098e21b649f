package domain

type RoomName string

const DefaultRoomName RoomName = "vibe_town"

// RoomInfo is the read-only summary served to the monitor API.
type RoomInfo struct {
	Name         RoomName `json:"name"`
	MemberCount  int      `json:"memberCount"`
	MaxOccupancy int      `json:"maxOccupancy"`
	Version      uint64   `json:"version"`
}
