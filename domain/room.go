package domain

type (
	RoomID   string
	RoomName string
)

// RoomInfo is the server's description of a room as carried by join
// responses and room updates.
type RoomInfo struct {
	SID             RoomID   `json:"sid"`
	Name            RoomName `json:"name"`
	Metadata        string   `json:"metadata,omitempty"`
	ActiveRecording bool     `json:"active_recording"`
	MaxParticipants int      `json:"max_participants"`
	NumParticipants int      `json:"num_participants"`
	NumPublishers   int      `json:"num_publishers"`
}

// DisconnectReason explains why a session ended, as reported by the
// server in a leave notice or synthesized locally on transport failure.
type DisconnectReason string

const (
	ReasonUnknown            DisconnectReason = "unknown"
	ReasonClientInitiated    DisconnectReason = "client_initiated"
	ReasonDuplicateIdentity  DisconnectReason = "duplicate_identity"
	ReasonServerShutdown     DisconnectReason = "server_shutdown"
	ReasonParticipantRemoved DisconnectReason = "participant_removed"
	ReasonRoomDeleted        DisconnectReason = "room_deleted"
	ReasonStateMismatch      DisconnectReason = "state_mismatch"
	ReasonConnectionFailure  DisconnectReason = "connection_failure"
)
