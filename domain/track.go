package domain

type TrackID string

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
	TrackKindData  TrackKind = "data"
)

// StreamState reflects whether the server is currently forwarding a
// remote track's media to us.
type StreamState string

const (
	StreamStateActive StreamState = "active"
	StreamStatePaused StreamState = "paused"
)

// Reliability selects the delivery guarantee for published data payloads.
type Reliability string

const (
	ReliabilityReliable Reliability = "reliable"
	ReliabilityLossy    Reliability = "lossy"
)

// TrackInfo describes one advertised track of a participant.
type TrackInfo struct {
	SID   TrackID   `json:"sid"`
	Name  string    `json:"name,omitempty"`
	Kind  TrackKind `json:"kind"`
	Muted bool      `json:"muted"`
}

type StreamStateInfo struct {
	ParticipantSID ParticipantID `json:"participant_sid"`
	TrackSID       TrackID       `json:"track_sid"`
	State          StreamState   `json:"state"`
}
