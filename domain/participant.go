// Package domain contains entity without logic, just meta-data
package domain

type ParticipantID string

// ParticipantState is the server-reported lifecycle state of a participant.
type ParticipantState string

const (
	ParticipantJoining      ParticipantState = "joining"
	ParticipantJoined       ParticipantState = "joined"
	ParticipantActive       ParticipantState = "active"
	ParticipantDisconnected ParticipantState = "disconnected"
)

type ConnectionQuality string

const (
	QualityUnknown   ConnectionQuality = "unknown"
	QualityPoor      ConnectionQuality = "poor"
	QualityGood      ConnectionQuality = "good"
	QualityExcellent ConnectionQuality = "excellent"
)

// ParticipantInfo is one record of a participant-list delta or join snapshot.
type ParticipantInfo struct {
	SID      ParticipantID    `json:"sid"`
	Identity string           `json:"identity"`
	Name     string           `json:"name,omitempty"`
	State    ParticipantState `json:"state"`
	Metadata string           `json:"metadata,omitempty"`
	Tracks   []TrackInfo      `json:"tracks,omitempty"`
}

// SpeakerInfo is one record of a speaker-list update. Level is 0..1.
type SpeakerInfo struct {
	SID    ParticipantID `json:"sid"`
	Level  float32       `json:"level"`
	Active bool          `json:"active"`
}

type ConnectionQualityInfo struct {
	SID     ParticipantID     `json:"sid"`
	Quality ConnectionQuality `json:"quality"`
}
