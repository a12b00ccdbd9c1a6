package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/roomkit/domain"
	"github.com/pion/webrtc/v4"
)

// Inbound message types.
const (
	msgJoinResponse           = "join_response"
	msgRoomUpdate             = "room_update"
	msgSpeakersChanged        = "speakers_changed"
	msgConnectionQuality      = "connection_quality"
	msgMuteChanged            = "mute_changed"
	msgSubscriptionPermission = "subscription_permission"
	msgStreamState            = "stream_state"
	msgParticipantsChanged    = "participants_changed"
	msgTrackUnpublished       = "track_unpublished"
	msgLeave                  = "leave"
	msgOffer                  = "offer"
	msgAnswer                 = "answer"
	msgTrickle                = "trickle"
	msgPong                   = "pong"
)

// SignalTarget selects which peer connection a negotiation message is for.
type SignalTarget string

const (
	TargetPublisher  SignalTarget = "publisher"
	TargetSubscriber SignalTarget = "subscriber"
)

type JoinResponse struct {
	Type              string                   `json:"type"`
	Room              domain.RoomInfo          `json:"room"`
	Participant       *domain.ParticipantInfo  `json:"participant,omitempty"`
	OtherParticipants []domain.ParticipantInfo `json:"other_participants,omitempty"`
	ServerVersion     string                   `json:"server_version"`
	ServerRegion      string                   `json:"server_region,omitempty"`
	SifTrailer        []byte                   `json:"sif_trailer,omitempty"`
}

type RoomUpdate struct {
	Type string          `json:"type"`
	Room domain.RoomInfo `json:"room"`
}

type SpeakersChanged struct {
	Type     string               `json:"type"`
	Speakers []domain.SpeakerInfo `json:"speakers"`
}

type ConnectionQualityChanged struct {
	Type    string                         `json:"type"`
	Updates []domain.ConnectionQualityInfo `json:"updates"`
}

type MuteChanged struct {
	Type     string         `json:"type"`
	TrackSID domain.TrackID `json:"track_sid"`
	Muted    bool           `json:"muted"`
}

type SubscriptionPermissionChanged struct {
	Type           string               `json:"type"`
	ParticipantSID domain.ParticipantID `json:"participant_sid"`
	TrackSID       domain.TrackID       `json:"track_sid"`
	Allowed        bool                 `json:"allowed"`
}

type StreamStateChanged struct {
	Type    string                   `json:"type"`
	Updates []domain.StreamStateInfo `json:"updates"`
}

type ParticipantsChanged struct {
	Type         string                   `json:"type"`
	Participants []domain.ParticipantInfo `json:"participants"`
}

type TrackUnpublished struct {
	Type     string         `json:"type"`
	TrackSID domain.TrackID `json:"track_sid"`
}

// Leave is the server's notice that this session is over. CanReconnect
// tells the engine whether a resume is worth attempting.
type Leave struct {
	Type         string                  `json:"type"`
	CanReconnect bool                    `json:"can_reconnect"`
	Reason       domain.DisconnectReason `json:"reason"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Trickle struct {
	Type      string                  `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	Target    SignalTarget            `json:"target,omitempty"`
}

type Pong struct {
	Type string `json:"type"`
}

// decode peeks the envelope type and unmarshals the full payload into
// the matching struct. Unknown types are an error so the caller can log
// and drop them.
func decode(data []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bad envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case msgJoinResponse:
		msg = new(JoinResponse)
	case msgRoomUpdate:
		msg = new(RoomUpdate)
	case msgSpeakersChanged:
		msg = new(SpeakersChanged)
	case msgConnectionQuality:
		msg = new(ConnectionQualityChanged)
	case msgMuteChanged:
		msg = new(MuteChanged)
	case msgSubscriptionPermission:
		msg = new(SubscriptionPermissionChanged)
	case msgStreamState:
		msg = new(StreamStateChanged)
	case msgParticipantsChanged:
		msg = new(ParticipantsChanged)
	case msgTrackUnpublished:
		msg = new(TrackUnpublished)
	case msgLeave:
		msg = new(Leave)
	case msgOffer, msgAnswer:
		msg = new(SessionDescription)
	case msgTrickle:
		msg = new(Trickle)
	case msgPong:
		msg = new(Pong)
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("bad %s payload: %w", env.Type, err)
	}
	return msg, nil
}
