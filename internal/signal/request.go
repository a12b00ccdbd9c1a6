package signal

import (
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/roomkit/domain"
)

// Outbound request types.
const (
	reqAddTrack               = "add_track"
	reqUnpublishTrack         = "unpublish_track"
	reqMuteTrack              = "mute_track"
	reqUpdateSubscription     = "update_subscription"
	reqUpdateTrackSettings    = "update_track_settings"
	reqDataPacket             = "data_packet"
	reqSubscriptionPermission = "subscription_permission"
	reqLeave                  = "leave"
	reqPing                   = "ping"
	reqOffer                  = "offer"
	reqAnswer                 = "answer"
	reqTrickle                = "trickle"
)

// Request is an outbound command handed to the channel for transport.
// Retryable requests may be held back while the connection is down and
// flushed once the session is re-established.
type Request interface {
	MessageType() string
	Retryable() bool
}

// requestBase carries the envelope fields every request shares. The ID
// is a correlation id, useful in server logs; the server does not echo it.
type requestBase struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

func newBase(t string) requestBase {
	return requestBase{Type: t, ID: uuid.NewString()}
}

func (b requestBase) MessageType() string { return b.Type }

// Retryable is false unless the concrete request overrides it.
func (b requestBase) Retryable() bool { return false }

// AddTrackRequest announces the intent to publish a local track.
type AddTrackRequest struct {
	requestBase
	Cid  string           `json:"cid"`
	Name string           `json:"name,omitempty"`
	Kind domain.TrackKind `json:"kind"`
}

func NewAddTrackRequest(cid, name string, kind domain.TrackKind) *AddTrackRequest {
	return &AddTrackRequest{requestBase: newBase(reqAddTrack), Cid: cid, Name: name, Kind: kind}
}

func (*AddTrackRequest) Retryable() bool { return true }

type UnpublishTrackRequest struct {
	requestBase
	TrackSID domain.TrackID `json:"track_sid"`
}

func NewUnpublishTrackRequest(sid domain.TrackID) *UnpublishTrackRequest {
	return &UnpublishTrackRequest{requestBase: newBase(reqUnpublishTrack), TrackSID: sid}
}

func (*UnpublishTrackRequest) Retryable() bool { return true }

type MuteTrackRequest struct {
	requestBase
	TrackSID domain.TrackID `json:"track_sid"`
	Muted    bool           `json:"muted"`
}

func NewMuteTrackRequest(sid domain.TrackID, muted bool) *MuteTrackRequest {
	return &MuteTrackRequest{requestBase: newBase(reqMuteTrack), TrackSID: sid, Muted: muted}
}

func (*MuteTrackRequest) Retryable() bool { return true }

type UpdateSubscriptionRequest struct {
	requestBase
	TrackSIDs []domain.TrackID `json:"track_sids"`
	Subscribe bool             `json:"subscribe"`
}

func NewUpdateSubscriptionRequest(sids []domain.TrackID, subscribe bool) *UpdateSubscriptionRequest {
	return &UpdateSubscriptionRequest{requestBase: newBase(reqUpdateSubscription), TrackSIDs: sids, Subscribe: subscribe}
}

func (*UpdateSubscriptionRequest) Retryable() bool { return true }

type UpdateTrackSettingsRequest struct {
	requestBase
	TrackSIDs []domain.TrackID `json:"track_sids"`
	Disabled  bool             `json:"disabled"`
}

func NewUpdateTrackSettingsRequest(sids []domain.TrackID, disabled bool) *UpdateTrackSettingsRequest {
	return &UpdateTrackSettingsRequest{requestBase: newBase(reqUpdateTrackSettings), TrackSIDs: sids, Disabled: disabled}
}

func (*UpdateTrackSettingsRequest) Retryable() bool { return true }

// DataPacketRequest publishes an opaque payload to other participants.
// Not retryable: stale realtime data is worse than dropped data.
type DataPacketRequest struct {
	requestBase
	Payload         []byte                 `json:"payload"`
	Reliability     domain.Reliability     `json:"reliability"`
	DestinationSIDs []domain.ParticipantID `json:"destination_sids,omitempty"`
}

func NewDataPacketRequest(payload []byte, rel domain.Reliability, dest []domain.ParticipantID) *DataPacketRequest {
	return &DataPacketRequest{requestBase: newBase(reqDataPacket), Payload: payload, Reliability: rel, DestinationSIDs: dest}
}

// TrackPermission grants a participant access to all or some of our tracks.
type TrackPermission struct {
	ParticipantSID domain.ParticipantID `json:"participant_sid"`
	AllTracks      bool                 `json:"all_tracks"`
	TrackSIDs      []domain.TrackID     `json:"track_sids,omitempty"`
}

type SubscriptionPermissionRequest struct {
	requestBase
	AllParticipants bool              `json:"all_participants"`
	Permissions     []TrackPermission `json:"permissions,omitempty"`
}

func NewSubscriptionPermissionRequest(all bool, perms []TrackPermission) *SubscriptionPermissionRequest {
	return &SubscriptionPermissionRequest{requestBase: newBase(reqSubscriptionPermission), AllParticipants: all, Permissions: perms}
}

func (*SubscriptionPermissionRequest) Retryable() bool { return true }

type LeaveRequest struct {
	requestBase
}

func NewLeaveRequest() *LeaveRequest {
	return &LeaveRequest{requestBase: newBase(reqLeave)}
}

type PingRequest struct {
	requestBase
}

func NewPingRequest() *PingRequest {
	return &PingRequest{requestBase: newBase(reqPing)}
}

// OfferRequest and AnswerRequest carry SDP for transport negotiation;
// the contents are opaque to this package.
type OfferRequest struct {
	requestBase
	SDP string `json:"sdp"`
}

func NewOfferRequest(sdp string) *OfferRequest {
	return &OfferRequest{requestBase: newBase(reqOffer), SDP: sdp}
}

type AnswerRequest struct {
	requestBase
	SDP string `json:"sdp"`
}

func NewAnswerRequest(sdp string) *AnswerRequest {
	return &AnswerRequest{requestBase: newBase(reqAnswer), SDP: sdp}
}

type TrickleRequest struct {
	requestBase
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	Target    SignalTarget            `json:"target,omitempty"`
}

func NewTrickleRequest(candidate webrtc.ICECandidateInit, target SignalTarget) *TrickleRequest {
	return &TrickleRequest{requestBase: newBase(reqTrickle), Candidate: candidate, Target: target}
}
