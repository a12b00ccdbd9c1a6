package roomkit

import (
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/atomic"

	"github.com/dkeye/roomkit/domain"
)

type trackState int32

const (
	trackStateOk trackState = iota
	trackStateMuted
	trackStateStopped
)

// LocalTrack is the write side of a published track: the application
// feeds it RTP packets and the media transport carries them out.
type LocalTrack struct {
	rtpTrack *webrtc.TrackLocalStaticRTP
	name     string
	kind     domain.TrackKind
	state    atomic.Int32
}

func NewLocalTrack(name string, kind domain.TrackKind, caps webrtc.RTPCodecCapability) (*LocalTrack, error) {
	t, err := webrtc.NewTrackLocalStaticRTP(caps, uuid.NewString(), uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &LocalTrack{rtpTrack: t, name: name, kind: kind}, nil
}

func (t *LocalTrack) ID() string             { return t.rtpTrack.ID() }
func (t *LocalTrack) Name() string           { return t.name }
func (t *LocalTrack) Kind() domain.TrackKind { return t.kind }

// WriteRTP forwards one packet. Packets written while the track is
// muted or stopped are dropped silently.
func (t *LocalTrack) WriteRTP(pkt *rtp.Packet) error {
	if trackState(t.state.Load()) != trackStateOk {
		return nil
	}
	return t.rtpTrack.WriteRTP(pkt)
}

func (t *LocalTrack) markOk()      { t.state.Store(int32(trackStateOk)) }
func (t *LocalTrack) markMuted()   { t.state.Store(int32(trackStateMuted)) }
func (t *LocalTrack) markStopped() { t.state.Store(int32(trackStateStopped)) }

func (t *LocalTrack) local() *webrtc.TrackLocalStaticRTP { return t.rtpTrack }
