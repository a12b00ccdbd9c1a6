package roomkit

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/roomkit/domain"
	"github.com/dkeye/roomkit/internal/signal"
)

// TrackPublication is the advertised presence of one track. Local and
// remote publications share this read surface.
type TrackPublication interface {
	SID() domain.TrackID
	Name() string
	Kind() domain.TrackKind
	IsMuted() bool
}

type basePublication struct {
	mu   sync.RWMutex
	sid  domain.TrackID
	name string
	kind domain.TrackKind
	mute bool
}

func (p *basePublication) SID() domain.TrackID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sid
}

func (p *basePublication) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *basePublication) Kind() domain.TrackKind {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.kind
}

func (p *basePublication) IsMuted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mute
}

// setMuted reports whether the flag actually changed, so callers can
// dedupe notifications.
func (p *basePublication) setMuted(muted bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mute == muted {
		return false
	}
	p.mute = muted
	return true
}

func (p *basePublication) updateFromInfo(info domain.TrackInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = info.Name
	p.kind = info.Kind
	p.mute = info.Muted
}

// LocalTrackPublication is a track we published ourselves.
type LocalTrackPublication struct {
	basePublication
	track  *LocalTrack
	sender *webrtc.RTPSender
	engine *engine
}

func newLocalTrackPublication(sid domain.TrackID, track *LocalTrack, sender *webrtc.RTPSender, eng *engine) *LocalTrackPublication {
	p := &LocalTrackPublication{track: track, sender: sender, engine: eng}
	p.sid = sid
	p.name = track.Name()
	p.kind = track.Kind()
	return p
}

func (p *LocalTrackPublication) Track() *LocalTrack { return p.track }

// SetMuted pauses or resumes the local track and tells the server.
// Idempotent: setting the current value is a no-op.
func (p *LocalTrackPublication) SetMuted(muted bool) error {
	if !p.setMuted(muted) {
		return nil
	}
	if muted {
		p.track.markMuted()
	} else {
		p.track.markOk()
	}
	return p.engine.send(signal.NewMuteTrackRequest(p.SID(), muted))
}

// RemoteTrackPublication is a track advertised by a remote participant.
// Subscription and stream-state fields are driven by the remote peer.
type RemoteTrackPublication struct {
	basePublication
	allowed     bool
	streamState domain.StreamState
	engine      *engine
}

func newRemoteTrackPublication(info domain.TrackInfo, eng *engine) *RemoteTrackPublication {
	p := &RemoteTrackPublication{engine: eng, allowed: true, streamState: domain.StreamStatePaused}
	p.sid = info.SID
	p.name = info.Name
	p.kind = info.Kind
	p.mute = info.Muted
	return p
}

func (p *RemoteTrackPublication) IsSubscriptionAllowed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.allowed
}

func (p *RemoteTrackPublication) StreamState() domain.StreamState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.streamState
}

func (p *RemoteTrackPublication) setSubscriptionAllowed(allowed bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allowed == allowed {
		return false
	}
	p.allowed = allowed
	return true
}

func (p *RemoteTrackPublication) setStreamState(s domain.StreamState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamState == s {
		return false
	}
	p.streamState = s
	return true
}

// SetSubscribed asks the server to start or stop forwarding this track.
func (p *RemoteTrackPublication) SetSubscribed(subscribe bool) error {
	return p.engine.send(signal.NewUpdateSubscriptionRequest([]domain.TrackID{p.SID()}, subscribe))
}

// SetEnabled pauses or resumes delivery of a subscribed track without
// dropping the subscription.
func (p *RemoteTrackPublication) SetEnabled(enabled bool) error {
	return p.engine.send(signal.NewUpdateTrackSettingsRequest([]domain.TrackID{p.SID()}, !enabled))
}
