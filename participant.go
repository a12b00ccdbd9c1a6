package roomkit

import (
	"sync"

	"github.com/dkeye/roomkit/domain"
)

// Participant is one endpoint in the room, local or remote. The
// unexported mutators keep the set closed to this package.
type Participant interface {
	SID() domain.ParticipantID
	Identity() string
	Name() string
	Metadata() string
	AudioLevel() float32
	IsSpeaking() bool
	ConnectionQuality() domain.ConnectionQuality
	TrackPublications() []TrackPublication
	GetTrackPublication(domain.TrackID) (TrackPublication, bool)
	IsLocal() bool

	setSpeaking(level float32, active bool)
	setQuality(q domain.ConnectionQuality) bool
}

// baseParticipant holds the capability set shared by the local and
// remote variants. Its mutex nests under the room lock; never call back
// into Room while holding it.
type baseParticipant struct {
	mu         sync.RWMutex
	sid        domain.ParticipantID
	identity   string
	name       string
	metadata   string
	state      domain.ParticipantState
	audioLevel float32
	speaking   bool
	quality    domain.ConnectionQuality
	tracks     map[domain.TrackID]TrackPublication
}

func newBaseParticipant(info domain.ParticipantInfo) baseParticipant {
	return baseParticipant{
		sid:      info.SID,
		identity: info.Identity,
		name:     info.Name,
		metadata: info.Metadata,
		state:    info.State,
		quality:  domain.QualityUnknown,
		tracks:   make(map[domain.TrackID]TrackPublication),
	}
}

func (p *baseParticipant) SID() domain.ParticipantID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sid
}

func (p *baseParticipant) Identity() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

func (p *baseParticipant) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *baseParticipant) Metadata() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metadata
}

func (p *baseParticipant) State() domain.ParticipantState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *baseParticipant) AudioLevel() float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.audioLevel
}

func (p *baseParticipant) IsSpeaking() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.speaking
}

func (p *baseParticipant) ConnectionQuality() domain.ConnectionQuality {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quality
}

func (p *baseParticipant) TrackPublications() []TrackPublication {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]TrackPublication, 0, len(p.tracks))
	for _, pub := range p.tracks {
		out = append(out, pub)
	}
	return out
}

func (p *baseParticipant) GetTrackPublication(sid domain.TrackID) (TrackPublication, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pub, ok := p.tracks[sid]
	return pub, ok
}

func (p *baseParticipant) setSpeaking(level float32, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioLevel = level
	p.speaking = active
}

func (p *baseParticipant) setQuality(q domain.ConnectionQuality) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quality == q {
		return false
	}
	p.quality = q
	return true
}

func (p *baseParticipant) setState(s domain.ParticipantState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// updateMeta refreshes identity fields in place so external references
// to the participant stay valid across updates.
func (p *baseParticipant) updateMeta(info domain.ParticipantInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = info.Identity
	p.name = info.Name
	p.metadata = info.Metadata
	p.state = info.State
}

func (p *baseParticipant) addPublication(pub TrackPublication) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks[pub.SID()] = pub
}

func (p *baseParticipant) removePublication(sid domain.TrackID) (TrackPublication, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub, ok := p.tracks[sid]
	if ok {
		delete(p.tracks, sid)
	}
	return pub, ok
}

// RemoteParticipant mirrors a participant maintained by the server.
type RemoteParticipant struct {
	baseParticipant
	engine *engine
}

func newRemoteParticipant(info domain.ParticipantInfo, eng *engine) *RemoteParticipant {
	p := &RemoteParticipant{baseParticipant: newBaseParticipant(info), engine: eng}
	p.syncTracks(info.Tracks)
	return p
}

func (p *RemoteParticipant) IsLocal() bool { return false }

func (p *RemoteParticipant) GetRemoteTrackPublication(sid domain.TrackID) (*RemoteTrackPublication, bool) {
	pub, ok := p.GetTrackPublication(sid)
	if !ok {
		return nil, false
	}
	rp, ok := pub.(*RemoteTrackPublication)
	return rp, ok
}

func (p *RemoteParticipant) updateFromInfo(info domain.ParticipantInfo) {
	p.updateMeta(info)
	p.syncTracks(info.Tracks)
}

// syncTracks reconciles the publication map with the server's track
// list: get-or-create advertised tracks, drop the ones no longer listed.
func (p *RemoteParticipant) syncTracks(infos []domain.TrackInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[domain.TrackID]struct{}, len(infos))
	for _, ti := range infos {
		seen[ti.SID] = struct{}{}
		if pub, ok := p.tracks[ti.SID]; ok {
			if rp, ok := pub.(*RemoteTrackPublication); ok {
				rp.updateFromInfo(ti)
			}
			continue
		}
		p.tracks[ti.SID] = newRemoteTrackPublication(ti, p.engine)
	}
	for sid := range p.tracks {
		if _, ok := seen[sid]; !ok {
			delete(p.tracks, sid)
		}
	}
}
