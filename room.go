package roomkit

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/domain"
	"github.com/dkeye/roomkit/internal/config"
	"github.com/dkeye/roomkit/internal/rtc"
	"github.com/dkeye/roomkit/internal/signal"
)

// RemoteTrackHandler receives decoded remote media as it arrives.
type RemoteTrackHandler func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

type Option func(*Room)

// WithWebRTCConfig overrides the peer connection configuration.
func WithWebRTCConfig(c webrtc.Configuration) Option {
	return func(r *Room) { r.engine.rtcConfig = c }
}

// WithMediaTransportFactory swaps the media transport implementation.
// Intended for tests and custom pipelines.
func WithMediaTransportFactory(f MediaTransportFactory) Option {
	return func(r *Room) { r.engine.newMedia = f }
}

// WithRemoteTrackHandler registers a sink for incoming remote tracks.
func WithRemoteTrackHandler(h RemoteTrackHandler) Option {
	return func(r *Room) { r.engine.onTrack = h }
}

// roomState is everything the server can mutate through the signal
// channel. Guarded by Room.lock.
type roomState struct {
	sid             domain.RoomID
	name            domain.RoomName
	metadata        string
	recording       bool
	maxParticipants int
	numParticipants int
	numPublishers   int
	serverVersion   string
	serverRegion    string
	sifTrailer      []byte

	local          *LocalParticipant
	remotes        map[domain.ParticipantID]*RemoteParticipant
	activeSpeakers []Participant
	lastSpeakers   map[domain.ParticipantID]domain.SpeakerInfo
}

// Room is the session aggregate: connection lifecycle, participant
// registry and observer dispatch in one place.
type Room struct {
	cfg       *config.Config
	engine    *engine
	observers *observerRegistry
	queue     *eventQueue

	lock  sync.Mutex
	state roomState
}

// NewRoom builds a disconnected room. Call Connect to join a session.
func NewRoom(opts ...Option) *Room {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Str("module", "room").Msg("config load failed, using defaults")
		cfg = config.Default()
	}
	r := &Room{
		cfg:       cfg,
		observers: newObserverRegistry(),
	}
	r.queue = newEventQueue(cfg.EventQueueSize)
	r.engine = newEngine(cfg, r, defaultMediaFactory, rtc.DefaultConfig())
	r.engine.handler = &signalHandler{room: r}
	r.state.remotes = make(map[domain.ParticipantID]*RemoteParticipant)
	r.state.lastSpeakers = make(map[domain.ParticipantID]domain.SpeakerInfo)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultMediaFactory(c webrtc.Configuration) (MediaTransport, error) {
	conn, err := rtc.NewConnection(c)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// AddObserver registers an observer for room events. Safe at any time,
// including from within a callback.
func (r *Room) AddObserver(o RoomObserver) { r.observers.add(o) }

// RemoveObserver unregisters a previously added observer.
func (r *Room) RemoveObserver(o RoomObserver) { r.observers.remove(o) }

// Connect joins the room behind url using token. It blocks until the
// session is established or ctx expires.
func (r *Room) Connect(ctx context.Context, url, token string) error {
	return r.engine.connect(ctx, url, token)
}

// Disconnect leaves the room and releases all session resources.
// Idempotent.
func (r *Room) Disconnect() {
	if r.engine.currentState() == StateDisconnected {
		return
	}
	if err := r.engine.sendDirect(signal.NewLeaveRequest()); err != nil {
		log.Debug().Err(err).Str("module", "room").Msg("leave request")
	}
	r.engine.close(domain.ReasonClientInitiated)
}

func (r *Room) State() ConnectionState { return r.engine.currentState() }

func (r *Room) SID() domain.RoomID {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.sid
}

func (r *Room) Name() domain.RoomName {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.name
}

func (r *Room) Metadata() string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.metadata
}

func (r *Room) IsRecording() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.recording
}

func (r *Room) ServerVersion() string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.serverVersion
}

func (r *Room) ServerRegion() string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.serverRegion
}

func (r *Room) NumParticipants() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.numParticipants
}

func (r *Room) NumPublishers() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.numPublishers
}

func (r *Room) MaxParticipants() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.maxParticipants
}

// SifTrailer returns the server's frame-trailer token for payload
// integrity checks, empty when the server does not use one.
func (r *Room) SifTrailer() []byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]byte, len(r.state.sifTrailer))
	copy(out, r.state.sifTrailer)
	return out
}

// LocalParticipant returns this client's own participant, nil before
// the first successful join.
func (r *Room) LocalParticipant() *LocalParticipant {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state.local
}

// RemoteParticipants returns a snapshot of all remote participants.
func (r *Room) RemoteParticipants() []*RemoteParticipant {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]*RemoteParticipant, 0, len(r.state.remotes))
	for _, p := range r.state.remotes {
		out = append(out, p)
	}
	return out
}

// RemoteParticipant looks up a remote participant by server id.
func (r *Room) RemoteParticipant(sid domain.ParticipantID) (*RemoteParticipant, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	p, ok := r.state.remotes[sid]
	return p, ok
}

// ActiveSpeakers returns the current active speaker list, loudest
// first.
func (r *Room) ActiveSpeakers() []Participant {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]Participant, len(r.state.activeSpeakers))
	copy(out, r.state.activeSpeakers)
	return out
}

// getOrCreateRemoteLocked returns the registered remote participant for
// sid, creating one on first sight. The local participant is never
// registered here; a sid matching it returns nil. Callers hold r.lock.
func (r *Room) getOrCreateRemoteLocked(sid domain.ParticipantID, info *domain.ParticipantInfo) *RemoteParticipant {
	if r.state.local != nil && r.state.local.SID() == sid {
		return nil
	}
	if p, ok := r.state.remotes[sid]; ok {
		if info != nil {
			p.updateFromInfo(*info)
		}
		return p
	}
	seed := domain.ParticipantInfo{SID: sid, State: domain.ParticipantJoined}
	if info != nil {
		seed = *info
	}
	p := newRemoteParticipant(seed, r.engine)
	r.state.remotes[sid] = p
	return p
}

// notify runs f against every observer on the serialized event queue.
func (r *Room) notify(f func(RoomObserver)) {
	r.queue.enqueue(func() { r.observers.notify(f) })
}

// notifyConnected is notify gated on the session still being live when
// the callback actually runs, not when it was queued.
func (r *Room) notifyConnected(f func(RoomObserver)) {
	ep := r.engine.currentEpisode()
	r.queue.enqueue(func() {
		if !r.engine.isConnected() || r.engine.currentEpisode() != ep {
			return
		}
		r.observers.notify(f)
	})
}

// engineObserver implementation.

func (r *Room) onStateChanged(prev, next ConnectionState) {
	switch {
	case next == StateReconnecting:
		r.notify(func(o RoomObserver) { o.OnReconnecting() })
	case prev == StateReconnecting && next == StateConnected:
		r.notify(func(o RoomObserver) { o.OnReconnected() })
	}
}

// onFullReconnect wipes all session-scoped state ahead of a fresh join.
// Participants and publications from the old session never survive it.
func (r *Room) onFullReconnect() {
	r.lock.Lock()
	gone := r.cleanupStateLocked()
	r.lock.Unlock()
	for _, p := range gone {
		p := p
		r.notify(func(o RoomObserver) { o.OnParticipantDisconnected(p) })
	}
}

func (r *Room) onEngineClosed(reason domain.DisconnectReason) {
	r.lock.Lock()
	local := r.state.local
	gone := r.cleanupStateLocked()
	r.state.local = nil
	r.lock.Unlock()

	if local != nil {
		local.stopPublications()
	}
	for _, p := range gone {
		p := p
		r.notify(func(o RoomObserver) { o.OnParticipantDisconnected(p) })
	}
	r.notify(func(o RoomObserver) { o.OnDisconnected(reason) })
}

// cleanupStateLocked clears session-scoped state, returning the remote
// participants that were dropped so callers can notify after unlock.
func (r *Room) cleanupStateLocked() []*RemoteParticipant {
	gone := make([]*RemoteParticipant, 0, len(r.state.remotes))
	for _, p := range r.state.remotes {
		p.setState(domain.ParticipantDisconnected)
		gone = append(gone, p)
	}
	r.state.remotes = make(map[domain.ParticipantID]*RemoteParticipant)
	r.state.lastSpeakers = make(map[domain.ParticipantID]domain.SpeakerInfo)
	r.state.activeSpeakers = nil
	return gone
}
