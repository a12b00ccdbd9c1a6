package roomkit

import (
	"sort"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/domain"
	"github.com/dkeye/roomkit/internal/signal"
)

// signalHandler applies inbound server events to the room. All methods
// run on the signal channel's read goroutine, so events are applied in
// arrival order; observer callbacks are enqueued, never run inline.
type signalHandler struct {
	room *Room
}

func (h *signalHandler) OnJoin(resp *signal.JoinResponse) {
	r := h.room

	var joined []*RemoteParticipant

	r.lock.Lock()
	r.applyRoomInfoLocked(resp.Room)
	r.state.serverVersion = resp.ServerVersion
	r.state.serverRegion = resp.ServerRegion
	r.state.sifTrailer = resp.SifTrailer

	if resp.Participant != nil {
		if r.state.local == nil {
			r.state.local = newLocalParticipant(*resp.Participant, r.engine)
		} else {
			r.state.local.updateFromInfo(*resp.Participant)
		}
	}
	for i := range resp.OtherParticipants {
		info := resp.OtherParticipants[i]
		_, known := r.state.remotes[info.SID]
		p := r.getOrCreateRemoteLocked(info.SID, &info)
		if !known && p != nil {
			joined = append(joined, p)
		}
	}
	r.lock.Unlock()

	log.Info().
		Str("module", "room").
		Str("room_sid", string(resp.Room.SID)).
		Int("participants", len(resp.OtherParticipants)).
		Msg("joined")

	// Participants already in the room are announced like any other
	// join. Ungated: the engine is still mid-handshake at this point.
	for _, p := range joined {
		p := p
		r.notify(func(o RoomObserver) { o.OnParticipantConnected(p) })
	}
	r.engine.notifyJoined()
}

// applyRoomInfoLocked copies server room fields without diffing; used
// for the join path where no notifications are wanted.
func (r *Room) applyRoomInfoLocked(info domain.RoomInfo) {
	r.state.sid = info.SID
	r.state.name = info.Name
	r.state.metadata = info.Metadata
	r.state.recording = info.ActiveRecording
	r.state.maxParticipants = info.MaxParticipants
	r.state.numParticipants = info.NumParticipants
	r.state.numPublishers = info.NumPublishers
}

func (h *signalHandler) OnRoomUpdate(info domain.RoomInfo) {
	r := h.room

	r.lock.Lock()
	metaChanged := r.state.metadata != info.Metadata
	recChanged := r.state.recording != info.ActiveRecording
	r.applyRoomInfoLocked(info)
	r.lock.Unlock()

	if metaChanged {
		meta := info.Metadata
		r.notifyConnected(func(o RoomObserver) { o.OnRoomMetadataChanged(meta) })
	}
	if recChanged {
		rec := info.ActiveRecording
		r.notifyConnected(func(o RoomObserver) { o.OnRecordingChanged(rec) })
	}
}

// OnParticipantsChanged reconciles the registry against a participant
// delta. Disconnects are collected during the pass and notified before
// the new joins, and a participant joining is notified exactly once.
func (h *signalHandler) OnParticipantsChanged(infos []domain.ParticipantInfo) {
	r := h.room

	var disconnected, connected []*RemoteParticipant

	r.lock.Lock()
	for i := range infos {
		info := infos[i]
		if info.SID == "" {
			log.Warn().Str("module", "room").Str("identity", info.Identity).Msg("participant update without sid, dropped")
			continue
		}
		if r.state.local != nil && info.SID == r.state.local.SID() {
			r.state.local.updateFromInfo(info)
			continue
		}
		if info.State == domain.ParticipantDisconnected {
			if p, ok := r.state.remotes[info.SID]; ok {
				delete(r.state.remotes, info.SID)
				delete(r.state.lastSpeakers, info.SID)
				p.setState(domain.ParticipantDisconnected)
				disconnected = append(disconnected, p)
			}
			continue
		}
		_, known := r.state.remotes[info.SID]
		p := r.getOrCreateRemoteLocked(info.SID, &info)
		if !known && p != nil {
			connected = append(connected, p)
		}
	}
	r.lock.Unlock()

	for _, p := range disconnected {
		p := p
		r.notifyConnected(func(o RoomObserver) { o.OnParticipantDisconnected(p) })
	}
	for _, p := range connected {
		p := p
		r.notifyConnected(func(o RoomObserver) { o.OnParticipantConnected(p) })
	}
}

// OnSpeakersChanged merges a speaker delta into the retained speaker
// set and publishes the resulting list, loudest first.
func (h *signalHandler) OnSpeakersChanged(speakers []domain.SpeakerInfo) {
	r := h.room

	r.lock.Lock()
	for _, si := range speakers {
		p := r.participantLocked(si.SID)
		if p == nil {
			continue
		}
		p.setSpeaking(si.Level, si.Active)
		if si.Active {
			r.state.lastSpeakers[si.SID] = si
		} else {
			delete(r.state.lastSpeakers, si.SID)
		}
	}

	type ranked struct {
		p     Participant
		level float32
	}
	active := make([]ranked, 0, len(r.state.lastSpeakers))
	for sid, si := range r.state.lastSpeakers {
		p := r.participantLocked(sid)
		if p == nil {
			continue
		}
		active = append(active, ranked{p: p, level: si.Level})
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].level > active[j].level })

	list := make([]Participant, len(active))
	for i, a := range active {
		list[i] = a.p
	}
	r.state.activeSpeakers = list
	r.lock.Unlock()

	snapshot := make([]Participant, len(list))
	copy(snapshot, list)
	r.notifyConnected(func(o RoomObserver) { o.OnActiveSpeakersChanged(snapshot) })
}

// participantLocked resolves a sid to the local or a remote
// participant; nil when unknown. Callers hold r.lock.
func (r *Room) participantLocked(sid domain.ParticipantID) Participant {
	if r.state.local != nil && r.state.local.SID() == sid {
		return r.state.local
	}
	if p, ok := r.state.remotes[sid]; ok {
		return p
	}
	return nil
}

func (h *signalHandler) OnConnectionQualityChanged(updates []domain.ConnectionQualityInfo) {
	r := h.room

	for _, u := range updates {
		r.lock.Lock()
		p := r.participantLocked(u.SID)
		r.lock.Unlock()
		if p == nil {
			continue
		}
		if !p.setQuality(u.Quality) {
			continue
		}
		p, q := p, u.Quality
		r.notifyConnected(func(o RoomObserver) { o.OnConnectionQualityChanged(p, q) })
	}
}

// OnMuteChanged applies a server-side mute on a local publication. An
// unknown track sid is a silent no-op; repeated notices for the same
// state produce no events.
func (h *signalHandler) OnMuteChanged(trackSID domain.TrackID, muted bool) {
	r := h.room

	r.lock.Lock()
	local := r.state.local
	r.lock.Unlock()
	if local == nil {
		return
	}
	pub, ok := local.getLocalPublication(trackSID)
	if !ok {
		return
	}
	if !pub.setMuted(muted) {
		return
	}
	if muted {
		pub.track.markMuted()
		r.notifyConnected(func(o RoomObserver) { o.OnTrackMuted(local, pub) })
	} else {
		pub.track.markOk()
		r.notifyConnected(func(o RoomObserver) { o.OnTrackUnmuted(local, pub) })
	}
}

func (h *signalHandler) OnSubscriptionPermissionChanged(pSID domain.ParticipantID, tSID domain.TrackID, allowed bool) {
	r := h.room

	r.lock.Lock()
	p, ok := r.state.remotes[pSID]
	r.lock.Unlock()
	if !ok {
		return
	}
	pub, ok := p.GetRemoteTrackPublication(tSID)
	if !ok {
		return
	}
	if !pub.setSubscriptionAllowed(allowed) {
		return
	}
	r.notifyConnected(func(o RoomObserver) { o.OnSubscriptionPermissionChanged(p, pub, allowed) })
}

func (h *signalHandler) OnStreamStateChanged(updates []domain.StreamStateInfo) {
	r := h.room

	for _, u := range updates {
		r.lock.Lock()
		p, ok := r.state.remotes[u.ParticipantSID]
		r.lock.Unlock()
		if !ok {
			continue
		}
		pub, ok := p.GetRemoteTrackPublication(u.TrackSID)
		if !ok {
			continue
		}
		if !pub.setStreamState(u.State) {
			continue
		}
		p, pub, state := p, pub, u.State
		r.notifyConnected(func(o RoomObserver) { o.OnTrackStreamStateChanged(p, pub, state) })
	}
}

// OnTrackUnpublished is the server instructing this client to withdraw
// one of its own tracks. Fire and forget: failures are logged, never
// surfaced.
func (h *signalHandler) OnTrackUnpublished(trackSID domain.TrackID) {
	r := h.room

	r.engine.executeIfConnected(func() {
		r.lock.Lock()
		local := r.state.local
		r.lock.Unlock()
		if local == nil {
			return
		}
		go func() {
			if err := local.UnpublishTrack(trackSID); err != nil {
				log.Warn().Err(err).Str("module", "room").Str("track_sid", string(trackSID)).Msg("server-requested unpublish")
			}
		}()
	})
}

func (h *signalHandler) OnLeave(l signal.Leave) { h.room.engine.onLeave(l) }

func (h *signalHandler) OnOffer(sdp string) { h.room.engine.onRemoteOffer(sdp) }

func (h *signalHandler) OnAnswer(sdp string) { h.room.engine.onRemoteAnswer(sdp) }

func (h *signalHandler) OnTrickle(ci webrtc.ICECandidateInit, target signal.SignalTarget) {
	h.room.engine.onRemoteTrickle(ci, target)
}
