package roomkit

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/domain"
	"github.com/dkeye/roomkit/internal/signal"
)

// ParticipantTrackPermission grants one participant access to all or
// some of the local participant's tracks.
type ParticipantTrackPermission struct {
	ParticipantSID domain.ParticipantID
	AllTracks      bool
	TrackSIDs      []domain.TrackID
}

// LocalParticipant is this client's own presence in the room. It shares
// the participant capability set and adds the outbound publish surface.
type LocalParticipant struct {
	baseParticipant
	engine *engine
}

func newLocalParticipant(info domain.ParticipantInfo, eng *engine) *LocalParticipant {
	return &LocalParticipant{baseParticipant: newBaseParticipant(info), engine: eng}
}

func (p *LocalParticipant) IsLocal() bool { return true }

func (p *LocalParticipant) updateFromInfo(info domain.ParticipantInfo) {
	p.updateMeta(info)
}

func (p *LocalParticipant) getLocalPublication(sid domain.TrackID) (*LocalTrackPublication, bool) {
	pub, ok := p.GetTrackPublication(sid)
	if !ok {
		return nil, false
	}
	lp, ok := pub.(*LocalTrackPublication)
	return lp, ok
}

// PublishTrack announces the track to the server, attaches it to the
// media transport and kicks off renegotiation.
func (p *LocalParticipant) PublishTrack(track *LocalTrack) (*LocalTrackPublication, error) {
	eng := p.engine
	if !eng.isConnected() {
		return nil, ErrNotConnected
	}
	if err := eng.send(signal.NewAddTrackRequest(track.ID(), track.Name(), track.Kind())); err != nil {
		return nil, fmt.Errorf("publish %s: %w", track.ID(), err)
	}
	sender, err := eng.addLocalTrack(track.local())
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", track.ID(), err)
	}
	track.markOk()

	pub := newLocalTrackPublication(domain.TrackID(track.ID()), track, sender, eng)
	p.addPublication(pub)
	eng.negotiate()

	log.Info().Str("module", "participant").Str("track_sid", track.ID()).Msg("published track")
	return pub, nil
}

// UnpublishTrack withdraws a local publication. The track stops
// receiving writes immediately; the server notice is best-effort.
func (p *LocalParticipant) UnpublishTrack(sid domain.TrackID) error {
	pub, ok := p.removePublication(sid)
	if !ok {
		return ErrTrackNotFound
	}
	lp, ok := pub.(*LocalTrackPublication)
	if !ok {
		return ErrTrackNotFound
	}

	lp.track.markStopped()
	if lp.sender != nil {
		if err := p.engine.removeLocalTrack(lp.sender); err != nil {
			log.Warn().Err(err).Str("module", "participant").Str("track_sid", string(sid)).Msg("remove track")
		}
		if err := lp.sender.Stop(); err != nil {
			log.Warn().Err(err).Str("module", "participant").Str("track_sid", string(sid)).Msg("sender stop")
		}
	}

	err := p.engine.send(signal.NewUnpublishTrackRequest(sid))
	p.engine.negotiate()
	return err
}

// PublishData sends an opaque payload to other participants. An empty
// destination list means everyone in the room.
func (p *LocalParticipant) PublishData(payload []byte, rel domain.Reliability, destinations []domain.ParticipantID) error {
	if !p.engine.isConnected() {
		return ErrNotConnected
	}
	return p.engine.send(signal.NewDataPacketRequest(payload, rel, destinations))
}

// SetTrackSubscriptionPermissions controls which participants may
// subscribe to the local participant's tracks.
func (p *LocalParticipant) SetTrackSubscriptionPermissions(allParticipantsAllowed bool, perms []ParticipantTrackPermission) error {
	wire := make([]signal.TrackPermission, 0, len(perms))
	for _, perm := range perms {
		wire = append(wire, signal.TrackPermission{
			ParticipantSID: perm.ParticipantSID,
			AllTracks:      perm.AllTracks,
			TrackSIDs:      perm.TrackSIDs,
		})
	}
	return p.engine.send(signal.NewSubscriptionPermissionRequest(allParticipantsAllowed, wire))
}

// stopPublications tears down local tracks on terminal disconnect.
func (p *LocalParticipant) stopPublications() {
	for _, pub := range p.TrackPublications() {
		if lp, ok := pub.(*LocalTrackPublication); ok {
			lp.track.markStopped()
			if lp.sender != nil {
				_ = lp.sender.Stop()
			}
		}
	}
}
