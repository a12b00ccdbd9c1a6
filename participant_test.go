package roomkit

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomkit/domain"
)

func TestPublishRequiresConnection(t *testing.T) {
	e, _ := newTestEngine()
	p := newLocalParticipant(domain.ParticipantInfo{SID: "PA_local", Identity: "me"}, e)

	_, err := p.PublishTrack(newAudioTrack(t))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestUnpublishUnknownTrack(t *testing.T) {
	e, _ := newTestEngine()
	p := newLocalParticipant(domain.ParticipantInfo{SID: "PA_local", Identity: "me"}, e)

	assert.ErrorIs(t, p.UnpublishTrack("TR_ghost"), ErrTrackNotFound)
}

func TestUnpublishRemovesSenderFromTransport(t *testing.T) {
	e, _ := newTestEngine()
	media := &fakeMedia{}
	e.media = media
	p := newLocalParticipant(domain.ParticipantInfo{SID: "PA_local", Identity: "me"}, e)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	track := newAudioTrack(t)
	sender, err := pc.AddTrack(track.local())
	require.NoError(t, err)
	p.addPublication(newLocalTrackPublication("TR_mic", track, sender, e))

	require.NoError(t, p.UnpublishTrack("TR_mic"))
	assert.Equal(t, int32(1), media.removed.Load())
	_, found := p.GetTrackPublication("TR_mic")
	assert.False(t, found)
}

func TestRemoteParticipantTrackSync(t *testing.T) {
	e, _ := newTestEngine()
	p := newRemoteParticipant(domain.ParticipantInfo{
		SID:      "PA_b",
		Identity: "bob",
		State:    domain.ParticipantActive,
		Tracks: []domain.TrackInfo{
			{SID: "TR_mic", Name: "mic", Kind: domain.TrackKindAudio},
			{SID: "TR_cam", Name: "cam", Kind: domain.TrackKindVideo},
		},
	}, e)

	assert.Len(t, p.TrackPublications(), 2)
	first, found := p.GetRemoteTrackPublication("TR_cam")
	require.True(t, found)

	// The camera drops out of the advertised list; the mic is renamed.
	p.updateFromInfo(domain.ParticipantInfo{
		SID:      "PA_b",
		Identity: "bob",
		State:    domain.ParticipantActive,
		Tracks:   []domain.TrackInfo{{SID: "TR_mic", Name: "headset", Kind: domain.TrackKindAudio}},
	})

	assert.Len(t, p.TrackPublications(), 1)
	_, found = p.GetRemoteTrackPublication("TR_cam")
	assert.False(t, found)
	mic, found := p.GetRemoteTrackPublication("TR_mic")
	require.True(t, found)
	assert.Equal(t, "headset", mic.Name())
	assert.NotNil(t, first)
}

func TestUpdateMetaKeepsIdentityInPlace(t *testing.T) {
	e, _ := newTestEngine()
	p := newRemoteParticipant(domain.ParticipantInfo{SID: "PA_b", Identity: "bob"}, e)

	ref := Participant(p)
	p.updateFromInfo(domain.ParticipantInfo{SID: "PA_b", Identity: "bob", Name: "Bob", Metadata: "lead"})

	assert.Equal(t, "Bob", ref.Name())
	assert.Equal(t, "lead", ref.Metadata())
	assert.Equal(t, domain.ParticipantID("PA_b"), ref.SID())
}

func TestSetQualityReportsChanges(t *testing.T) {
	e, _ := newTestEngine()
	p := newRemoteParticipant(domain.ParticipantInfo{SID: "PA_b", Identity: "bob"}, e)

	assert.Equal(t, domain.QualityUnknown, p.ConnectionQuality())
	assert.True(t, p.setQuality(domain.QualityGood))
	assert.False(t, p.setQuality(domain.QualityGood))
	assert.Equal(t, domain.QualityGood, p.ConnectionQuality())
}
