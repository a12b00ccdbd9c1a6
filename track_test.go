package roomkit

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomkit/domain"
)

func newAudioTrack(t *testing.T) *LocalTrack {
	t.Helper()
	track, err := NewLocalTrack("mic", domain.TrackKindAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus})
	require.NoError(t, err)
	return track
}

func TestLocalTrackIdentity(t *testing.T) {
	track := newAudioTrack(t)

	assert.Equal(t, "mic", track.Name())
	assert.Equal(t, domain.TrackKindAudio, track.Kind())
	assert.NotEmpty(t, track.ID())

	other := newAudioTrack(t)
	assert.NotEqual(t, track.ID(), other.ID())
}

func TestWriteRTPDroppedUnlessLive(t *testing.T) {
	track := newAudioTrack(t)
	pkt := &rtp.Packet{}

	// Not yet published: writes are swallowed.
	assert.NoError(t, track.WriteRTP(pkt))

	track.markOk()
	assert.NoError(t, track.WriteRTP(pkt))

	track.markMuted()
	assert.NoError(t, track.WriteRTP(pkt))

	track.markStopped()
	assert.NoError(t, track.WriteRTP(pkt))
}

func TestLocalPublicationSetMutedIdempotent(t *testing.T) {
	e, _ := newTestEngine()
	e.state.Store(int32(StateReconnecting)) // send queues instead of failing
	track := newAudioTrack(t)
	pub := newLocalTrackPublication("TR_1", track, nil, e)

	require.NoError(t, pub.SetMuted(true))
	require.NoError(t, pub.SetMuted(true))
	assert.True(t, pub.IsMuted())

	e.mu.Lock()
	queued := len(e.pending)
	e.mu.Unlock()
	assert.Equal(t, 1, queued, "repeated mutes send one request")
}

func TestRemotePublicationDefaults(t *testing.T) {
	e, _ := newTestEngine()
	pub := newRemoteTrackPublication(domain.TrackInfo{SID: "TR_cam", Name: "cam", Kind: domain.TrackKindVideo}, e)

	assert.True(t, pub.IsSubscriptionAllowed())
	assert.Equal(t, domain.StreamStatePaused, pub.StreamState())
	assert.False(t, pub.IsMuted())

	assert.True(t, pub.setStreamState(domain.StreamStateActive))
	assert.False(t, pub.setStreamState(domain.StreamStateActive))
	assert.True(t, pub.setSubscriptionAllowed(false))
	assert.False(t, pub.setSubscriptionAllowed(false))
}
