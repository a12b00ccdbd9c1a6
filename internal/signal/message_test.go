package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomkit/domain"
)

func TestDecodeJoinResponse(t *testing.T) {
	data := []byte(`{
		"type": "join_response",
		"room": {"sid": "RM_1", "name": "standup", "metadata": "m", "active_recording": true},
		"participant": {"sid": "PA_local", "identity": "alice", "state": "joined"},
		"other_participants": [
			{"sid": "PA_b", "identity": "bob", "state": "active"}
		],
		"server_version": "1.8.0",
		"server_region": "eu"
	}`)

	msg, err := decode(data)
	require.NoError(t, err)
	join, ok := msg.(*JoinResponse)
	require.True(t, ok)

	assert.Equal(t, domain.RoomID("RM_1"), join.Room.SID)
	assert.Equal(t, domain.RoomName("standup"), join.Room.Name)
	assert.True(t, join.Room.ActiveRecording)
	require.NotNil(t, join.Participant)
	assert.Equal(t, domain.ParticipantID("PA_local"), join.Participant.SID)
	require.Len(t, join.OtherParticipants, 1)
	assert.Equal(t, "bob", join.OtherParticipants[0].Identity)
	assert.Equal(t, "1.8.0", join.ServerVersion)
}

func TestDecodeSpeakersChanged(t *testing.T) {
	data := []byte(`{"type":"speakers_changed","speakers":[
		{"sid":"PA_a","level":0.8,"active":true},
		{"sid":"PA_b","level":0,"active":false}
	]}`)

	msg, err := decode(data)
	require.NoError(t, err)
	sc, ok := msg.(*SpeakersChanged)
	require.True(t, ok)
	require.Len(t, sc.Speakers, 2)
	assert.InDelta(t, 0.8, sc.Speakers[0].Level, 1e-6)
	assert.True(t, sc.Speakers[0].Active)
	assert.False(t, sc.Speakers[1].Active)
}

func TestDecodeLeave(t *testing.T) {
	data := []byte(`{"type":"leave","can_reconnect":true,"reason":"server_shutdown"}`)

	msg, err := decode(data)
	require.NoError(t, err)
	leave, ok := msg.(*Leave)
	require.True(t, ok)
	assert.True(t, leave.CanReconnect)
	assert.Equal(t, domain.ReasonServerShutdown, leave.Reason)
}

func TestDecodeTrickle(t *testing.T) {
	data := []byte(`{"type":"trickle","candidate":{"candidate":"candidate:1 1 udp 2 127.0.0.1 41000 typ host"},"target":"subscriber"}`)

	msg, err := decode(data)
	require.NoError(t, err)
	tr, ok := msg.(*Trickle)
	require.True(t, ok)
	assert.Equal(t, TargetSubscriber, tr.Target)
	assert.Contains(t, tr.Candidate.Candidate, "udp")
}

func TestDecodeMuteChanged(t *testing.T) {
	msg, err := decode([]byte(`{"type":"mute_changed","track_sid":"TR_1","muted":true}`))
	require.NoError(t, err)
	mc, ok := msg.(*MuteChanged)
	require.True(t, ok)
	assert.Equal(t, domain.TrackID("TR_1"), mc.TrackSID)
	assert.True(t, mc.Muted)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := decode([]byte(`{"type":"telepathy"}`))
	assert.Error(t, err)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := decode([]byte(`{"type": `))
	assert.Error(t, err)
}
