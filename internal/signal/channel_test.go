package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomkit/domain"
	"github.com/dkeye/roomkit/internal/config"
)

type recordingHandler struct {
	mu     sync.Mutex
	joins  []*JoinResponse
	leaves []Leave
	mutes  []domain.TrackID
	offers []string
}

func (h *recordingHandler) OnJoin(resp *JoinResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joins = append(h.joins, resp)
}

func (h *recordingHandler) OnLeave(l Leave) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaves = append(h.leaves, l)
}

func (h *recordingHandler) OnMuteChanged(sid domain.TrackID, _ bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mutes = append(h.mutes, sid)
}

func (h *recordingHandler) OnOffer(sdp string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offers = append(h.offers, sdp)
}

func (h *recordingHandler) OnRoomUpdate(domain.RoomInfo)                            {}
func (h *recordingHandler) OnSpeakersChanged([]domain.SpeakerInfo)                  {}
func (h *recordingHandler) OnConnectionQualityChanged([]domain.ConnectionQualityInfo) {}
func (h *recordingHandler) OnSubscriptionPermissionChanged(domain.ParticipantID, domain.TrackID, bool) {
}
func (h *recordingHandler) OnStreamStateChanged([]domain.StreamStateInfo)     {}
func (h *recordingHandler) OnParticipantsChanged([]domain.ParticipantInfo)    {}
func (h *recordingHandler) OnTrackUnpublished(domain.TrackID)                 {}
func (h *recordingHandler) OnAnswer(string)                                   {}
func (h *recordingHandler) OnTrickle(webrtc.ICECandidateInit, SignalTarget)   {}

func (h *recordingHandler) joinCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.joins)
}

func (h *recordingHandler) leaveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.leaves)
}

var upgrader = websocket.Upgrader{}

// signalServer upgrades one connection and hands it to serve.
func signalServer(t *testing.T, serve func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serve(conn, r)
	}))
}

func TestDialRejectsUnsupportedScheme(t *testing.T) {
	_, err := Dial(context.Background(), "ftp://example.com", "tok", false, &recordingHandler{}, config.Default())
	assert.Error(t, err)
}

func TestChannelRoundTrip(t *testing.T) {
	received := make(chan []byte, 1)
	srv := signalServer(t, func(conn *websocket.Conn, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("reconnect"))

		err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_response","room":{"sid":"RM_1","name":"demo"}}`))
		require.NoError(t, err)

		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- data
		}
	})
	defer srv.Close()

	h := &recordingHandler{}
	ch, err := Dial(context.Background(), srv.URL, "tok", false, h, config.Default())
	require.NoError(t, err)
	defer ch.Close()

	require.Eventually(t, func() bool { return h.joinCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.RoomID("RM_1"), h.joins[0].Room.SID)

	require.NoError(t, ch.Send(NewPingRequest()))
	select {
	case data := <-received:
		assert.Contains(t, string(data), `"type":"ping"`)
	case <-time.After(time.Second):
		t.Fatal("server never received the ping")
	}
}

func TestDialResumeSetsReconnectQuery(t *testing.T) {
	resumed := make(chan string, 1)
	srv := signalServer(t, func(conn *websocket.Conn, r *http.Request) {
		resumed <- r.URL.Query().Get("reconnect")
		conn.Close()
	})
	defer srv.Close()

	ch, err := Dial(context.Background(), srv.URL, "tok", true, &recordingHandler{}, config.Default())
	require.NoError(t, err)
	defer ch.Close()

	select {
	case v := <-resumed:
		assert.Equal(t, "1", v)
	case <-time.After(time.Second):
		t.Fatal("server never saw the dial")
	}
}

func TestSyntheticLeaveOnConnectionLoss(t *testing.T) {
	srv := signalServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.Close()
	})
	defer srv.Close()

	h := &recordingHandler{}
	ch, err := Dial(context.Background(), srv.URL, "tok", false, h, config.Default())
	require.NoError(t, err)
	defer ch.Close()

	require.Eventually(t, func() bool { return h.leaveCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, h.leaves[0].CanReconnect)
	assert.Equal(t, domain.ReasonConnectionFailure, h.leaves[0].Reason)
	assert.True(t, ch.IsClosed())

	// Still exactly one after the pumps settle.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.leaveCount())
}

func TestDeliberateCloseEmitsNoLeave(t *testing.T) {
	srv := signalServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, _, _ = conn.ReadMessage() // block until the client hangs up
	})
	defer srv.Close()

	h := &recordingHandler{}
	ch, err := Dial(context.Background(), srv.URL, "tok", false, h, config.Default())
	require.NoError(t, err)

	ch.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.leaveCount())
	assert.ErrorIs(t, ch.Send(NewPingRequest()), ErrChannelClosed)
}

func TestKeepalivePings(t *testing.T) {
	pings := make(chan []byte, 4)
	srv := signalServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			pings <- data
		}
	})
	defer srv.Close()

	cfg := config.Default()
	cfg.PingInterval = 20 * time.Millisecond

	ch, err := Dial(context.Background(), srv.URL, "tok", false, &recordingHandler{}, cfg)
	require.NoError(t, err)
	defer ch.Close()

	select {
	case data := <-pings:
		assert.Contains(t, string(data), `"type":"ping"`)
	case <-time.After(time.Second):
		t.Fatal("no keepalive ping arrived")
	}
}

func TestServerLeaveMarksChannelClosed(t *testing.T) {
	srv := signalServer(t, func(conn *websocket.Conn, _ *http.Request) {
		err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"leave","can_reconnect":false,"reason":"room_deleted"}`))
		require.NoError(t, err)
	})
	defer srv.Close()

	h := &recordingHandler{}
	ch, err := Dial(context.Background(), srv.URL, "tok", false, h, config.Default())
	require.NoError(t, err)
	defer ch.Close()

	require.Eventually(t, func() bool { return h.leaveCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.False(t, h.leaves[0].CanReconnect)
	assert.Equal(t, domain.ReasonRoomDeleted, h.leaves[0].Reason)

	// The explicit leave supersedes the synthetic one from the read
	// error that follows the server hanging up.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.leaveCount())
}
