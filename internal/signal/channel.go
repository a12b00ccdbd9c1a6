// Package signal maintains the duplex control-plane channel to the
// signaling server and translates between wire messages and typed events.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/roomkit/domain"
	"github.com/dkeye/roomkit/internal/config"
)

var (
	ErrChannelClosed = errors.New("signal channel closed")
	ErrBackpressure  = errors.New("backpressure")
)

// Handler receives decoded inbound events. All methods are invoked from
// a single goroutine, in arrival order.
type Handler interface {
	OnJoin(*JoinResponse)
	OnRoomUpdate(domain.RoomInfo)
	OnSpeakersChanged([]domain.SpeakerInfo)
	OnConnectionQualityChanged([]domain.ConnectionQualityInfo)
	OnMuteChanged(domain.TrackID, bool)
	OnSubscriptionPermissionChanged(domain.ParticipantID, domain.TrackID, bool)
	OnStreamStateChanged([]domain.StreamStateInfo)
	OnParticipantsChanged([]domain.ParticipantInfo)
	OnTrackUnpublished(domain.TrackID)
	OnLeave(Leave)
	OnOffer(sdp string)
	OnAnswer(sdp string)
	OnTrickle(candidate webrtc.ICECandidateInit, target SignalTarget)
}

// Channel is one websocket connection to the signaling server. It lives
// for a single connection episode; reconnecting means dialing a new one.
type Channel struct {
	conn    *websocket.Conn
	send    chan []byte
	handler Handler
	cfg     *config.Config

	closed atomic.Bool
	cancel context.CancelFunc
	g      *errgroup.Group
}

// Dial connects to the signaling server and starts the read/write pumps.
// With resume set, the server is asked to splice this connection into the
// existing session instead of starting a new one.
func Dial(ctx context.Context, rawURL, token string, resume bool, h Handler, cfg *config.Config) (*Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("signal dial: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("signal dial: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	if resume {
		q.Set("reconnect", "1")
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("signal dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("signal dial: %w", err)
	}
	conn.SetReadLimit(cfg.ReadLimit)

	c := &Channel{
		conn:    conn,
		send:    make(chan []byte, cfg.SendQueueSize),
		handler: h,
		cfg:     cfg,
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.g, pumpCtx = errgroup.WithContext(pumpCtx)
	c.g.Go(func() error { return c.writePump(pumpCtx) })
	c.g.Go(func() error { return c.readPump(pumpCtx) })

	log.Info().Str("module", "signal").Str("url", u.Host).Bool("resume", resume).Msg("channel connected")
	return c, nil
}

// Send enqueues an outbound request. It fails with ErrChannelClosed once
// the channel left the connected phase; queueing retryable requests
// across reconnects is the engine's concern, not the channel's.
func (c *Channel) Send(req Request) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.MessageType(), err)
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close tears the channel down deliberately, without a synthetic leave.
func (c *Channel) Close() {
	c.closed.Store(true)
	c.cancel()
	_ = c.conn.Close()
}

func (c *Channel) IsClosed() bool { return c.closed.Load() }

func (c *Channel) writePump(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			data, err := json.Marshal(NewPingRequest())
			if err != nil {
				return err
			}
			if err := c.write(data); err != nil {
				return err
			}
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return err
			}
		}
	}
}

func (c *Channel) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
		return err
	}
	return nil
}

func (c *Channel) readPump(ctx context.Context) error {
	defer c.cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// One uniform "lost connection" signal for upstream logic,
			// unless the close was deliberate.
			if c.closed.CompareAndSwap(false, true) {
				log.Warn().Err(err).Str("module", "signal").Msg("readPump read error")
				_ = c.conn.Close()
				c.handler.OnLeave(Leave{
					Type:         msgLeave,
					CanReconnect: true,
					Reason:       domain.ReasonConnectionFailure,
				})
			}
			return err
		}
		c.dispatch(data)
	}
}

// dispatch decodes one inbound message and hands it to the handler.
// Malformed or unknown messages are dropped with a diagnostic; protocol
// robustness wins over strictness here.
func (c *Channel) dispatch(data []byte) {
	msg, err := decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("dropping bad signal message")
		return
	}

	switch m := msg.(type) {
	case *JoinResponse:
		c.handler.OnJoin(m)
	case *RoomUpdate:
		c.handler.OnRoomUpdate(m.Room)
	case *SpeakersChanged:
		c.handler.OnSpeakersChanged(m.Speakers)
	case *ConnectionQualityChanged:
		c.handler.OnConnectionQualityChanged(m.Updates)
	case *MuteChanged:
		c.handler.OnMuteChanged(m.TrackSID, m.Muted)
	case *SubscriptionPermissionChanged:
		c.handler.OnSubscriptionPermissionChanged(m.ParticipantSID, m.TrackSID, m.Allowed)
	case *StreamStateChanged:
		c.handler.OnStreamStateChanged(m.Updates)
	case *ParticipantsChanged:
		c.handler.OnParticipantsChanged(m.Participants)
	case *TrackUnpublished:
		c.handler.OnTrackUnpublished(m.TrackSID)
	case *Leave:
		// Server-initiated leave; mark the channel dead so the read
		// error that follows does not emit a second leave.
		c.closed.Store(true)
		c.handler.OnLeave(*m)
	case *SessionDescription:
		if m.Type == msgOffer {
			c.handler.OnOffer(m.SDP)
		} else {
			c.handler.OnAnswer(m.SDP)
		}
	case *Trickle:
		c.handler.OnTrickle(m.Candidate, m.Target)
	case *Pong:
	}
}
