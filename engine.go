package roomkit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/dkeye/roomkit/domain"
	"github.com/dkeye/roomkit/internal/config"
	"github.com/dkeye/roomkit/internal/signal"
)

// MediaTransport is the peer-connection abstraction the engine
// negotiates against. Codec and media concerns live behind it.
type MediaTransport interface {
	Start(ctx context.Context) error
	Close()
	IsClosed() bool
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	AddICECandidate(webrtc.ICECandidateInit) error
	AddLocalTrack(*webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	RemoveTrack(*webrtc.RTPSender) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnClosed(func())
}

type MediaTransportFactory func(webrtc.Configuration) (MediaTransport, error)

// engineObserver is the room's view of engine lifecycle changes.
type engineObserver interface {
	onStateChanged(prev, next ConnectionState)
	onFullReconnect()
	onEngineClosed(reason domain.DisconnectReason)
}

// engine tracks the connection lifecycle and decides how a dropped
// session is recovered. Every reconnect episode is tagged with a
// sequence number; completions from an abandoned episode are dropped.
type engine struct {
	cfg       *config.Config
	obs       engineObserver
	handler   signal.Handler
	newMedia  MediaTransportFactory
	rtcConfig webrtc.Configuration
	onTrack   func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

	state   atomic.Int32
	episode atomic.Uint64

	mu            sync.Mutex
	sig           *signal.Channel
	media         MediaTransport
	url           string
	token         string
	nextPreferred ReconnectMode
	quickFailed   bool
	pending       []signal.Request
	joined        chan struct{}
	cancel        context.CancelFunc
	negotiating   sync.Mutex
}

func newEngine(cfg *config.Config, obs engineObserver, newMedia MediaTransportFactory, rtcConfig webrtc.Configuration) *engine {
	return &engine{
		cfg:       cfg,
		obs:       obs,
		newMedia:  newMedia,
		rtcConfig: rtcConfig,
	}
}

func (e *engine) currentState() ConnectionState { return ConnectionState(e.state.Load()) }
func (e *engine) isConnected() bool             { return e.currentState() == StateConnected }
func (e *engine) currentEpisode() uint64        { return e.episode.Load() }

func (e *engine) stale(ep uint64) bool {
	return e.episode.Load() != ep || e.currentState() == StateDisconnected
}

// executeIfConnected runs action only in the Connected phase; otherwise
// it is silently dropped. Non-blocking conditional dispatch, not a wait.
func (e *engine) executeIfConnected(action func()) bool {
	if !e.isConnected() {
		return false
	}
	action()
	return true
}

func (e *engine) setState(next ConnectionState) {
	prev := ConnectionState(e.state.Swap(int32(next)))
	if prev != next {
		log.Info().Str("module", "engine").Str("from", prev.String()).Str("to", next.String()).Msg("state change")
		e.obs.onStateChanged(prev, next)
	}
}

func (e *engine) setPreferredMode(m ReconnectMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextPreferred = m
}

// connect performs the initial join handshake and blocks until the join
// response has been applied or ctx expires.
func (e *engine) connect(ctx context.Context, url, token string) error {
	if !e.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	e.obs.onStateChanged(StateDisconnected, StateConnecting)
	e.episode.Inc()

	lifeCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.url, e.token = url, token
	e.joined = make(chan struct{})
	joined := e.joined
	e.cancel = cancel
	e.mu.Unlock()

	media, err := e.setupMedia(lifeCtx)
	if err != nil {
		e.abortConnect(cancel)
		return err
	}

	ch, err := signal.Dial(ctx, url, token, false, e.handler, e.cfg)
	if err != nil {
		media.Close()
		e.abortConnect(cancel)
		return err
	}

	e.mu.Lock()
	e.sig = ch
	e.media = media
	e.mu.Unlock()

	select {
	case <-joined:
	case <-ctx.Done():
		ch.Close()
		media.Close()
		e.abortConnect(cancel)
		return ctx.Err()
	}

	e.setState(StateConnected)
	e.flushPending()
	return nil
}

func (e *engine) abortConnect(cancel context.CancelFunc) {
	cancel()
	e.mu.Lock()
	e.sig, e.media, e.cancel, e.joined = nil, nil, nil, nil
	e.mu.Unlock()
	e.setState(StateDisconnected)
}

func (e *engine) setupMedia(ctx context.Context) (MediaTransport, error) {
	media, err := e.newMedia(e.rtcConfig)
	if err != nil {
		return nil, err
	}
	media.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := e.sendDirect(signal.NewTrickleRequest(ci, signal.TargetPublisher)); err != nil {
			log.Debug().Err(err).Str("module", "engine").Msg("trickle send")
		}
	})
	media.OnClosed(func() { e.onTransportFailure() })
	if e.onTrack != nil {
		media.OnTrack(e.onTrack)
	}
	if err := media.Start(ctx); err != nil {
		media.Close()
		return nil, err
	}
	return media, nil
}

// notifyJoined is called by the room once a join response is applied.
func (e *engine) notifyJoined() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.joined != nil {
		close(e.joined)
		e.joined = nil
	}
}

// send is the gate for outbound commands. Retryable requests issued
// while the connection is down are queued and flushed after reconnect.
func (e *engine) send(req signal.Request) error {
	if e.isConnected() {
		e.mu.Lock()
		sig := e.sig
		e.mu.Unlock()
		if sig != nil {
			err := sig.Send(req)
			if errors.Is(err, signal.ErrChannelClosed) && req.Retryable() {
				e.queuePending(req)
				return nil
			}
			return err
		}
	}
	if req.Retryable() {
		e.queuePending(req)
		return nil
	}
	return ErrNotConnected
}

// sendDirect bypasses the connected gate; used for negotiation traffic
// that must flow while a session is still being established.
func (e *engine) sendDirect(req signal.Request) error {
	e.mu.Lock()
	sig := e.sig
	e.mu.Unlock()
	if sig == nil {
		return ErrNotConnected
	}
	return sig.Send(req)
}

func (e *engine) queuePending(req signal.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, req)
}

func (e *engine) flushPending() {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, req := range pending {
		if err := e.sendDirect(req); err != nil {
			log.Warn().Err(err).Str("module", "engine").Str("type", req.MessageType()).Msg("pending request flush")
		}
	}
}

func (e *engine) addLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	e.mu.Lock()
	media := e.media
	e.mu.Unlock()
	if media == nil {
		return nil, ErrNotConnected
	}
	return media.AddLocalTrack(track)
}

func (e *engine) removeLocalTrack(sender *webrtc.RTPSender) error {
	e.mu.Lock()
	media := e.media
	e.mu.Unlock()
	if media == nil {
		return ErrNotConnected
	}
	return media.RemoveTrack(sender)
}

// negotiate sends a fresh offer in the background. Stale completions
// (episode moved on) are discarded.
func (e *engine) negotiate() {
	ep := e.currentEpisode()
	go func() {
		e.negotiating.Lock()
		defer e.negotiating.Unlock()
		if e.stale(ep) {
			return
		}
		e.mu.Lock()
		media := e.media
		e.mu.Unlock()
		if media == nil {
			return
		}
		offer, err := media.CreateAndSetOffer()
		if err != nil {
			if !e.stale(ep) {
				e.onNegotiationFailure(err)
			}
			return
		}
		if e.stale(ep) {
			return
		}
		if err := e.sendDirect(signal.NewOfferRequest(offer.SDP)); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("send offer")
		}
	}()
}

// onLeave handles a server leave notice, real or synthetic.
func (e *engine) onLeave(l signal.Leave) {
	log.Info().Str("module", "engine").Bool("can_reconnect", l.CanReconnect).Str("reason", string(l.Reason)).Msg("leave")
	if !l.CanReconnect {
		// Server says this session is not recoverable; any future
		// attempt must be a fresh join.
		e.setPreferredMode(ReconnectModeFull)
		e.close(l.Reason)
		return
	}
	e.startReconnect()
}

func (e *engine) onTransportFailure() {
	if e.currentState() != StateConnected {
		return
	}
	log.Warn().Str("module", "engine").Msg("media transport failed")
	e.startReconnect()
}

// onNegotiationFailure forces a full rebuild; renegotiating against a
// transport in an unknown state is not worth it.
func (e *engine) onNegotiationFailure(err error) {
	log.Warn().Err(err).Str("module", "engine").Msg("renegotiation failed")
	e.setPreferredMode(ReconnectModeFull)
	e.startReconnect()
}

func (e *engine) onRemoteOffer(sdp string) {
	e.mu.Lock()
	media := e.media
	e.mu.Unlock()
	if media == nil {
		return
	}
	answer, err := media.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		e.onNegotiationFailure(err)
		return
	}
	if err := e.sendDirect(signal.NewAnswerRequest(answer.SDP)); err != nil {
		log.Warn().Err(err).Str("module", "engine").Msg("send answer")
	}
}

func (e *engine) onRemoteAnswer(sdp string) {
	e.mu.Lock()
	media := e.media
	e.mu.Unlock()
	if media == nil {
		return
	}
	if err := media.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		e.onNegotiationFailure(err)
	}
}

func (e *engine) onRemoteTrickle(ci webrtc.ICECandidateInit, _ signal.SignalTarget) {
	e.mu.Lock()
	media := e.media
	e.mu.Unlock()
	if media == nil {
		return
	}
	if err := media.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "engine").Msg("add ice candidate")
	}
}

// startReconnect begins a new recovery episode unless one is already
// running or the engine is already torn down.
func (e *engine) startReconnect() {
	for {
		cur := e.currentState()
		if cur == StateDisconnected || cur == StateReconnecting {
			return
		}
		if e.state.CompareAndSwap(int32(cur), int32(StateReconnecting)) {
			e.obs.onStateChanged(cur, StateReconnecting)
			break
		}
	}
	ep := e.episode.Inc()
	log.Info().Str("module", "engine").Uint64("episode", ep).Msg("reconnecting")
	go e.reconnectLoop(ep)
}

func (e *engine) reconnectLoop(ep uint64) {
	e.mu.Lock()
	mode := ReconnectModeQuick
	if e.nextPreferred == ReconnectModeFull || e.quickFailed {
		mode = ReconnectModeFull
	}
	e.nextPreferred = ReconnectModeQuick // consumed
	url, token := e.url, e.token
	e.mu.Unlock()

	if mode == ReconnectModeQuick {
		if e.attempt(ep, e.cfg.QuickAttempts, func(ctx context.Context) error {
			return e.tryQuick(ctx, url, token)
		}) {
			e.finishReconnect(ep, ReconnectModeQuick)
			return
		}
		if e.stale(ep) {
			return
		}
		e.mu.Lock()
		e.quickFailed = true
		e.mu.Unlock()
		log.Warn().Str("module", "engine").Msg("quick reconnect exhausted, falling back to full")
	}

	if e.attempt(ep, e.cfg.FullAttempts, func(ctx context.Context) error {
		return e.tryFull(ctx, url, token)
	}) {
		e.finishReconnect(ep, ReconnectModeFull)
		return
	}
	if e.stale(ep) {
		return
	}
	log.Error().Err(ErrReconnectFailed).Str("module", "engine").Msg("giving up")
	e.close(domain.ReasonConnectionFailure)
}

func (e *engine) attempt(ep uint64, max int, try func(context.Context) error) bool {
	for i := 0; i < max; i++ {
		if e.stale(ep) {
			return false
		}
		time.Sleep(e.backoff(i))
		if e.stale(ep) {
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.NegotiateTimeout)
		err := try(ctx)
		cancel()
		if err == nil {
			return true
		}
		log.Warn().Err(err).Str("module", "engine").Int("attempt", i+1).Msg("reconnect attempt failed")
	}
	return false
}

func (e *engine) backoff(attempt int) time.Duration {
	d := e.cfg.BackoffBase << uint(attempt)
	if d > e.cfg.BackoffMax || d <= 0 {
		d = e.cfg.BackoffMax
	}
	return d
}

// tryQuick resumes the existing session: new signal connection spliced
// into the session, transport renegotiated, no join handshake.
func (e *engine) tryQuick(ctx context.Context, url, token string) error {
	ch, err := signal.Dial(ctx, url, token, true, e.handler, e.cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	old := e.sig
	e.sig = ch
	media := e.media
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}

	if media == nil || media.IsClosed() {
		ch.Close()
		return errors.New("media transport gone, quick resume impossible")
	}
	offer, err := media.CreateAndSetOffer()
	if err != nil {
		ch.Close()
		return err
	}
	return ch.Send(signal.NewOfferRequest(offer.SDP))
}

// tryFull rebuilds the session from scratch: state wiped, fresh media
// transport, new join handshake.
func (e *engine) tryFull(ctx context.Context, url, token string) error {
	e.obs.onFullReconnect()

	e.mu.Lock()
	oldSig, oldMedia := e.sig, e.media
	e.sig, e.media = nil, nil
	oldCancel := e.cancel
	e.mu.Unlock()
	if oldSig != nil {
		oldSig.Close()
	}
	if oldMedia != nil {
		oldMedia.Close()
	}
	if oldCancel != nil {
		oldCancel()
	}

	lifeCtx, cancel := context.WithCancel(context.Background())
	media, err := e.setupMedia(lifeCtx)
	if err != nil {
		cancel()
		return err
	}

	e.mu.Lock()
	e.joined = make(chan struct{})
	joined := e.joined
	e.cancel = cancel
	e.mu.Unlock()

	ch, err := signal.Dial(ctx, url, token, false, e.handler, e.cfg)
	if err != nil {
		media.Close()
		cancel()
		return err
	}

	e.mu.Lock()
	e.sig = ch
	e.media = media
	e.mu.Unlock()

	select {
	case <-joined:
		return nil
	case <-ctx.Done():
		ch.Close()
		return ctx.Err()
	}
}

func (e *engine) finishReconnect(ep uint64, mode ReconnectMode) {
	if e.stale(ep) {
		return
	}
	e.mu.Lock()
	e.quickFailed = false
	e.mu.Unlock()
	log.Info().Str("module", "engine").Str("mode", mode.String()).Msg("reconnected")
	e.setState(StateConnected)
	e.flushPending()
}

// close drives straight to Disconnected and runs full session cleanup.
func (e *engine) close(reason domain.DisconnectReason) {
	prev := ConnectionState(e.state.Swap(int32(StateDisconnected)))
	if prev == StateDisconnected {
		return
	}
	e.episode.Inc() // cancels any in-flight episode

	e.mu.Lock()
	sig, media := e.sig, e.media
	e.sig, e.media = nil, nil
	cancel := e.cancel
	e.cancel = nil
	e.pending = nil
	e.quickFailed = false
	e.joined = nil
	e.mu.Unlock()

	if sig != nil {
		sig.Close()
	}
	if media != nil {
		media.Close()
	}
	if cancel != nil {
		cancel()
	}

	log.Info().Str("module", "engine").Str("reason", string(reason)).Msg("closed")
	e.obs.onStateChanged(prev, StateDisconnected)
	e.obs.onEngineClosed(reason)
}
