package roomkit

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/dkeye/roomkit/domain"
)

// RoomObserver receives room state changes. Callbacks run on a single
// dispatch goroutine, in the order the underlying mutations occurred;
// implementations must not block for long. Registering or removing
// observers from inside a callback is safe.
type RoomObserver interface {
	OnParticipantConnected(*RemoteParticipant)
	OnParticipantDisconnected(*RemoteParticipant)
	OnActiveSpeakersChanged([]Participant)
	OnConnectionQualityChanged(Participant, domain.ConnectionQuality)
	OnTrackMuted(Participant, TrackPublication)
	OnTrackUnmuted(Participant, TrackPublication)
	OnTrackStreamStateChanged(*RemoteParticipant, *RemoteTrackPublication, domain.StreamState)
	OnSubscriptionPermissionChanged(*RemoteParticipant, *RemoteTrackPublication, bool)
	OnRoomMetadataChanged(metadata string)
	OnRecordingChanged(recording bool)
	OnReconnecting()
	OnReconnected()
	OnDisconnected(reason domain.DisconnectReason)
}

// NoopObserver implements RoomObserver with empty methods; embed it to
// override only the callbacks you care about.
type NoopObserver struct{}

func (NoopObserver) OnParticipantConnected(*RemoteParticipant)                          {}
func (NoopObserver) OnParticipantDisconnected(*RemoteParticipant)                       {}
func (NoopObserver) OnActiveSpeakersChanged([]Participant)                              {}
func (NoopObserver) OnConnectionQualityChanged(Participant, domain.ConnectionQuality)   {}
func (NoopObserver) OnTrackMuted(Participant, TrackPublication)                         {}
func (NoopObserver) OnTrackUnmuted(Participant, TrackPublication)                       {}
func (NoopObserver) OnTrackStreamStateChanged(*RemoteParticipant, *RemoteTrackPublication, domain.StreamState) {
}
func (NoopObserver) OnSubscriptionPermissionChanged(*RemoteParticipant, *RemoteTrackPublication, bool) {
}
func (NoopObserver) OnRoomMetadataChanged(string)            {}
func (NoopObserver) OnRecordingChanged(bool)                 {}
func (NoopObserver) OnReconnecting()                         {}
func (NoopObserver) OnReconnected()                          {}
func (NoopObserver) OnDisconnected(domain.DisconnectReason)  {}

// observerRegistry is a thread-safe set of observers. Dispatch iterates
// over a snapshot, so add/remove never deadlocks against a callback in
// progress.
type observerRegistry struct {
	mu        sync.RWMutex
	observers []RoomObserver
}

func newObserverRegistry() *observerRegistry {
	return &observerRegistry{}
}

func (r *observerRegistry) add(obs RoomObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, obs)
}

func (r *observerRegistry) remove(obs RoomObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.observers {
		if o == obs {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *observerRegistry) notify(f func(RoomObserver)) {
	r.mu.RLock()
	snapshot := make([]RoomObserver, len(r.observers))
	copy(snapshot, r.observers)
	r.mu.RUnlock()

	for _, obs := range snapshot {
		f(obs)
	}
}

// eventQueue serializes observer dispatch on one goroutine so
// notifications preserve mutation order and never run while a state
// section is held.
type eventQueue struct {
	ch     chan func()
	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

func newEventQueue(size int) *eventQueue {
	q := &eventQueue{
		ch:   make(chan func(), size),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) run() {
	defer close(q.done)
	for {
		select {
		case f := <-q.ch:
			f()
		case <-q.quit:
			// Drain whatever was enqueued before the close.
			for {
				select {
				case f := <-q.ch:
					f()
				default:
					return
				}
			}
		}
	}
}

// enqueue blocks if the queue is full; ordering matters more than
// shedding load here. Events enqueued after close are dropped.
func (q *eventQueue) enqueue(f func()) {
	if q.closed.Load() {
		return
	}
	select {
	case q.ch <- f:
	case <-q.quit:
	}
}

func (q *eventQueue) close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	close(q.quit)
	<-q.done
}
