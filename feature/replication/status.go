package replication

import (
	"sync"
	"time"
)

// State is the replication lifecycle state.
type State string

const (
	StateOffline    State = "offline"
	StateConnecting State = "connecting"
	StateOnline     State = "online"
	StateSyncing    State = "syncing"
	StateError      State = "error"
)

var knownStates = []string{
	string(StateOffline), string(StateConnecting), string(StateOnline), string(StateSyncing), string(StateError),
}

// Status is the observable replication state.
type Status struct {
	State             State      `json:"state"`
	PendingOperations int        `json:"pendingOperations"`
	LastSyncTime      *time.Time `json:"lastSyncTime"`
	Error             string     `json:"error,omitempty"`
	Scope             *Scope     `json:"scope,omitempty"`
}

// StatusBroker fans the latest status out to subscribers. Each subscriber
// holds at most one undelivered value; a newer status replaces it, so a slow
// reader never blocks the publisher.
type StatusBroker struct {
	mu      sync.Mutex
	current Status
	subs    map[int]chan Status
	next    int
}

// NewStatusBroker creates a broker holding the initial status.
func NewStatusBroker(initial Status) *StatusBroker {
	return &StatusBroker{current: initial, subs: make(map[int]chan Status)}
}

// Current returns the latest status.
func (b *StatusBroker) Current() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe returns a channel primed with the current status and a function
// that unsubscribes and closes it.
func (b *StatusBroker) Subscribe() (<-chan Status, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Status, 1)
	ch <- b.current
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Update applies fn to the current status and publishes the result.
func (b *StatusBroker) Update(fn func(*Status)) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn(&b.current)
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- b.current
	}
	return b.current
}
