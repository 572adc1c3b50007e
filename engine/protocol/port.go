package protocol

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

// ErrPortClosed is returned when posting on a port whose channel has been closed at either end.
var ErrPortClosed = errors.New("port closed")

// drainTimeout bounds how long a closed port waits for its reader to take each queued message.
const drainTimeout = 100 * time.Millisecond

// Envelope is a delivered message together with the ports transferred alongside it.
type Envelope struct {
	Message
	Ports []Port
}

// Port is one end of a message channel. Messages posted on a port are delivered,
// in order, on the Messages stream of the other end.
type Port interface {
	// ID returns the identifier of this end.
	ID() string

	// PostMessage delivers msg to the other end. Posting never blocks on the receiver.
	//
	// Parameters:
	//   - msg: the message
	//   - transfer: ports handed over to the receiver
	//
	// Returns:
	//   - error: ErrPortClosed if either end was closed
	PostMessage(msg Message, transfer ...Port) error

	// Messages returns the stream of messages posted by the other end. The stream is
	// closed once either end is closed and every message posted before that was delivered.
	//
	// Returns:
	//   - <-chan Envelope: the message stream
	Messages() <-chan Envelope

	// Close closes both ends of the channel. It is idempotent.
	Close()
}

// port is the implementation of the Port interface.
type port struct {
	id   string
	peer *port

	// state is shared by both ends.
	state *channelState

	mu     sync.Mutex
	queue  []Envelope
	notify chan struct{}
	out    chan Envelope
}

// channelState holds the closed flag shared by both ends of a channel.
type channelState struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

var _ Port = &port{}

// NewMessageChannel creates two entangled ports. Delivery is unbounded and in order.
//
// Returns:
//   - Port: the first end
//   - Port: the second end
func NewMessageChannel() (Port, Port) {
	state := &channelState{done: make(chan struct{})}
	a := newPort(state)
	b := newPort(state)
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func newPort(state *channelState) *port {
	return &port{
		id:     ulid.Make().String(),
		state:  state,
		notify: make(chan struct{}, 1),
		out:    make(chan Envelope),
	}
}

func (p *port) ID() string {
	return p.id
}

func (p *port) PostMessage(msg Message, transfer ...Port) error {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if p.state.closed {
		return ErrPortClosed
	}
	p.peer.enqueue(Envelope{Message: msg, Ports: transfer})
	return nil
}

func (p *port) Messages() <-chan Envelope {
	return p.out
}

func (p *port) Close() {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if p.state.closed {
		return
	}
	p.state.closed = true
	close(p.state.done)
}

func (p *port) enqueue(env Envelope) {
	p.mu.Lock()
	p.queue = append(p.queue, env)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// dequeue pops the oldest queued envelope.
func (p *port) dequeue() (Envelope, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return Envelope{}, false
	}
	env := p.queue[0]
	p.queue[0] = Envelope{}
	p.queue = p.queue[1:]
	return env, true
}

// pump moves queued envelopes to the out channel. Once the channel is closed, the
// envelopes still queued are offered to the reader for up to drainTimeout each.
// Envelopes the reader does not take are dropped and their transferred ports closed.
func (p *port) pump() {
	defer close(p.out)
	for {
		env, ok := p.dequeue()
		if !ok {
			select {
			case <-p.notify:
				continue
			case <-p.state.done:
				p.drain()
				return
			}
		}
		select {
		case p.out <- env:
		case <-p.state.done:
			if p.deliverLate(env) {
				p.drain()
			} else {
				p.discard()
			}
			return
		}
	}
}

func (p *port) drain() {
	for {
		env, ok := p.dequeue()
		if !ok {
			return
		}
		if !p.deliverLate(env) {
			p.discard()
			return
		}
	}
}

// deliverLate offers env to the reader. On timeout env is dropped.
func (p *port) deliverLate(env Envelope) bool {
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case p.out <- env:
		return true
	case <-timer.C:
		drop(env)
		return false
	}
}

// discard drops every queued envelope.
func (p *port) discard() {
	for {
		env, ok := p.dequeue()
		if !ok {
			return
		}
		drop(env)
	}
}

func drop(env Envelope) {
	glog.V(2).Infof("[Port] dropping undelivered %s", env.Type)
	for _, transferred := range env.Ports {
		transferred.Close()
	}
}
