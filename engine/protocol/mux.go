package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// Frame actions understood by Mux. Handshake actions are exchanged by transports
// before a Mux takes over the connection.
const (
	FrameOpen              = "open"
	FrameMessage           = "message"
	FrameClose             = "close"
	FrameHandshakeRequest  = "handshakeRequest"
	FrameHandshakeResponse = "handshakeResponse"
)

// ErrMuxClosed is returned by operations on a Mux whose connection has ended.
var ErrMuxClosed = errors.New("mux closed")

// Frame is the unit written to a frame connection.
type Frame struct {
	Action   string          `json:"action"`
	Port     string          `json:"port,omitempty"`
	Message  *Message        `json:"message,omitempty"`
	Transfer []string        `json:"transfer,omitempty"`
	Grant    string          `json:"grant,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// HandshakeResponse is the payload of a handshakeResponse frame. Error is set when
// the grant was refused.
type HandshakeResponse struct {
	ContextID    string   `json:"contextId,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// FrameConn is a bidirectional JSON frame connection such as a *websocket.Conn.
type FrameConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Mux carries any number of ports across one frame connection. Ports transferred
// with a message are carried too, so a port handed to the remote side keeps working.
type Mux struct {
	conn    FrameConn
	writeMu sync.Mutex

	mu     sync.Mutex
	ports  map[string]Port
	closed bool

	accept chan Port
	done   chan struct{}
}

// NewMux creates a Mux over conn. Run must be called to start reading frames.
//
// Parameters:
//   - conn: the frame connection
//
// Returns:
//   - *Mux: the mux
func NewMux(conn FrameConn) *Mux {
	return &Mux{
		conn:   conn,
		ports:  make(map[string]Port),
		accept: make(chan Port, 16),
		done:   make(chan struct{}),
	}
}

// Open hands a port to the remote side, which receives its own end from Accept.
// Messages posted on the channel end entangled with p reach the remote port and
// messages posted by the remote side arrive on that end.
//
// Parameters:
//   - p: the local port to carry
//
// Returns:
//   - error: error if the connection has ended
func (m *Mux) Open(p Port) error {
	id, err := m.export(p)
	if err != nil {
		return err
	}
	return m.write(Frame{Action: FrameOpen, Port: id})
}

// Accept waits for a port opened by the remote side.
//
// Parameters:
//   - ctx: bounds the wait
//
// Returns:
//   - Port: the local end of the remote port
//   - error: ErrMuxClosed if the connection ended, or the context error
func (m *Mux) Accept(ctx context.Context) (Port, error) {
	select {
	case p := <-m.accept:
		return p, nil
	case <-m.done:
		return nil, ErrMuxClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run reads frames until the connection fails or ctx ends, then closes every carried port.
//
// Parameters:
//   - ctx: stops the mux when done
//
// Returns:
//   - error: the error that ended the connection
func (m *Mux) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = m.conn.Close() })
	defer stop()
	defer m.shutdown()

	for {
		var frame Frame
		if err := m.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		m.handle(frame)
	}
}

// Close ends the connection.
func (m *Mux) Close() error {
	return m.conn.Close()
}

// Done is closed once Run has returned.
func (m *Mux) Done() <-chan struct{} {
	return m.done
}

func (m *Mux) handle(frame Frame) {
	switch frame.Action {
	case FrameOpen:
		p, err := m.importPort(frame.Port)
		if err != nil {
			return
		}
		select {
		case m.accept <- p:
		default:
			glog.Warningf("[Mux] dropping opened port %s: accept queue full", frame.Port)
			p.Close()
		}
	case FrameMessage:
		target := m.lookup(frame.Port)
		if target == nil || frame.Message == nil {
			glog.V(2).Infof("[Mux] message for unknown port %s", frame.Port)
			return
		}
		transfer := make([]Port, 0, len(frame.Transfer))
		for _, id := range frame.Transfer {
			if p, err := m.importPort(id); err == nil {
				transfer = append(transfer, p)
			}
		}
		if err := target.PostMessage(*frame.Message, transfer...); err != nil {
			glog.V(2).Infof("[Mux] port %s: %v", frame.Port, err)
		}
	case FrameClose:
		if p := m.unregister(frame.Port); p != nil {
			p.Close()
		}
	default:
		glog.V(1).Infof("[Mux] ignoring frame %q", frame.Action)
	}
}

// export registers a local port under its id and forwards its messages to the remote side.
func (m *Mux) export(p Port) (string, error) {
	id := p.ID()
	if err := m.register(id, p); err != nil {
		return "", err
	}
	go m.forward(id, p)
	return id, nil
}

// importPort creates the local representation of a remote port.
func (m *Mux) importPort(id string) (Port, error) {
	local, carried := NewMessageChannel()
	if err := m.register(id, carried); err != nil {
		local.Close()
		return nil, err
	}
	go m.forward(id, carried)
	return local, nil
}

func (m *Mux) forward(id string, p Port) {
	for env := range p.Messages() {
		transfer := make([]string, 0, len(env.Ports))
		for _, tp := range env.Ports {
			tid, err := m.export(tp)
			if err != nil {
				tp.Close()
				continue
			}
			transfer = append(transfer, tid)
		}
		msg := env.Message
		if err := m.write(Frame{Action: FrameMessage, Port: id, Message: &msg, Transfer: transfer}); err != nil {
			glog.V(2).Infof("[Mux] port %s: %v", id, err)
		}
	}
	if m.unregister(id) != nil {
		_ = m.write(Frame{Action: FrameClose, Port: id})
	}
}

func (m *Mux) write(frame Frame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", frame.Action, err)
	}
	return nil
}

func (m *Mux) register(id string, p Port) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMuxClosed
	}
	if _, ok := m.ports[id]; ok {
		return fmt.Errorf("port %s already carried", id)
	}
	m.ports[id] = p
	return nil
}

func (m *Mux) unregister(id string) Port {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ports[id]
	if !ok {
		return nil
	}
	delete(m.ports, id)
	return p
}

func (m *Mux) lookup(id string) Port {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports[id]
}

func (m *Mux) shutdown() {
	m.mu.Lock()
	m.closed = true
	ports := m.ports
	m.ports = make(map[string]Port)
	m.mu.Unlock()

	for _, p := range ports {
		p.Close()
	}
	close(m.done)
}
