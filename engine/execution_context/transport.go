package execution_context

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
	"github.com/Carmen-Shannon/oxy-threedom/engine/sandbox"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// ErrHandshakeRefused is returned when a remote sandbox refuses the capability grant.
var ErrHandshakeRefused = errors.New("sandbox refused handshake")

// Transport starts a sandbox for an execution context and hands back the host end
// of the channel the context handshake is sent on.
type Transport interface {
	// Connect starts the sandbox.
	//
	// Parameters:
	//   - ctx: bounds the connection attempt
	//   - contextID: the id of the execution context
	//   - caps: the capabilities granted to the sandbox scripts
	//
	// Returns:
	//   - protocol.Port: the host end of the sandbox channel
	//   - error: error if the sandbox could not be started
	Connect(ctx context.Context, contextID string, caps capability.Set) (protocol.Port, error)

	// Close stops the sandbox. It is idempotent.
	Close()
}

// WorkerTransport runs the sandbox in process.
type WorkerTransport struct {
	options []sandbox.WorkerBuilderOption

	mu     sync.Mutex
	worker *sandbox.Worker
}

var _ Transport = &WorkerTransport{}

// NewWorkerTransport creates a transport running an in-process sandbox worker.
//
// Parameters:
//   - options: options applied to the worker in addition to the context id and capabilities
//
// Returns:
//   - *WorkerTransport: the transport
func NewWorkerTransport(options ...sandbox.WorkerBuilderOption) *WorkerTransport {
	return &WorkerTransport{options: options}
}

func (t *WorkerTransport) Connect(_ context.Context, contextID string, caps capability.Set) (protocol.Port, error) {
	host, workerEnd := protocol.NewMessageChannel()
	options := append([]sandbox.WorkerBuilderOption{
		sandbox.WithContextID(contextID),
		sandbox.WithCapabilities(caps),
	}, t.options...)

	w, err := sandbox.NewWorker(workerEnd, options...)
	if err != nil {
		host.Close()
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	t.mu.Lock()
	t.worker = w
	t.mu.Unlock()
	return host, nil
}

func (t *WorkerTransport) Close() {
	t.mu.Lock()
	w := t.worker
	t.mu.Unlock()
	if w != nil {
		w.Terminate()
	}
}

// WebSocketTransport runs the sandbox in a remote sandbox server. The context is
// only connected once the server verified the grant, ran its startup script and
// delivered the sandbox port.
type WebSocketTransport struct {
	url      string
	secret   []byte
	grantTTL time.Duration
	dialer   *websocket.Dialer

	mu     sync.Mutex
	mux    *protocol.Mux
	cancel context.CancelFunc
}

var _ Transport = &WebSocketTransport{}

// NewWebSocketTransport creates a transport connecting to the sandbox server at url.
//
// Parameters:
//   - url: the ws:// or wss:// URL of the sandbox server
//   - secret: the grant signing secret shared with the server
//   - grantTTL: how long the signed grant stays valid, 0 for no expiry
//
// Returns:
//   - *WebSocketTransport: the transport
func NewWebSocketTransport(url string, secret []byte, grantTTL time.Duration) *WebSocketTransport {
	return &WebSocketTransport{url: url, secret: secret, grantTTL: grantTTL, dialer: websocket.DefaultDialer}
}

func (t *WebSocketTransport) Connect(ctx context.Context, contextID string, caps capability.Set) (protocol.Port, error) {
	grant, err := capability.SignGrant(t.secret, contextID, caps, t.grantTTL)
	if err != nil {
		return nil, err
	}
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial sandbox server: %w", err)
	}

	if err := conn.WriteJSON(protocol.Frame{Action: protocol.FrameHandshakeRequest, Grant: grant}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send handshake: %w", err)
	}
	var frame protocol.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}
	var resp protocol.HandshakeResponse
	if frame.Action != protocol.FrameHandshakeResponse || json.Unmarshal(frame.Payload, &resp) != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected %q frame", ErrHandshakeRefused, frame.Action)
	}
	if resp.Error != "" {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrHandshakeRefused, resp.Error)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	mux := protocol.NewMux(conn)
	go func() {
		if err := mux.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			glog.V(1).Infof("[Context] %s: sandbox connection ended: %v", contextID, err)
		}
	}()

	port, err := mux.Accept(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to receive sandbox port: %w", err)
	}

	t.mu.Lock()
	t.mux, t.cancel = mux, cancel
	t.mu.Unlock()
	glog.Infof("[Context] %s: connected to sandbox %s as %s", contextID, t.url, resp.ContextID)
	return port, nil
}

func (t *WebSocketTransport) Close() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
