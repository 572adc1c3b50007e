package execution_context

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/facade"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/profiler"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

// State is the lifecycle state of an execution context.
type State int

const (
	StateCreated State = iota
	StateHandshakePending
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateHandshakePending:
		return "handshake-pending"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrTerminated is returned by every operation on a terminated execution context.
var ErrTerminated = errors.New("execution context terminated")

// ScriptError is an uncaught error reported by a sandbox script.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return "script error: " + e.Message
}

// ExecutionContext is the host side of one sandbox: it completes the handshake,
// sends models and scripts, and applies the mutations scripts request to the
// current ModelGraft. Operations issued before the handshake completed wait for it.
type ExecutionContext interface {
	// ID returns the unique id of the context.
	ID() string

	// State returns the lifecycle state.
	State() State

	// Capabilities returns the capabilities granted to the sandbox scripts.
	Capabilities() capability.Set

	// Ready waits for the handshake to complete.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//
	// Returns:
	//   - error: the connection error, ErrTerminated, or the context error
	Ready(ctx context.Context) error

	// ChangeModel makes graft the model scripts see and mutate. A nil graft removes
	// the model. The mutations of the previous model stop being applied.
	//
	// Parameters:
	//   - ctx: bounds the wait for the handshake
	//   - graft: the new model, or nil
	//
	// Returns:
	//   - error: error if the context is not usable
	ChangeModel(ctx context.Context, graft *facade.ModelGraft) error

	// Eval runs source in the sandbox.
	//
	// Parameters:
	//   - ctx: bounds the wait for the handshake
	//   - source: the script source
	//
	// Returns:
	//   - error: error if the context is not usable
	Eval(ctx context.Context, source string) error

	// ImportScript makes the sandbox load and run the script at url.
	//
	// Parameters:
	//   - ctx: bounds the wait for the handshake
	//   - url: a data:, file: or http(s) URL, or a path
	//
	// Returns:
	//   - error: error if the context is not usable
	ImportScript(ctx context.Context, url string) error

	// PostMessage sends data to the message listeners of the sandbox.
	//
	// Parameters:
	//   - ctx: bounds the wait for the handshake
	//   - data: a JSON encodable payload
	//
	// Returns:
	//   - error: error if the context is not usable or data cannot be encoded
	PostMessage(ctx context.Context, data any) error

	// OnMessage registers a callback for messages posted by scripts.
	//
	// Parameters:
	//   - fn: receives the JSON payload
	OnMessage(fn func(data json.RawMessage))

	// OnError registers a callback for uncaught script errors.
	//
	// Parameters:
	//   - fn: receives a *ScriptError
	OnError(fn func(err error))

	// Terminate stops the sandbox, closes every port and fails pending Ready calls.
	// It is idempotent.
	Terminate()
}

// executionContext is the implementation of the ExecutionContext interface.
type executionContext struct {
	id        string
	caps      capability.Set
	transport Transport
	profiler  *profiler.Profiler

	mu          sync.Mutex
	state       State
	global      protocol.Port
	port        protocol.Port
	manipulator *ModelGraftManipulator
	onMessage   []func(json.RawMessage)
	onError     []func(error)
	err         error

	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
}

var _ ExecutionContext = &executionContext{}

// NewExecutionContext creates an execution context and starts connecting its sandbox.
// The in-process worker transport is used unless WithTransport says otherwise.
//
// Parameters:
//   - options: a variadic list of ExecutionContextBuilderOption functions
//
// Returns:
//   - ExecutionContext: the context, in the Created or HandshakePending state
func NewExecutionContext(options ...ExecutionContextBuilderOption) ExecutionContext {
	c := &executionContext{
		id:    ulid.Make().String(),
		state: StateCreated,
		ready: make(chan struct{}),
	}
	for _, option := range options {
		option(c)
	}
	if c.transport == nil {
		c.transport = NewWorkerTransport()
	}
	go c.connect()
	return c
}

func (c *executionContext) ID() string {
	return c.id
}

func (c *executionContext) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *executionContext) Capabilities() capability.Set {
	return c.caps
}

func (c *executionContext) Ready(ctx context.Context) error {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *executionContext) ChangeModel(ctx context.Context, graft *facade.ModelGraft) error {
	port, err := c.await(ctx)
	if err != nil {
		return err
	}

	msg := protocol.Message{Type: protocol.MessageModelChanged}
	var transfer []protocol.Port
	var next *ModelGraftManipulator
	if graft != nil {
		serialized := graft.Model().ToJSON()
		msg.Model = &serialized
		hostEnd, sandboxEnd := protocol.NewMessageChannel()
		next = NewModelGraftManipulator(graft, hostEnd, c.profiler)
		transfer = append(transfer, sandboxEnd)
	}

	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		if next != nil {
			next.Dispose()
		}
		return ErrTerminated
	}
	previous := c.manipulator
	c.manipulator = next
	c.mu.Unlock()

	if previous != nil {
		previous.Dispose()
	}
	if err := port.PostMessage(msg, transfer...); err != nil {
		return fmt.Errorf("failed to send model: %w", err)
	}
	glog.V(1).Infof("[Context] %s: model changed", c.id)
	return nil
}

func (c *executionContext) Eval(ctx context.Context, source string) error {
	return c.ImportScript(ctx, gltf.EncodeDataURI("text/x-go", []byte(source)))
}

func (c *executionContext) ImportScript(ctx context.Context, url string) error {
	port, err := c.await(ctx)
	if err != nil {
		return err
	}
	if err := port.PostMessage(protocol.Message{Type: protocol.MessageImportScript, URL: url}); err != nil {
		return fmt.Errorf("failed to send script: %w", err)
	}
	return nil
}

func (c *executionContext) PostMessage(ctx context.Context, data any) error {
	port, err := c.await(ctx)
	if err != nil {
		return err
	}
	msg, err := protocol.NewUserMessage(data)
	if err != nil {
		return err
	}
	if err := port.PostMessage(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *executionContext) OnMessage(fn func(data json.RawMessage)) {
	c.mu.Lock()
	c.onMessage = append(c.onMessage, fn)
	c.mu.Unlock()
}

func (c *executionContext) OnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

func (c *executionContext) Terminate() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.state = StateTerminated
		if c.err == nil {
			c.err = ErrTerminated
		}
		manipulator, port, global := c.manipulator, c.port, c.global
		c.manipulator = nil
		c.mu.Unlock()

		c.readyOnce.Do(func() { close(c.ready) })
		if manipulator != nil {
			manipulator.Dispose()
		}
		if port != nil {
			port.Close()
		}
		if global != nil {
			global.Close()
		}
		c.transport.Close()
		glog.Infof("[Context] %s: terminated", c.id)
	})
}

// await waits for the handshake and returns the context port.
func (c *executionContext) await(ctx context.Context) (protocol.Port, error) {
	if err := c.Ready(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTerminated {
		return nil, ErrTerminated
	}
	return c.port, nil
}

// connect starts the sandbox and sends the handshake. The context becomes ready
// when the sandbox acknowledges it.
func (c *executionContext) connect() {
	global, err := c.transport.Connect(context.Background(), c.id, c.caps)
	if err != nil {
		c.fail(fmt.Errorf("failed to connect sandbox: %w", err))
		return
	}

	hostEnd, sandboxEnd := protocol.NewMessageChannel()
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		global.Close()
		hostEnd.Close()
		return
	}
	c.state = StateHandshakePending
	c.global, c.port = global, hostEnd
	c.mu.Unlock()

	go c.read(hostEnd)
	if err := global.PostMessage(protocol.Message{Type: protocol.MessageHandshake}, sandboxEnd); err != nil {
		c.fail(fmt.Errorf("failed to send handshake: %w", err))
	}
}

func (c *executionContext) read(port protocol.Port) {
	for env := range port.Messages() {
		switch env.Type {
		case protocol.MessageContextInitialized:
			c.mu.Lock()
			if c.state == StateHandshakePending {
				c.state = StateReady
			}
			c.mu.Unlock()
			c.readyOnce.Do(func() { close(c.ready) })
			glog.Infof("[Context] %s: ready", c.id)
		case protocol.MessageUser:
			c.mu.Lock()
			listeners := slices.Clone(c.onMessage)
			c.mu.Unlock()
			for _, fn := range listeners {
				fn(env.Data)
			}
		case protocol.MessageError:
			err := &ScriptError{Message: env.Error}
			c.mu.Lock()
			listeners := slices.Clone(c.onError)
			c.mu.Unlock()
			if len(listeners) == 0 {
				glog.Errorf("[Context] %s: %v", c.id, err)
			}
			for _, fn := range listeners {
				fn(err)
			}
		default:
			glog.V(1).Infof("[Context] %s: ignoring %s", c.id, env.Type)
		}
	}
	c.fail(fmt.Errorf("sandbox disconnected: %w", protocol.ErrPortClosed))
}

// fail records err as the reason the context is unusable, wakes Ready waiters and
// terminates the context.
func (c *executionContext) fail(err error) {
	c.mu.Lock()
	if c.err == nil && c.state != StateTerminated {
		c.err = err
		glog.Warningf("[Context] %s: %v", c.id, err)
	}
	c.mu.Unlock()
	c.Terminate()
}
