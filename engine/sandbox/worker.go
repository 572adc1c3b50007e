package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"github.com/traefik/yaegi/interp"
)

// Event names scripts can listen for.
const (
	EventModelChange = "model-change"
	EventMessage     = "message"
)

const taskQueueSize = 256

var (
	// ErrNotConnected is returned by PostMessage before the handshake delivered the context port.
	ErrNotConnected = errors.New("sandbox not connected")

	errUnknownEvent = errors.New("unknown event type")
)

// Event is passed to script listeners. Data holds the decoded payload of a message
// event; PreviousModel and Model are set for model-change events.
type Event struct {
	Type          string
	Data          any
	PreviousModel *Model
	Model         *Model
}

// Worker hosts the scripts of one execution context: one interpreter whose scope
// is fixed before any script runs, and one event loop that handles messages,
// script imports and listener calls one at a time.
type Worker struct {
	id        string
	caps      capability.Set
	timeout   time.Duration
	startup   string
	scriptDir string
	client    *http.Client
	output    io.Writer

	ctx    context.Context
	cancel context.CancelFunc
	global protocol.Port
	interp *interp.Interpreter
	tasks  chan func()
	evals  int

	mu        sync.Mutex
	port      protocol.Port
	kernel    *ModelKernel
	listeners map[string][]func(Event)

	stopOnce sync.Once
	done     chan struct{}
}

// NewWorker creates a worker listening on global, the worker end of the channel the
// host sends its handshake on. The startup script, if any, runs before NewWorker returns.
//
// Parameters:
//   - global: the worker end of the host channel
//   - options: a variadic list of WorkerBuilderOption functions
//
// Returns:
//   - *Worker: the running worker
//   - error: error if the scope cannot be built or the startup script fails
func NewWorker(global protocol.Port, options ...WorkerBuilderOption) (*Worker, error) {
	w := &Worker{
		id:        ulid.Make().String(),
		timeout:   DefaultMutationTimeout,
		client:    &http.Client{Timeout: 30 * time.Second},
		global:    global,
		tasks:     make(chan func(), taskQueueSize),
		listeners: make(map[string][]func(Event)),
		done:      make(chan struct{}),
	}
	for _, option := range options {
		option(w)
	}
	if w.output == nil {
		w.output = logWriter{id: w.id}
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.interp = interp.New(interp.Options{Stdout: w.output, Stderr: w.output})
	if err := w.interp.Use(w.scope()); err != nil {
		w.cancel()
		return nil, fmt.Errorf("failed to build sandbox scope: %w", err)
	}
	w.interp.ImportUsed()

	if w.startup != "" {
		if err := w.eval(w.startup); err != nil {
			w.cancel()
			return nil, fmt.Errorf("failed to run startup script: %w", err)
		}
	}

	glog.Infof("[Sandbox] worker %s started with capabilities [%s]", w.id, w.caps)
	go w.loop()
	go w.read(global)
	return w, nil
}

// ID returns the id of the execution context the worker serves.
func (w *Worker) ID() string {
	return w.id
}

// Capabilities returns the capabilities granted to the scripts of the worker.
func (w *Worker) Capabilities() capability.Set {
	return w.caps
}

// Done is closed once the worker has stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Terminate stops the event loop, aborts running scripts, rejects in-flight
// mutations and closes every port of the worker. It is idempotent.
func (w *Worker) Terminate() {
	w.stopOnce.Do(func() {
		w.cancel()
		w.mu.Lock()
		kernel, port := w.kernel, w.port
		w.kernel = nil
		w.mu.Unlock()

		if kernel != nil {
			kernel.Deactivate()
		}
		if port != nil {
			port.Close()
		}
		w.global.Close()
		glog.Infof("[Sandbox] worker %s terminated", w.id)
	})
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case task := <-w.tasks:
			w.run(task)
		case <-w.ctx.Done():
			return
		}
	}
}

// run executes one task of the event loop. A panic is reported as a script error.
func (w *Worker) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			w.reportError(fmt.Errorf("panic: %v", r))
		}
	}()
	task()
}

// read queues every message of p on the event loop. The worker stops when p ends.
func (w *Worker) read(p protocol.Port) {
	defer w.Terminate()
	for env := range p.Messages() {
		select {
		case w.tasks <- func() { w.handle(env) }:
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) handle(env protocol.Envelope) {
	glog.V(2).Infof("[Sandbox] %s received %s", w.id, env.Type)
	switch env.Type {
	case protocol.MessageHandshake:
		w.handshake(env)
	case protocol.MessageModelChanged:
		w.changeModel(env)
	case protocol.MessageImportScript:
		w.importScript(env.URL)
	case protocol.MessageUser:
		var data any
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				w.reportError(fmt.Errorf("failed to decode message data: %w", err))
				return
			}
		}
		w.dispatch(Event{Type: EventMessage, Data: data})
	default:
		glog.V(1).Infof("[Sandbox] %s ignoring %s", w.id, env.Type)
		closePorts(env.Ports)
	}
}

func (w *Worker) handshake(env protocol.Envelope) {
	if len(env.Ports) == 0 {
		glog.Warningf("[Sandbox] %s: handshake without a context port", w.id)
		return
	}
	w.mu.Lock()
	if w.port != nil {
		w.mu.Unlock()
		glog.Warningf("[Sandbox] %s: ignoring repeated handshake", w.id)
		closePorts(env.Ports)
		return
	}
	w.port = env.Ports[0]
	w.mu.Unlock()
	closePorts(env.Ports[1:])

	go w.read(env.Ports[0])
	if err := env.Ports[0].PostMessage(protocol.Message{Type: protocol.MessageContextInitialized}); err != nil {
		glog.Warningf("[Sandbox] %s: failed to acknowledge handshake: %v", w.id, err)
	}
}

// changeModel swaps the model kernel and fires model-change. A change from no
// model to no model is not an event.
func (w *Worker) changeModel(env protocol.Envelope) {
	w.mu.Lock()
	previous := w.kernel
	w.mu.Unlock()

	if previous == nil && env.Model == nil {
		closePorts(env.Ports)
		return
	}
	if previous != nil {
		previous.Deactivate()
	}

	var next *ModelKernel
	if env.Model != nil {
		if len(env.Ports) == 0 {
			w.reportError(errors.New("model-changed without a mutation port"))
		} else {
			next = NewModelKernel(w.ctx, env.Ports[0], *env.Model,
				WithMutationTimeout(w.timeout), WithKernelCapabilities(w.caps))
			closePorts(env.Ports[1:])
		}
	} else {
		closePorts(env.Ports)
	}

	w.mu.Lock()
	w.kernel = next
	w.mu.Unlock()

	event := Event{Type: EventModelChange}
	if previous != nil {
		event.PreviousModel = previous.Model()
	}
	if next != nil {
		event.Model = next.Model()
	}
	w.dispatch(event)
}

func (w *Worker) importScript(location string) {
	source, err := w.resolve(location)
	if err != nil {
		w.reportError(fmt.Errorf("failed to import %s: %w", location, err))
		return
	}
	if err := w.eval(source); err != nil {
		w.reportError(err)
	}
}

// resolve reads a script from a data: URL, an http(s) URL, a file: URL or a path.
func (w *Worker) resolve(location string) (string, error) {
	switch {
	case strings.HasPrefix(location, "data:"):
		data, _, err := gltf.DecodeDataURI(location)
		return string(data), err
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		data, err := w.get(location)
		return string(data), err
	case strings.HasPrefix(location, "file:"):
		u, err := url.Parse(location)
		if err != nil {
			return "", err
		}
		location = u.Path
	}
	if !filepath.IsAbs(location) && w.scriptDir != "" {
		location = filepath.Join(w.scriptDir, location)
	}
	data, err := os.ReadFile(location)
	return string(data), err
}

func (w *Worker) get(location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(w.ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("GET %s: %s", location, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// eval runs a script. A full source file is evaluated as is; anything else is
// wrapped in a function of its own and called.
func (w *Worker) eval(source string) error {
	if strings.HasPrefix(strings.TrimSpace(source), "package ") {
		_, err := w.interp.EvalWithContext(w.ctx, source)
		return err
	}
	w.evals++
	name := fmt.Sprintf("script%d", w.evals)
	if _, err := w.interp.EvalWithContext(w.ctx, fmt.Sprintf("func %s() {\n%s\n}", name, source)); err != nil {
		return err
	}
	_, err := w.interp.EvalWithContext(w.ctx, name+"()")
	return err
}

// dispatch calls the listeners of event.Type in registration order.
func (w *Worker) dispatch(event Event) {
	w.mu.Lock()
	listeners := slices.Clone(w.listeners[event.Type])
	w.mu.Unlock()

	for _, fn := range listeners {
		w.run(func() { fn(event) })
	}
}

func (w *Worker) reportError(err error) {
	glog.Errorf("[Sandbox] %s: %v", w.id, err)
	w.mu.Lock()
	port := w.port
	w.mu.Unlock()
	if port == nil {
		return
	}
	if perr := port.PostMessage(protocol.Message{Type: protocol.MessageError, Error: err.Error()}); perr != nil {
		glog.V(1).Infof("[Sandbox] %s: failed to report error: %v", w.id, perr)
	}
}

func closePorts(ports []protocol.Port) {
	for _, p := range ports {
		p.Close()
	}
}

// logWriter sends interpreter output to the log, one entry per write.
type logWriter struct {
	id string
}

func (l logWriter) Write(p []byte) (int, error) {
	glog.Infof("[Sandbox] %s: %s", l.id, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
