package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

var errUnexpectedFrame = errors.New("expected a handshakeRequest frame")

// Server hosts workers for remote execution contexts over websocket connections.
// Each connection starts with a handshakeRequest carrying a signed capability
// grant; the worker it gets is scoped to the verified grant and has run the
// startup script by the time the handshakeResponse is sent.
type Server struct {
	secret        []byte
	startup       string
	workerOptions []WorkerBuilderOption
	upgrader      websocket.Upgrader

	mu      sync.Mutex
	workers map[string]*Worker
}

var _ http.Handler = &Server{}

// NewServer creates a Server verifying grants with secret.
//
// Parameters:
//   - secret: the grant signing secret shared with hosts
//   - options: a variadic list of ServerBuilderOption functions
//
// Returns:
//   - *Server: the server
func NewServer(secret []byte, options ...ServerBuilderOption) *Server {
	s := &Server{
		secret: secret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		workers: make(map[string]*Worker),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[Sandbox] failed to upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	s.serve(r.Context(), conn)
}

// Active returns the number of workers currently hosted.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Shutdown terminates every hosted worker.
func (s *Server) Shutdown() {
	s.mu.Lock()
	workers := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()
	for _, w := range workers {
		w.Terminate()
	}
}

func (s *Server) serve(ctx context.Context, conn protocol.FrameConn) {
	var req protocol.Frame
	if err := conn.ReadJSON(&req); err != nil {
		glog.Warningf("[Sandbox] failed to read handshake: %v", err)
		return
	}
	if req.Action != protocol.FrameHandshakeRequest {
		s.refuse(conn, errUnexpectedFrame)
		return
	}
	grant, err := capability.VerifyGrant(s.secret, req.Grant)
	if err != nil {
		s.refuse(conn, err)
		return
	}

	global, carried := protocol.NewMessageChannel()
	options := append([]WorkerBuilderOption{
		WithCapabilities(grant.Capabilities),
		WithContextID(grant.ContextID),
		WithStartupScript(s.startup),
	}, s.workerOptions...)
	worker, err := NewWorker(global, options...)
	if err != nil {
		carried.Close()
		s.refuse(conn, err)
		return
	}
	s.track(worker)
	defer s.untrack(worker)
	defer worker.Terminate()

	names := make([]string, 0)
	for _, c := range grant.Capabilities.List() {
		names = append(names, string(c))
	}
	if err := s.respond(conn, protocol.HandshakeResponse{ContextID: worker.ID(), Capabilities: names}); err != nil {
		glog.Warningf("[Sandbox] failed to answer handshake of %s: %v", worker.ID(), err)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	mux := protocol.NewMux(conn)
	if err := mux.Open(carried); err != nil {
		glog.Warningf("[Sandbox] failed to open port for %s: %v", worker.ID(), err)
		return
	}

	go func() {
		select {
		case <-worker.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	if err := mux.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		glog.V(1).Infof("[Sandbox] connection of %s ended: %v", worker.ID(), err)
	}
}

func (s *Server) refuse(conn protocol.FrameConn, err error) {
	glog.Warningf("[Sandbox] refusing handshake: %v", err)
	_ = s.respond(conn, protocol.HandshakeResponse{Error: err.Error()})
}

func (s *Server) respond(conn protocol.FrameConn, resp protocol.HandshakeResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return conn.WriteJSON(protocol.Frame{Action: protocol.FrameHandshakeResponse, Payload: payload})
}

func (s *Server) track(w *Worker) {
	s.mu.Lock()
	s.workers[w.ID()] = w
	s.mu.Unlock()
}

func (s *Server) untrack(w *Worker) {
	s.mu.Lock()
	delete(s.workers, w.ID())
	s.mu.Unlock()
}
