package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"

	"github.com/golang/glog"
)

// DefaultMutationTimeout bounds the wait for a mutation-result.
const DefaultMutationTimeout = 10 * time.Second

var (
	// ErrMutationTimeout is returned when no mutation-result arrives in time.
	ErrMutationTimeout = errors.New("mutation timed out")

	// ErrMutationRejected is returned when the host reports a mutation as not applied.
	ErrMutationRejected = errors.New("mutation not applied")

	// ErrKernelDeactivated is returned by mutations of a kernel replaced by a newer model.
	ErrKernelDeactivated = errors.New("model kernel deactivated")
)

type mutationOutcome struct {
	applied bool
	err     error
}

// ModelKernel is the sandbox-side binding of one model generation: the element tree
// built from the serialized model and the port its mutations travel over. Mutations
// on one kernel are answered in the order they were sent.
type ModelKernel struct {
	ctx      context.Context
	port     protocol.Port
	caps     capability.Set
	timeout  time.Duration
	model    *Model
	elements map[int]any

	// state guards the cached values of every element of the kernel.
	state sync.RWMutex

	mu      sync.Mutex
	next    int
	pending map[int]chan mutationOutcome
	err     error
	done    chan struct{}
}

// NewModelKernel builds the element tree for a serialized model and starts reading
// mutation results from port. The kernel owns port.
//
// Parameters:
//   - ctx: cancels every wait for a mutation-result when done
//   - port: the mutation port of this model generation
//   - serialized: the model sent with model-changed
//   - options: a variadic list of ModelKernelBuilderOption functions
//
// Returns:
//   - *ModelKernel: the kernel
func NewModelKernel(ctx context.Context, port protocol.Port, serialized protocol.SerializedModel, options ...ModelKernelBuilderOption) *ModelKernel {
	k := &ModelKernel{
		ctx:      ctx,
		port:     port,
		timeout:  DefaultMutationTimeout,
		elements: make(map[int]any),
		pending:  make(map[int]chan mutationOutcome),
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(k)
	}
	k.model = newModel(k, serialized)
	go k.run()
	return k
}

// Model returns the root element.
func (k *ModelKernel) Model() *Model {
	return k.model
}

// ElementByID looks up an element of the kernel by id.
//
// Parameters:
//   - id: the element id
//
// Returns:
//   - any: the element
//   - bool: false if the kernel has no such element
func (k *ModelKernel) ElementByID(id int) (any, bool) {
	el, ok := k.elements[id]
	return el, ok
}

// Done is closed once the kernel stops accepting mutations.
func (k *ModelKernel) Done() <-chan struct{} {
	return k.done
}

// Mutate sends a mutate message and waits for its mutation-result.
//
// Parameters:
//   - ctx: bounds the wait in addition to the kernel timeout
//   - id: the element id
//   - property: the protocol property name
//   - value: the new value
//
// Returns:
//   - error: ErrMutationRejected, ErrMutationTimeout, ErrKernelDeactivated,
//     protocol.ErrPortClosed or the context error
func (k *ModelKernel) Mutate(ctx context.Context, id int, property string, value any) error {
	k.mu.Lock()
	if k.err != nil {
		err := k.err
		k.mu.Unlock()
		return err
	}
	k.next++
	mutationID := k.next
	ch := make(chan mutationOutcome, 1)
	k.pending[mutationID] = ch
	k.mu.Unlock()

	msg, err := protocol.NewMutate(id, property, value, mutationID)
	if err != nil {
		k.forget(mutationID)
		return err
	}
	if err := k.port.PostMessage(msg); err != nil {
		k.forget(mutationID)
		return fmt.Errorf("failed to send mutation: %w", err)
	}

	timer := time.NewTimer(k.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return out.err
		}
		if !out.applied {
			return fmt.Errorf("%s on element %d: %w", property, id, ErrMutationRejected)
		}
		return nil
	case <-timer.C:
		k.forget(mutationID)
		return fmt.Errorf("%s on element %d after %s: %w", property, id, k.timeout, ErrMutationTimeout)
	case <-ctx.Done():
		k.forget(mutationID)
		return ctx.Err()
	case <-k.ctx.Done():
		k.forget(mutationID)
		return k.ctx.Err()
	}
}

// Deactivate rejects every in-flight mutation with ErrKernelDeactivated and closes the port.
func (k *ModelKernel) Deactivate() {
	k.stop(ErrKernelDeactivated)
	k.port.Close()
}

func (k *ModelKernel) run() {
	for env := range k.port.Messages() {
		if env.Type != protocol.MessageMutationResult {
			glog.V(2).Infof("[Sandbox] ignoring %s on mutation port", env.Type)
			continue
		}
		k.mu.Lock()
		ch, ok := k.pending[env.MutationID]
		delete(k.pending, env.MutationID)
		k.mu.Unlock()
		if !ok {
			glog.V(2).Infof("[Sandbox] result for unknown mutation %d", env.MutationID)
			continue
		}
		ch <- mutationOutcome{applied: env.Applied}
	}
	k.stop(protocol.ErrPortClosed)
}

// stop fails every pending mutation with err. Later mutations fail with err too.
func (k *ModelKernel) stop(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return
	}
	k.err = err
	for id, ch := range k.pending {
		ch <- mutationOutcome{err: err}
		delete(k.pending, id)
	}
	close(k.done)
}

func (k *ModelKernel) forget(mutationID int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.pending, mutationID)
}

// register records an element under its id. The first element registered for an id wins.
func register[T any](k *ModelKernel, id int, build func() T) T {
	if el, ok := k.elements[id]; ok {
		if typed, ok := el.(T); ok {
			return typed
		}
	}
	el := build()
	k.elements[id] = el
	return el
}
