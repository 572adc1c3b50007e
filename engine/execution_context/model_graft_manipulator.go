package execution_context

import (
	"context"

	"github.com/Carmen-Shannon/oxy-threedom/engine/facade"
	"github.com/Carmen-Shannon/oxy-threedom/engine/profiler"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"

	"github.com/golang/glog"
)

// ModelGraftManipulator applies the mutate messages of one model generation to a
// ModelGraft, one at a time, answering each with a mutation-result.
type ModelGraftManipulator struct {
	graft    *facade.ModelGraft
	port     protocol.Port
	profiler *profiler.Profiler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewModelGraftManipulator starts applying the mutations arriving on port to graft.
// The manipulator owns port.
//
// Parameters:
//   - graft: the graft to mutate
//   - port: the host end of the mutation channel
//   - p: optional profiler ticked once per mutation
//
// Returns:
//   - *ModelGraftManipulator: the running manipulator
func NewModelGraftManipulator(graft *facade.ModelGraft, port protocol.Port, p *profiler.Profiler) *ModelGraftManipulator {
	ctx, cancel := context.WithCancel(context.Background())
	m := &ModelGraftManipulator{
		graft:    graft,
		port:     port,
		profiler: p,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Graft returns the graft the manipulator writes to.
func (m *ModelGraftManipulator) Graft() *facade.ModelGraft {
	return m.graft
}

// Done is closed once the manipulator stopped reading mutations.
func (m *ModelGraftManipulator) Done() <-chan struct{} {
	return m.done
}

// Dispose stops the manipulator and closes its port. The sandbox rejects the
// mutations still waiting for a result.
func (m *ModelGraftManipulator) Dispose() {
	m.cancel()
	m.port.Close()
	<-m.done
}

func (m *ModelGraftManipulator) run() {
	defer close(m.done)
	for env := range m.port.Messages() {
		if env.Type != protocol.MessageMutate {
			glog.V(1).Infof("[Manipulator] ignoring %s", env.Type)
			continue
		}
		m.apply(env.Message)
	}
}

func (m *ModelGraftManipulator) apply(msg protocol.Message) {
	applied := false
	defer func() {
		if m.profiler != nil {
			m.profiler.Tick(applied)
		}
		if err := m.port.PostMessage(protocol.NewMutationResult(msg.MutationID, applied)); err != nil {
			glog.V(1).Infof("[Manipulator] failed to answer mutation %d: %v", msg.MutationID, err)
		}
	}()

	if err := m.graft.Mutate(m.ctx, msg.ID, msg.Property, msg.Value); err != nil {
		glog.Warningf("[Manipulator] mutation %d of %s on element %d failed: %v", msg.MutationID, msg.Property, msg.ID, err)
		return
	}
	glog.V(2).Infof("[Manipulator] applied %s on element %d", msg.Property, msg.ID)
	applied = true
}
