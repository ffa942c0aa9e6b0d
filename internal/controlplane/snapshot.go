// Package controlplane normalizes the flat, id-indexed wire snapshot the
// control plane publishes into a graph of cross-referencing views, the
// way the original runtime's root_state turns a protobuf message into a
// set of shared_ptr-backed wrapper objects on receipt.
//
// Every accessor that resolves an id looks it up with mustGet, which
// panics with a diagnostic on a missing id rather than returning a zero
// value: a dangling id in a published snapshot means the control plane
// sent an inconsistent state, not a condition calling code should have to
// check for on every access.
package controlplane

import (
	"fmt"
	"reflect"

	pb "github.com/flowmesh/dataflow/proto/controlplane"
)

// Snapshot is an immutable normalized view over one published
// ControlPlaneState. All views returned from a Snapshot hold a pointer
// back to it, so cross-references (worker to executor, segment instance
// to pipeline instance, and so on) stay valid for the Snapshot's
// lifetime.
type Snapshot struct {
	raw   *pb.ControlPlaneState
	nonce uint64
}

// Normalize builds a Snapshot from a raw published state. It does not
// copy the message; the Snapshot is considered to own it.
func Normalize(raw *pb.ControlPlaneState) *Snapshot {
	return &Snapshot{raw: raw, nonce: raw.Nonce}
}

// Nonce returns the monotonically increasing version counter the control
// plane assigned to this snapshot.
func (s *Snapshot) Nonce() uint64 {
	return s.nonce
}

// Raw returns the underlying wire message. Treat it as read-only.
func (s *Snapshot) Raw() *pb.ControlPlaneState {
	return s.raw
}

// Equal reports whether two snapshots carry structurally identical state,
// mirroring MessageDifferencer::Equals on the original protobuf message.
// reflect.DeepEqual is the Go equivalent here: it compares both raw
// messages field by field, nonce included, rather than by identity.
func Equal(a, b *Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a.raw, b.raw)
}

func mustGet[T any](kind string, m map[uint64]T, id uint64) T {
	v, ok := m[id]
	if !ok {
		panic(fmt.Sprintf("controlplane: inconsistent snapshot: %s is missing id %d", kind, id))
	}
	return v
}

// ExecutorIDs returns the snapshot's executor ids in publish order.
func (s *Snapshot) ExecutorIDs() []uint64 { return s.raw.Executors.IDs }

// Executor resolves one executor view by id.
func (s *Snapshot) Executor(id uint64) ExecutorView {
	return ExecutorView{s: s, msg: mustGet("executors", s.raw.Executors.Entities, id)}
}

// WorkerIDs returns the snapshot's worker ids in publish order.
func (s *Snapshot) WorkerIDs() []uint64 { return s.raw.Workers.IDs }

// Worker resolves one worker view by id.
func (s *Snapshot) Worker(id uint64) WorkerView {
	return WorkerView{s: s, msg: mustGet("workers", s.raw.Workers.Entities, id)}
}

// PipelineDefinitionIDs returns the snapshot's pipeline definition ids.
func (s *Snapshot) PipelineDefinitionIDs() []uint64 { return s.raw.PipelineDefinitions.IDs }

// PipelineDefinition resolves one pipeline definition view by id.
func (s *Snapshot) PipelineDefinition(id uint64) PipelineDefinitionView {
	return PipelineDefinitionView{s: s, msg: mustGet("pipeline_definitions", s.raw.PipelineDefinitions.Entities, id)}
}

// PipelineInstanceIDs returns the snapshot's pipeline instance ids.
func (s *Snapshot) PipelineInstanceIDs() []uint64 { return s.raw.PipelineInstances.IDs }

// PipelineInstance resolves one pipeline instance view by id.
func (s *Snapshot) PipelineInstance(id uint64) PipelineInstanceView {
	return PipelineInstanceView{s: s, msg: mustGet("pipeline_instances", s.raw.PipelineInstances.Entities, id)}
}

// ManifoldInstanceIDs returns the snapshot's manifold instance ids.
func (s *Snapshot) ManifoldInstanceIDs() []uint64 { return s.raw.ManifoldInstances.IDs }

// ManifoldInstance resolves one manifold instance view by id.
func (s *Snapshot) ManifoldInstance(id uint64) ManifoldInstanceView {
	return ManifoldInstanceView{s: s, msg: mustGet("manifold_instances", s.raw.ManifoldInstances.Entities, id)}
}

// SegmentInstanceIDs returns the snapshot's segment instance ids.
func (s *Snapshot) SegmentInstanceIDs() []uint64 { return s.raw.SegmentInstances.IDs }

// SegmentInstance resolves one segment instance view by id.
func (s *Snapshot) SegmentInstance(id uint64) SegmentInstanceView {
	return SegmentInstanceView{s: s, msg: mustGet("segment_instances", s.raw.SegmentInstances.Entities, id)}
}

// ExecutorView wraps one Executor message with cross-reference accessors.
type ExecutorView struct {
	s   *Snapshot
	msg pb.Executor
}

func (v ExecutorView) ID() uint64          { return v.msg.ID }
func (v ExecutorView) PeerInfo() string    { return v.msg.PeerInfo }
func (v ExecutorView) State() pb.ResourceState { return v.msg.State }

// Workers resolves every worker this executor owns.
func (v ExecutorView) Workers() []WorkerView {
	out := make([]WorkerView, 0, len(v.msg.WorkerIDs))
	for _, id := range v.msg.WorkerIDs {
		out = append(out, v.s.Worker(id))
	}
	return out
}

// AssignedPipelines resolves every pipeline instance running on this
// executor.
func (v ExecutorView) AssignedPipelines() []PipelineInstanceView {
	out := make([]PipelineInstanceView, 0, len(v.msg.AssignedPipelineIDs))
	for _, id := range v.msg.AssignedPipelineIDs {
		out = append(out, v.s.PipelineInstance(id))
	}
	return out
}

// WorkerView wraps one Worker message with cross-reference accessors.
type WorkerView struct {
	s   *Snapshot
	msg pb.Worker
}

func (v WorkerView) ID() uint64              { return v.msg.ID }
func (v WorkerView) UCXAddress() string      { return v.msg.UCXAddress }
func (v WorkerView) State() pb.ResourceState { return v.msg.State }

// Executor resolves the executor this worker belongs to.
func (v WorkerView) Executor() ExecutorView {
	return v.s.Executor(v.msg.ExecutorID)
}

// AssignedSegments resolves every segment instance scheduled on this
// worker.
func (v WorkerView) AssignedSegments() []SegmentInstanceView {
	out := make([]SegmentInstanceView, 0, len(v.msg.AssignedSegmentIDs))
	for _, id := range v.msg.AssignedSegmentIDs {
		out = append(out, v.s.SegmentInstance(id))
	}
	return out
}

// PipelineDefinitionView wraps one PipelineDefinition message.
type PipelineDefinitionView struct {
	s   *Snapshot
	msg pb.PipelineDefinition
}

func (v PipelineDefinitionView) ID() uint64 { return v.msg.ID }

func (v PipelineDefinitionView) Config() pb.PipelineConfiguration { return v.msg.Config }

// Manifold resolves the named manifold definition within this pipeline.
func (v PipelineDefinitionView) Manifold(name string) ManifoldDefinitionView {
	m, ok := v.msg.Manifolds[name]
	if !ok {
		panic(fmt.Sprintf("controlplane: inconsistent snapshot: pipeline_definition %d has no manifold %q", v.msg.ID, name))
	}
	return ManifoldDefinitionView{s: v.s, msg: m}
}

// Segment resolves the named segment definition within this pipeline.
func (v PipelineDefinitionView) Segment(name string) SegmentDefinitionView {
	seg, ok := v.msg.Segments[name]
	if !ok {
		panic(fmt.Sprintf("controlplane: inconsistent snapshot: pipeline_definition %d has no segment %q", v.msg.ID, name))
	}
	return SegmentDefinitionView{s: v.s, msg: seg}
}

// Instances resolves every running instance of this pipeline definition.
func (v PipelineDefinitionView) Instances() []PipelineInstanceView {
	out := make([]PipelineInstanceView, 0, len(v.msg.InstanceIDs))
	for _, id := range v.msg.InstanceIDs {
		out = append(out, v.s.PipelineInstance(id))
	}
	return out
}

// ManifoldDefinitionView wraps one ManifoldDefinition message.
type ManifoldDefinitionView struct {
	s   *Snapshot
	msg pb.ManifoldDefinition
}

func (v ManifoldDefinitionView) PortName() string { return v.msg.PortName }

// Parent resolves the pipeline definition that declares this manifold.
func (v ManifoldDefinitionView) Parent() PipelineDefinitionView {
	return v.s.PipelineDefinition(v.msg.ParentID)
}

// Instances resolves every running instance of this manifold.
func (v ManifoldDefinitionView) Instances() []ManifoldInstanceView {
	out := make([]ManifoldInstanceView, 0, len(v.msg.InstanceIDs))
	for _, id := range v.msg.InstanceIDs {
		out = append(out, v.s.ManifoldInstance(id))
	}
	return out
}

// SegmentDefinitionView wraps one SegmentDefinition message.
type SegmentDefinitionView struct {
	s   *Snapshot
	msg pb.SegmentDefinition
}

func (v SegmentDefinitionView) Name() string { return v.msg.Name }

// Parent resolves the pipeline definition that declares this segment.
func (v SegmentDefinitionView) Parent() PipelineDefinitionView {
	return v.s.PipelineDefinition(v.msg.ParentID)
}

// Instances resolves every running instance of this segment.
func (v SegmentDefinitionView) Instances() []SegmentInstanceView {
	out := make([]SegmentInstanceView, 0, len(v.msg.InstanceIDs))
	for _, id := range v.msg.InstanceIDs {
		out = append(out, v.s.SegmentInstance(id))
	}
	return out
}

// PipelineInstanceView wraps one PipelineInstance message.
type PipelineInstanceView struct {
	s   *Snapshot
	msg pb.PipelineInstance
}

func (v PipelineInstanceView) ID() uint64              { return v.msg.ID }
func (v PipelineInstanceView) State() pb.ResourceState { return v.msg.State }

// Definition resolves this instance's pipeline definition.
func (v PipelineInstanceView) Definition() PipelineDefinitionView {
	return v.s.PipelineDefinition(v.msg.DefinitionID)
}

// Executor resolves the executor running this instance.
func (v PipelineInstanceView) Executor() ExecutorView {
	return v.s.Executor(v.msg.ExecutorID)
}

// Manifolds resolves every manifold instance belonging to this pipeline
// instance.
func (v PipelineInstanceView) Manifolds() []ManifoldInstanceView {
	out := make([]ManifoldInstanceView, 0, len(v.msg.ManifoldIDs))
	for _, id := range v.msg.ManifoldIDs {
		out = append(out, v.s.ManifoldInstance(id))
	}
	return out
}

// Segments resolves every segment instance belonging to this pipeline
// instance.
func (v PipelineInstanceView) Segments() []SegmentInstanceView {
	out := make([]SegmentInstanceView, 0, len(v.msg.SegmentIDs))
	for _, id := range v.msg.SegmentIDs {
		out = append(out, v.s.SegmentInstance(id))
	}
	return out
}

// ManifoldInstanceView wraps one ManifoldInstance message.
type ManifoldInstanceView struct {
	s   *Snapshot
	msg pb.ManifoldInstance
}

func (v ManifoldInstanceView) ID() uint64              { return v.msg.ID }
func (v ManifoldInstanceView) PortName() string        { return v.msg.PortName }
func (v ManifoldInstanceView) State() pb.ResourceState { return v.msg.State }

// RequestedInputSegments returns the packed segment addresses this
// manifold should be reading from.
func (v ManifoldInstanceView) RequestedInputSegments() map[uint64]bool {
	return v.msg.RequestedInputSegments
}

// RequestedOutputSegments returns the packed segment addresses this
// manifold should be writing to.
func (v ManifoldInstanceView) RequestedOutputSegments() map[uint64]bool {
	return v.msg.RequestedOutputSegments
}

// PipelineInstance resolves the pipeline instance this manifold belongs
// to.
func (v ManifoldInstanceView) PipelineInstance() PipelineInstanceView {
	return v.s.PipelineInstance(v.msg.PipelineInstanceID)
}

// SegmentInstanceView wraps one SegmentInstance message.
type SegmentInstanceView struct {
	s   *Snapshot
	msg pb.SegmentInstance
}

func (v SegmentInstanceView) ID() uint64              { return v.msg.ID }
func (v SegmentInstanceView) Name() string            { return v.msg.Name }
func (v SegmentInstanceView) State() pb.ResourceState { return v.msg.State }
func (v SegmentInstanceView) SegmentAddress() uint64  { return v.msg.SegmentAddress }

// Worker resolves the worker this segment instance is scheduled on.
func (v SegmentInstanceView) Worker() WorkerView {
	return v.s.Worker(v.msg.WorkerID)
}

// PipelineInstance resolves the pipeline instance this segment belongs
// to.
func (v SegmentInstanceView) PipelineInstance() PipelineInstanceView {
	return v.s.PipelineInstance(v.msg.PipelineInstanceID)
}
