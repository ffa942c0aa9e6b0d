package controlplane

import "google.golang.org/protobuf/types/known/timestamppb"

// IDList pairs a stable-ordering id list with its entity map, mirroring
// the {ids, entities} shape every top-level collection in
// ControlPlaneState uses.
type IDList[T any] struct {
	IDs      []uint64       `json:"ids"`
	Entities map[uint64]T   `json:"entities"`
}

// ResourceDefinition names one dependency edge between resources.
type ResourceDefinition struct {
	Kind string `json:"kind"`
	ID   uint64 `json:"id"`
}

// ResourceRequestedStatus is the status an operator asked a resource to
// reach.
type ResourceRequestedStatus int32

const (
	RequestedUnknown ResourceRequestedStatus = iota
	RequestedCreated
	RequestedRunning
	RequestedStopped
	RequestedDestroyed
)

// ResourceActualStatus is the status a resource has actually reached.
type ResourceActualStatus int32

const (
	ActualUnknown ResourceActualStatus = iota
	ActualRegistered
	ActualActivating
	ActualRunning
	ActualDeactivating
	ActualStopped
	ActualFailed
)

// ResourceState carries an entity's requested/actual status pair and its
// dependency edges.
type ResourceState struct {
	RequestedStatus ResourceRequestedStatus `json:"requested_status"`
	ActualStatus    ResourceActualStatus    `json:"actual_status"`
	Dependees       []ResourceDefinition     `json:"dependees"`
	Dependers       []ResourceDefinition     `json:"dependers"`
}

// Executor is one executor process known to the control plane.
type Executor struct {
	ID                          uint64   `json:"id"`
	PeerInfo                    string   `json:"peer_info"`
	WorkerIDs                   []uint64 `json:"worker_ids"`
	AssignedPipelineIDs         []uint64 `json:"assigned_pipeline_ids"`
	MappedPipelineDefinitionIDs []uint64 `json:"mapped_pipeline_definitions"`
	State                       ResourceState `json:"state"`
}

// Worker is one scheduling context within an executor.
type Worker struct {
	ID                 uint64        `json:"id"`
	UCXAddress         string        `json:"ucx_address"`
	ExecutorID         uint64        `json:"executor_id"`
	AssignedSegmentIDs []uint64      `json:"assigned_segment_ids"`
	State              ResourceState `json:"state"`
}

// PipelineConfiguration carries free-form pipeline options.
type PipelineConfiguration struct {
	Options map[string]string `json:"options"`
}

// ManifoldDefinition is one named manifold port within a pipeline
// definition.
type ManifoldDefinition struct {
	ID          uint64   `json:"id"`
	ParentID    uint64   `json:"parent_id"`
	PortName    string   `json:"port_name"`
	InstanceIDs []uint64 `json:"instance_ids"`
}

// SegmentDefinition is one named segment within a pipeline definition.
type SegmentDefinition struct {
	ID          uint64   `json:"id"`
	ParentID    uint64   `json:"parent_id"`
	Name        string   `json:"name"`
	InstanceIDs []uint64 `json:"instance_ids"`
}

// PipelineDefinition describes a pipeline's static shape: its manifold and
// segment definitions, keyed by name.
type PipelineDefinition struct {
	ID          uint64                          `json:"id"`
	Config      PipelineConfiguration            `json:"config"`
	InstanceIDs []uint64                         `json:"instance_ids"`
	Manifolds   map[string]ManifoldDefinition    `json:"manifolds"`
	Segments    map[string]SegmentDefinition     `json:"segments"`
}

// PipelineInstance is one running instance of a PipelineDefinition on one
// executor.
type PipelineInstance struct {
	ID           uint64        `json:"id"`
	DefinitionID uint64        `json:"definition_id"`
	ExecutorID   uint64        `json:"executor_id"`
	ManifoldIDs  []uint64      `json:"manifold_ids"`
	SegmentIDs   []uint64      `json:"segment_ids"`
	State        ResourceState `json:"state"`
}

// ManifoldInstance is one running manifold, carrying its requested
// input/output segment sets keyed by packed segment address.
type ManifoldInstance struct {
	ID                      uint64           `json:"id"`
	PipelineDefinitionID    uint64           `json:"pipeline_definition_id"`
	PortName                string           `json:"port_name"`
	ExecutorID              uint64           `json:"executor_id"`
	PipelineInstanceID      uint64           `json:"pipeline_instance_id"`
	RequestedInputSegments  map[uint64]bool  `json:"requested_input_segments"`
	RequestedOutputSegments map[uint64]bool  `json:"requested_output_segments"`
	State                   ResourceState    `json:"state"`
}

// SegmentInstance is one running segment, assigned to a worker.
type SegmentInstance struct {
	ID                   uint64                 `json:"id"`
	ExecutorID           uint64                 `json:"executor_id"`
	PipelineInstanceID   uint64                 `json:"pipeline_instance_id"`
	PipelineDefinitionID uint64                 `json:"pipeline_definition_id"`
	Name                 string                 `json:"name"`
	WorkerID             uint64                 `json:"worker_id"`
	SegmentAddress       uint64                 `json:"segment_address"`
	State                ResourceState          `json:"state"`
	UpdatedAt            *timestamppb.Timestamp `json:"updated_at,omitempty"`
}

// ControlPlaneState is the single message the runtime consumes: every
// top-level collection plus the monotonically increasing nonce.
type ControlPlaneState struct {
	Nonce               uint64                         `json:"nonce"`
	Executors           IDList[Executor]               `json:"executors"`
	Workers             IDList[Worker]                 `json:"workers"`
	PipelineDefinitions IDList[PipelineDefinition]      `json:"pipeline_definitions"`
	PipelineInstances   IDList[PipelineInstance]        `json:"pipeline_instances"`
	ManifoldInstances   IDList[ManifoldInstance]        `json:"manifold_instances"`
	SegmentInstances    IDList[SegmentInstance]         `json:"segment_instances"`
}
