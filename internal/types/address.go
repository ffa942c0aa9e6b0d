// Package types holds the small value types shared across the execution
// core: segment addresses and subscription tags.
package types

import "fmt"

// Tag is an opaque 64-bit identifier assigned by the control plane to a
// subscription instance.
type Tag uint64

// SegmentAddress is a (executor_id, pipeline_instance_id, segment_rank)
// triple packed into one uint64 for fast comparison and use as a map key.
//
// Layout, high to low bit: executor_id(16) | pipeline_instance_id(32) |
// segment_rank(16).
type SegmentAddress uint64

const (
	executorBits = 16
	instanceBits = 32
	rankBits     = 16

	rankMask     = uint64(1)<<rankBits - 1
	instanceMask = uint64(1)<<instanceBits - 1
	executorMask = uint64(1)<<executorBits - 1
)

// NewSegmentAddress packs the three components into a SegmentAddress.
// Values that overflow their bit width are truncated.
func NewSegmentAddress(executorID uint16, pipelineInstanceID uint32, segmentRank uint16) SegmentAddress {
	v := uint64(executorID&uint16(executorMask)) << (instanceBits + rankBits)
	v |= uint64(pipelineInstanceID&uint32(instanceMask)) << rankBits
	v |= uint64(segmentRank) & rankMask
	return SegmentAddress(v)
}

// ExecutorID returns the packed executor id component.
func (a SegmentAddress) ExecutorID() uint16 {
	return uint16((uint64(a) >> (instanceBits + rankBits)) & executorMask)
}

// PipelineInstanceID returns the packed pipeline instance id component.
func (a SegmentAddress) PipelineInstanceID() uint32 {
	return uint32((uint64(a) >> rankBits) & instanceMask)
}

// SegmentRank returns the packed segment rank component.
func (a SegmentAddress) SegmentRank() uint16 {
	return uint16(uint64(a) & rankMask)
}

// String renders the address as executor/instance/rank for logs.
func (a SegmentAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", a.ExecutorID(), a.PipelineInstanceID(), a.SegmentRank())
}
