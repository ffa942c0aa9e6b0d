package controlplane

import (
	"testing"

	pb "github.com/flowmesh/dataflow/proto/controlplane"
	"github.com/stretchr/testify/assert"
)

func TestMoreSevereOrdersFailedHighest(t *testing.T) {
	running := pb.ResourceState{ActualStatus: pb.ActualRunning}
	failed := pb.ResourceState{ActualStatus: pb.ActualFailed}
	assert.True(t, MoreSevere(failed, running))
	assert.False(t, MoreSevere(running, failed))
}

func TestMostSevereReducesSet(t *testing.T) {
	states := []pb.ResourceState{
		{ActualStatus: pb.ActualRunning},
		{ActualStatus: pb.ActualStopped},
		{ActualStatus: pb.ActualFailed},
		{ActualStatus: pb.ActualActivating},
	}
	worst := MostSevere(states)
	assert.Equal(t, pb.ActualFailed, worst.ActualStatus)
}

func TestMostSevereEmptyReturnsZeroValue(t *testing.T) {
	assert.Equal(t, pb.ResourceState{}, MostSevere(nil))
}

func TestUnknownOutranksKnownGoodStates(t *testing.T) {
	unknown := pb.ResourceState{ActualStatus: pb.ActualUnknown}
	running := pb.ResourceState{ActualStatus: pb.ActualRunning}
	assert.True(t, MoreSevere(unknown, running))
}
