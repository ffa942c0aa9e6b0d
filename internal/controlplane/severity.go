package controlplane

import pb "github.com/flowmesh/dataflow/proto/controlplane"

// severityRank orders ResourceActualStatus from least to most severe, so
// that a supervisor reducing many resource states down to one worst-case
// status for a UI or alert can do so with a single comparison instead of
// a chain of equality checks. Failed is always most severe; Unknown is
// treated as more severe than any known-good state because it signals
// the control plane hasn't heard from the resource at all.
var severityRank = map[pb.ResourceActualStatus]int{
	pb.ActualRunning:      0,
	pb.ActualRegistered:   1,
	pb.ActualActivating:   2,
	pb.ActualStopped:      3,
	pb.ActualDeactivating: 4,
	pb.ActualUnknown:      5,
	pb.ActualFailed:       6,
}

// Severity returns this state's actual-status severity rank: higher is
// worse.
func Severity(s pb.ResourceState) int {
	return severityRank[s.ActualStatus]
}

// MoreSevere reports whether a's actual status outranks b's.
func MoreSevere(a, b pb.ResourceState) bool {
	return Severity(a) > Severity(b)
}

// MostSevere reduces a set of resource states to the single most severe
// one. It returns the zero ResourceState if states is empty.
func MostSevere(states []pb.ResourceState) pb.ResourceState {
	var worst pb.ResourceState
	for i, s := range states {
		if i == 0 || MoreSevere(s, worst) {
			worst = s
		}
	}
	return worst
}
