package metrics

import "strings"

// Describe returns a short human-readable summary of the exposed metric
// families. The admin surface does not call it; the /metrics exposition
// format is produced by promhttp, not this helper.
func (m *Metrics) Describe() string {
	var sb strings.Builder
	sb.WriteString("# executor metrics\n")
	sb.WriteString("# channel, router, manifold, control-plane, pipeline, and admin series\n")
	sb.WriteString("# served via the Prometheus exposition format at /metrics\n")
	return sb.String()
}
