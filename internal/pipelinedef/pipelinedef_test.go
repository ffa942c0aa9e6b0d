package pipelinedef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: example
executor_id: 1
pipeline_instance_id: 100
segments:
  - name: source
    rank: 0
    factory: source_factory
    enabled: true
  - name: sink
    rank: 1
    factory: sink_factory
    enabled: false
manifolds:
  - port_name: main
`

func TestParseValidDefinition(t *testing.T) {
	def, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "example", def.Name)
	assert.Equal(t, uint16(1), def.ExecutorID)
	assert.Equal(t, uint32(100), def.PipelineInstanceID)
	require.Len(t, def.Segments, 2)
	assert.Equal(t, "main", def.Manifolds[0].PortName)
}

func TestEnabledSegmentsFiltersDisabled(t *testing.T) {
	def, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"source"}, def.EnabledSegments())
}

func TestSegmentLookup(t *testing.T) {
	def, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	seg, ok := def.Segment("sink")
	require.True(t, ok)
	assert.Equal(t, "sink_factory", seg.Factory)

	_, ok = def.Segment("missing")
	assert.False(t, ok)
}

func TestParseRejectsMissingName(t *testing.T) {
	_, err := Parse([]byte("segments: []"))
	assert.Error(t, err)
}

func TestParseRejectsDuplicateSegmentNames(t *testing.T) {
	const doc = `
name: dup
segments:
  - name: a
    factory: f1
  - name: a
    factory: f2
`
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
}

func TestParseRejectsSegmentWithoutFactory(t *testing.T) {
	const doc = `
name: nofac
segments:
  - name: a
`
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
}

func TestLoadReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "example", def.Name)
}

func TestLoadPropagatesReadError(t *testing.T) {
	_, err := Load("/nonexistent/path/pipeline.yaml")
	assert.Error(t, err)
}
