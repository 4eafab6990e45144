package graph

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDoc = `
metadata:
  name: approval-flow
  version: "1.0.0"
nodes:
  - id: submit
    handler: echo
  - id: review
    handler: echo
edges:
  - id: e1
    from: submit
    to: review
    kind: sequence
config:
  concurrency:
    maxParallel: 2
`

const jsonDoc = `{
  "metadata": {"name": "approval-flow", "version": "1.0.0"},
  "nodes": [{"id": "submit", "handler": "echo"}, {"id": "review", "handler": "echo"}],
  "edges": [{"id": "e1", "from": "submit", "to": "review", "kind": "sequence"}]
}`

func TestLoadYAML_ShouldParseNodesEdgesAndConfig(t *testing.T) {
	g, err := LoadYAML([]byte(yamlDoc))

	require.NoError(t, err)
	assert.Equal(t, "approval-flow", g.Metadata.Name)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 1)
	assert.Equal(t, 2, g.Config.Concurrency.MaxParallel)
}

func TestLoadJSON_ShouldParseNodesAndEdges(t *testing.T) {
	g, err := LoadJSON([]byte(jsonDoc))

	require.NoError(t, err)
	assert.Equal(t, "approval-flow", g.Metadata.Name)
	assert.Len(t, g.Nodes, 2)
	assert.Equal(t, "submit", g.Edges[0].From)
}

func TestLoadYAML_ShouldError_WhenDocumentIsMalformed(t *testing.T) {
	_, err := LoadYAML([]byte("nodes: [this is not valid: yaml: :"))
	assert.Error(t, err)
}

func TestLoadFile_ShouldDispatchOnExtension(t *testing.T) {
	yamlPath := writeTempFile(t, "graph-*.yaml", yamlDoc)
	jsonPath := writeTempFile(t, "graph-*.json", jsonDoc)

	gYAML, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "approval-flow", gYAML.Metadata.Name)

	gJSON, err := LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "approval-flow", gJSON.Metadata.Name)
}

func writeTempFile(t *testing.T, pattern, contents string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	require.NoError(t, err)
	_, err = f.WriteString(contents)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}
