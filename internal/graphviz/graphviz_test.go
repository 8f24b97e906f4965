package graphviz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/astromechza/codecollab/internal/document"
)

func TestRenderChangeGraphProducesSVG(t *testing.T) {
	doc, err := document.New("proj", "owner-1")
	require.NoError(t, err)

	_, err = doc.CreateFile(document.RootNodeID, "main.go")
	require.NoError(t, err)

	svg, err := RenderChangeGraph(doc)
	require.NoError(t, err)
	require.Contains(t, string(svg), "<svg")
}

func TestRenderChangeGraphEmptyDocument(t *testing.T) {
	doc, err := document.New("proj", "owner-1")
	require.NoError(t, err)

	svg, err := RenderChangeGraph(doc)
	require.NoError(t, err)
	require.NotEmpty(t, svg)
}
