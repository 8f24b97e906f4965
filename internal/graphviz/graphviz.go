// Package graphviz renders a room's CRDT change history to SVG for the
// admin debug surface, adapted from the teacher's pkg/viz change-graph
// renderer onto the document package's node-tree shape instead of a bare
// automerge.Doc path.
package graphviz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	gv "github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/pkg/errors"

	"github.com/astromechza/codecollab/internal/document"
)

// nodeSummary is what a change's label shows: the file-tree shape at the
// point that change was applied, keyed by node id so the graph reads as a
// timeline of the tree's evolution rather than raw CRDT internals.
type nodeSummary struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// RenderChangeGraph renders doc's full change DAG to SVG, one graph node
// per Automerge change, labeled with that change's actor/seq and a
// compact summary of the file tree as of that change.
func RenderChangeGraph(doc *document.Document) ([]byte, error) {
	g := gv.New()
	graph, err := g.Graph()
	if err != nil {
		return nil, errors.Wrap(err, "graphviz: setup graph")
	}

	changes, err := doc.Changes()
	if err != nil {
		return nil, errors.Wrap(err, "graphviz: changes")
	}

	nodeMap := make(map[string]*cgraph.Node, len(changes))
	var edgeCounter uint64
	for _, change := range changes {
		fork, err := doc.Fork(change.Hash())
		if err != nil {
			return nil, errors.Wrapf(err, "graphviz: fork at %s", change.Hash())
		}
		nodes, err := fork.GetAllNodes()
		summary := make(map[string]nodeSummary, len(nodes))
		if err == nil {
			for _, n := range nodes {
				summary[n.ID] = nodeSummary{Path: n.Path, IsDir: n.IsDir}
			}
		}
		encoded, err := json.Marshal(summary)
		if err != nil {
			return nil, errors.Wrap(err, "graphviz: marshal summary")
		}

		n, err := graph.CreateNode(change.Hash().String())
		if err != nil {
			return nil, errors.Wrap(err, "graphviz: create node")
		}
		n.SetLabel(fmt.Sprintf("%s %s@%d %s", change.Hash().String()[:8], change.ActorID(), change.ActorSeq(), string(encoded)))
		nodeMap[n.Name()] = n

		for _, hash := range change.Dependencies() {
			dep, ok := nodeMap[hash.String()]
			if !ok {
				continue
			}
			if _, err := graph.CreateEdge(strconv.FormatUint(atomic.AddUint64(&edgeCounter, 1), 10), dep, n); err != nil {
				return nil, errors.Wrap(err, "graphviz: create edge")
			}
		}
	}

	var buf bytes.Buffer
	if err := g.Render(graph, gv.SVG, &buf); err != nil {
		return nil, errors.Wrap(err, "graphviz: render")
	}
	return buf.Bytes(), nil
}
