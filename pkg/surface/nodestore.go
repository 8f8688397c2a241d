package surface

import (
	"encoding/json"
	"fmt"

	"github.com/dd0wney/cluso-vre/pkg/logging"
)

// NodeDocument is the externalized form of a node: its attribute snapshot
// plus the shortest-path statistics accumulated for it, keyed by pair.
type NodeDocument struct {
	ID         string              `json:"id"`
	Kind       NodeKind            `json:"type"`
	Attributes json.RawMessage     `json:"attributes"`
	Stats      map[string]PairStat `json:"bw_stats,omitempty"`
}

// NodeStore persists one document per node outside of process memory.
type NodeStore interface {
	// PutNode writes doc, replacing any existing document for doc.ID.
	PutNode(doc NodeDocument) error
	// PutStat durably records stat under key for the given node.
	PutStat(nodeID, key string, stat PairStat) error
	// Stats calls fn for every statistic recorded for nodeID.
	Stats(nodeID string, fn func(key string, stat PairStat) error) error
	Close() error
}

// Document renders the node's externalized form without statistics.
func (n *Node) Document() (NodeDocument, error) {
	attrs, err := json.Marshal(n.Attrs)
	if err != nil {
		return NodeDocument{}, fmt.Errorf("marshal attributes of %s: %w", n.ID, err)
	}
	return NodeDocument{ID: n.ID, Kind: n.Kind(), Attributes: attrs}, nil
}

// WriteNodeFiles writes one document per node to store and attaches the
// store to the graph for the exact path statistics pass.
func (g *Graph) WriteNodeFiles(store NodeStore) error {
	if err := g.Begin(OpWriteNodeFiles); err != nil {
		return err
	}
	timer := logging.StartTimer(g.logger, "node files written", logging.Count(len(g.nodes)))
	for _, n := range g.nodes {
		doc, err := n.Document()
		if err != nil {
			timer.EndError(err)
			return err
		}
		if err := store.PutNode(doc); err != nil {
			timer.EndError(err)
			return err
		}
	}
	timer.End()
	g.store = store
	g.phases &^= PhasePathStatsAccumulated
	g.Complete(OpWriteNodeFiles)
	return nil
}
