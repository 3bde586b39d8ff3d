package models

import (
	"encoding/json"
	"fmt"
)

// Workflow is a persisted workflow document: a graph of typed nodes and the
// edges connecting their handles, plus the settings that govern a run.
type Workflow struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Version   int                    `json:"version"`
	Nodes     []*Node                `json:"nodes"`
	Edges     []*Edge                `json:"edges"`
	Settings  Settings               `json:"settings"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// ErrorHandlingMode governs how the scheduler reacts to a node failure.
type ErrorHandlingMode string

const (
	ErrorHandlingStop        ErrorHandlingMode = "stop"
	ErrorHandlingContinue    ErrorHandlingMode = "continue"
	ErrorHandlingSkipBranch  ErrorHandlingMode = "skip-branch"
)

// Settings governs execution of a workflow run. Zero values are normalized by
// DefaultSettings.
type Settings struct {
	ErrorHandling ErrorHandlingMode `json:"error_handling"`
	RetryCount    int               `json:"retry_count"`
	RetryDelayMs  int               `json:"retry_delay_ms"`
	TimeoutS      int               `json:"timeout_s"`
	ParallelLimit int               `json:"parallel_limit"`
}

// DefaultSettings mirrors the zero-value-safe defaults a workflow document
// gets when it omits settings entirely.
func DefaultSettings() Settings {
	return Settings{
		ErrorHandling: ErrorHandlingStop,
		RetryCount:    0,
		RetryDelayMs:  0,
		TimeoutS:      0,
		ParallelLimit: 1,
	}
}

// Node is a single typed unit of work in the workflow graph.
type Node struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Config   map[string]interface{} `json:"config"`
	Label    string                 `json:"label,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Edge connects a source node's output handle to a target node's input handle.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"source_handle"`
	Target       string `json:"target"`
	TargetHandle string `json:"target_handle"`
}

// Validate checks the node in isolation, independent of the rest of the graph.
func (n *Node) Validate() error {
	if n.ID == "" {
		return &ValidationError{Field: "id", Message: "node ID is required"}
	}
	if n.Type == "" {
		return &ValidationError{Field: "type", Message: "node type is required"}
	}
	return nil
}

// Validate checks the edge in isolation, independent of the rest of the graph.
func (e *Edge) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Message: "edge ID is required"}
	}
	if e.Source == "" {
		return &ValidationError{Field: "source", Message: "edge source is required"}
	}
	if e.Target == "" {
		return &ValidationError{Field: "target", Message: "edge target is required"}
	}
	return nil
}

// Validate checks the workflow document in isolation: unique ids, edges
// pointing at existing nodes. Handle-compatibility and cycle checks belong to
// the Compiler (pkg/dag), which needs the block type registry to do them.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if len(w.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Message: "at least one node is required"}
	}

	nodeIDs := make(map[string]bool, len(w.Nodes))
	for _, node := range w.Nodes {
		if err := node.Validate(); err != nil {
			return err
		}
		if nodeIDs[node.ID] {
			return &ValidationError{Field: "nodes", Message: fmt.Sprintf("duplicate node ID: %s", node.ID)}
		}
		nodeIDs[node.ID] = true
	}

	edgeIDs := make(map[string]bool, len(w.Edges))
	for _, edge := range w.Edges {
		if err := edge.Validate(); err != nil {
			return err
		}
		if edgeIDs[edge.ID] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("duplicate edge ID: %s", edge.ID)}
		}
		edgeIDs[edge.ID] = true
		if !nodeIDs[edge.Source] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge %s references non-existent source node: %s", edge.ID, edge.Source)}
		}
		if !nodeIDs[edge.Target] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge %s references non-existent target node: %s", edge.ID, edge.Target)}
		}
	}

	return nil
}

// GetNode returns a node by ID.
func (w *Workflow) GetNode(nodeID string) (*Node, error) {
	for _, node := range w.Nodes {
		if node.ID == nodeID {
			return node, nil
		}
	}
	return nil, ErrNodeNotFound
}

// GetEdge returns an edge by ID.
func (w *Workflow) GetEdge(edgeID string) (*Edge, error) {
	for _, edge := range w.Edges {
		if edge.ID == edgeID {
			return edge, nil
		}
	}
	return nil, ErrEdgeNotFound
}

// AddNode appends a node after validating it and checking for a duplicate ID.
func (w *Workflow) AddNode(node *Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	for _, n := range w.Nodes {
		if n.ID == node.ID {
			return &ValidationError{Field: "id", Message: "node ID already exists"}
		}
	}
	w.Nodes = append(w.Nodes, node)
	return nil
}

// AddEdge appends an edge after validating it and checking endpoints exist.
func (w *Workflow) AddEdge(edge *Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	if _, err := w.GetNode(edge.Source); err != nil {
		return &ValidationError{Field: "source", Message: "source node does not exist"}
	}
	if _, err := w.GetNode(edge.Target); err != nil {
		return &ValidationError{Field: "target", Message: "target node does not exist"}
	}
	for _, e := range w.Edges {
		if e.ID == edge.ID {
			return &ValidationError{Field: "id", Message: "edge ID already exists"}
		}
	}
	w.Edges = append(w.Edges, edge)
	return nil
}

// RemoveNode removes a node and every edge touching it.
func (w *Workflow) RemoveNode(nodeID string) error {
	found := false
	for i, node := range w.Nodes {
		if node.ID == nodeID {
			w.Nodes = append(w.Nodes[:i], w.Nodes[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return ErrNodeNotFound
	}

	var edges []*Edge
	for _, edge := range w.Edges {
		if edge.Source != nodeID && edge.Target != nodeID {
			edges = append(edges, edge)
		}
	}
	w.Edges = edges
	return nil
}

// RemoveEdge removes a single edge by ID.
func (w *Workflow) RemoveEdge(edgeID string) error {
	for i, edge := range w.Edges {
		if edge.ID == edgeID {
			w.Edges = append(w.Edges[:i], w.Edges[i+1:]...)
			return nil
		}
	}
	return ErrEdgeNotFound
}

// Clone deep-copies the workflow via a JSON round trip.
func (w *Workflow) Clone() (*Workflow, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var clone Workflow
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}
