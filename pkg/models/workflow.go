package models

import "time"

// GraphSubmission is a client-submitted graph using submission-scoped ids.
type GraphSubmission struct {
	Nodes []SubmissionNode `json:"nodes" validate:"dive"`
	Edges []SubmissionEdge `json:"edges" validate:"dive"`
}

// Graph is a set of persisted nodes and edges.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// NodeIDs returns the storage ids of the graph's nodes.
func (g *Graph) NodeIDs() []StorageID {
	ids := make([]StorageID, 0, len(g.Nodes))
	for _, node := range g.Nodes {
		ids = append(ids, node.ID)
	}

	return ids
}

// EdgeIDs returns the storage ids of the graph's edges.
func (g *Graph) EdgeIDs() []StorageID {
	ids := make([]StorageID, 0, len(g.Edges))
	for _, edge := range g.Edges {
		ids = append(ids, edge.ID)
	}

	return ids
}

// Workflow is a client graph. It exclusively owns the referenced nodes and edges.
type Workflow struct {
	ID          StorageID   `json:"id"`
	Label       string      `json:"label"`
	SubmittedBy Identity    `json:"submittedBy"`
	NodeIDs     []StorageID `json:"nodeIds"`
	EdgeIDs     []StorageID `json:"edgeIds"`
	State       NodeState   `json:"state"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func (w *Workflow) DocumentID() StorageID      { return w.ID }
func (w *Workflow) SetDocumentID(id StorageID) { w.ID = id }

// OwnedBy reports whether the identity matches the client that created the workflow.
func (w *Workflow) OwnedBy(identity Identity) bool {
	return identity.Matches(w.SubmittedBy)
}

// WorkflowGraph is a workflow with its nodes and edges loaded.
type WorkflowGraph struct {
	*Workflow

	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Bundle is a catalog graph template offered to clients.
type Bundle struct {
	ID          StorageID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	NodeIDs     []StorageID `json:"nodeIds"`
	EdgeIDs     []StorageID `json:"edgeIds"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func (b *Bundle) DocumentID() StorageID      { return b.ID }
func (b *Bundle) SetDocumentID(id StorageID) { b.ID = id }

// BundleGraph is a bundle with its nodes and edges loaded.
type BundleGraph struct {
	*Bundle

	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}
