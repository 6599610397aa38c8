package gbt

import "math"

// Node is one node of a regression tree. Leaves have Left == Right == -1.
type Node struct {
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold"`
	DefaultLeft bool    `json:"default_left"`
	Gain        float64 `json:"gain"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
	Value       float64 `json:"value"`
	Count       int     `json:"count"`
}

// IsLeaf reports whether the node is terminal.
func (n *Node) IsLeaf() bool { return n.Left == -1 && n.Right == -1 }

// Tree is a single tree of the ensemble. Leaf values already include the
// learning rate.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict returns the leaf value reached by row. Values x <= Threshold go
// left; missing values follow DefaultLeft.
func (t *Tree) Predict(row []float64) float64 {
	id := 0
	for id >= 0 && id < len(t.Nodes) {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return n.Value
		}
		x := row[n.Feature]
		switch {
		case math.IsNaN(x):
			if n.DefaultLeft {
				id = n.Left
			} else {
				id = n.Right
			}
		case x <= n.Threshold:
			id = n.Left
		default:
			id = n.Right
		}
	}
	return 0
}

// NumLeaves counts the leaves of the tree.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Depth is the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(id int) int
	walk = func(id int) int {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}
