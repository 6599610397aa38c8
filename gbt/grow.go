package gbt

import (
	"math"

	"github.com/YuminosukeSato/gbforecast/core/parallel"
)

type histBin struct {
	g, h float64
	n    int
}

type splitInfo struct {
	valid       bool
	feature     int
	bin         int
	defaultLeft bool
	gain        float64
}

type leafState struct {
	rows       []int
	sumG, sumH float64
	depth      int
	node       int
	hist       [][]histBin
	split      splitInfo
}

// grower builds one tree leaf-wise: the leaf with the largest gain is split
// next until num_leaves is reached or no leaf has a valid split.
type grower struct {
	ds       *dataset
	p        Params
	grad     []float64
	hess     []float64
	features []int
	workers  int

	// nodeBins holds the split bin of each internal node, so trees can be
	// applied to the binned training rows.
	nodeBins []int
}

func (g *grower) grow(rows []int) Tree {
	tree := Tree{}
	g.nodeBins = g.nodeBins[:0]

	root := &leafState{rows: rows}
	for _, r := range rows {
		root.sumG += g.grad[r]
		root.sumH += g.hess[r]
	}
	root.node = g.addNode(&tree, root)
	root.hist = g.buildHist(rows)
	g.findSplit(root)

	leaves := []*leafState{root}
	for len(leaves) < g.p.NumLeaves {
		best := -1
		for i, l := range leaves {
			if l.split.valid && (best < 0 || l.split.gain > leaves[best].split.gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		left, right := g.split(&tree, leaves[best])
		leaves[best] = left
		leaves = append(leaves, right)
	}
	return tree
}

func (g *grower) addNode(tree *Tree, l *leafState) int {
	tree.Nodes = append(tree.Nodes, Node{
		Feature: -1,
		Left:    -1,
		Right:   -1,
		Value:   g.leafValue(l.sumG, l.sumH) * g.p.LearningRate,
		Count:   len(l.rows),
	})
	g.nodeBins = append(g.nodeBins, -1)
	return len(tree.Nodes) - 1
}

func (g *grower) split(tree *Tree, l *leafState) (*leafState, *leafState) {
	s := l.split
	bins := g.ds.bins[s.feature]
	missing := uint32(g.ds.mappers[s.feature].missingBin())
	var leftRows, rightRows []int
	for _, r := range l.rows {
		b := bins[r]
		goLeft := b <= uint32(s.bin)
		if b == missing {
			goLeft = s.defaultLeft
		}
		if goLeft {
			leftRows = append(leftRows, r)
		} else {
			rightRows = append(rightRows, r)
		}
	}

	left := &leafState{rows: leftRows, depth: l.depth + 1}
	right := &leafState{rows: rightRows, depth: l.depth + 1}
	for _, c := range []*leafState{left, right} {
		for _, r := range c.rows {
			c.sumG += g.grad[r]
			c.sumH += g.hess[r]
		}
	}

	// histogram of the smaller child is built, the larger one is derived
	small, large := left, right
	if len(rightRows) < len(leftRows) {
		small, large = right, left
	}
	small.hist = g.buildHist(small.rows)
	large.hist = make([][]histBin, len(l.hist))
	for _, f := range g.features {
		parent := l.hist[f]
		h := make([]histBin, len(parent))
		for k := range parent {
			h[k] = histBin{
				g: parent[k].g - small.hist[f][k].g,
				h: parent[k].h - small.hist[f][k].h,
				n: parent[k].n - small.hist[f][k].n,
			}
		}
		large.hist[f] = h
	}
	l.hist = nil

	n := &tree.Nodes[l.node]
	n.Feature = s.feature
	n.Threshold = g.ds.mappers[s.feature].upper[s.bin]
	if math.IsInf(n.Threshold, 1) {
		// only missing values go right
		n.Threshold = math.MaxFloat64
	}
	n.DefaultLeft = s.defaultLeft
	n.Gain = s.gain
	g.nodeBins[l.node] = s.bin

	left.node = g.addNode(tree, left)
	right.node = g.addNode(tree, right)
	tree.Nodes[l.node].Left = left.node
	tree.Nodes[l.node].Right = right.node

	g.findSplit(left)
	g.findSplit(right)
	return left, right
}

func (g *grower) buildHist(rows []int) [][]histBin {
	hist := make([][]histBin, len(g.ds.bins))
	parallel.ParallelizeWithThreshold(len(g.features), 1, g.workers, func(start, end int) {
		for _, f := range g.features[start:end] {
			h := make([]histBin, g.ds.mappers[f].numBins())
			bins := g.ds.bins[f]
			for _, r := range rows {
				b := &h[bins[r]]
				b.g += g.grad[r]
				b.h += g.hess[r]
				b.n++
			}
			hist[f] = h
		}
	})
	return hist
}

// findSplit searches every sampled feature in parallel and keeps the best
// split whose gain exceeds gamma.
func (g *grower) findSplit(l *leafState) {
	l.split = splitInfo{}
	if g.p.MaxDepth > 0 && l.depth >= g.p.MaxDepth {
		return
	}
	if len(l.rows) < 2*g.p.MinChildSamples {
		return
	}
	parentScore := g.score(l.sumG, l.sumH)
	results := make([]splitInfo, len(g.features))
	parallel.ParallelizeWithThreshold(len(g.features), 1, g.workers, func(start, end int) {
		for i := start; i < end; i++ {
			results[i] = g.bestForFeature(l, g.features[i], parentScore)
		}
	})
	for _, s := range results {
		if s.valid && (!l.split.valid || s.gain > l.split.gain) {
			l.split = s
		}
	}
}

func (g *grower) bestForFeature(l *leafState, f int, parentScore float64) splitInfo {
	h := l.hist[f]
	missing := h[len(h)-1]
	best := splitInfo{}
	var cumG, cumH float64
	cumN := 0
	for b := 0; b < len(h)-1; b++ {
		cumG += h[b].g
		cumH += h[b].h
		cumN += h[b].n
		for _, defaultLeft := range []bool{true, false} {
			if !defaultLeft && missing.n == 0 {
				continue
			}
			lg, lh, ln := cumG, cumH, cumN
			if defaultLeft {
				lg += missing.g
				lh += missing.h
				ln += missing.n
			}
			rg, rh, rn := l.sumG-lg, l.sumH-lh, len(l.rows)-ln
			if ln < g.p.MinChildSamples || rn < g.p.MinChildSamples {
				continue
			}
			if lh < g.p.MinChildWeight || rh < g.p.MinChildWeight {
				continue
			}
			gain := 0.5 * (g.score(lg, lh) + g.score(rg, rh) - parentScore)
			if gain > g.p.Gamma && gain > 1e-12 && (!best.valid || gain > best.gain) {
				best = splitInfo{valid: true, feature: f, bin: b, defaultLeft: defaultLeft, gain: gain}
			}
		}
	}
	return best
}

// thresholdL1 applies the L1 penalty to a gradient sum.
func (g *grower) thresholdL1(sum float64) float64 {
	a := g.p.RegAlpha
	if a <= 0 {
		return sum
	}
	if sum > a {
		return sum - a
	}
	if sum < -a {
		return sum + a
	}
	return 0
}

func (g *grower) score(sumG, sumH float64) float64 {
	t := g.thresholdL1(sumG)
	denom := sumH + g.p.RegLambda
	if denom <= 0 {
		return 0
	}
	return t * t / denom
}

func (g *grower) leafValue(sumG, sumH float64) float64 {
	denom := sumH + g.p.RegLambda + 1e-10
	v := -g.thresholdL1(sumG) / denom
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// predictBinned applies tree to training row r using the binned values.
func (g *grower) predictBinned(tree *Tree, nodeBins []int, r int) float64 {
	id := 0
	for {
		n := &tree.Nodes[id]
		if n.IsLeaf() {
			return n.Value
		}
		b := g.ds.bins[n.Feature][r]
		switch {
		case int(b) == g.ds.mappers[n.Feature].missingBin():
			if n.DefaultLeft {
				id = n.Left
			} else {
				id = n.Right
			}
		case int(b) <= nodeBins[id]:
			id = n.Left
		default:
			id = n.Right
		}
	}
}
