package predictor

// Node is one node of a regression tree stored in a flat slice. Leaves
// carry the (learning-rate scaled) output; internal nodes route x to Left
// when x[Feature] < Threshold.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for x.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// treeBuilder grows one tree with exact greedy splits on second-order
// gradient statistics.
type treeBuilder struct {
	X      [][]float64
	grad   []float64
	hess   []float64
	cols   []int
	cfg    GBMConfig
	goLeft []bool
	nodes  []Node
}

// build grows the subtree for the rows in sorted, where sorted[k] lists the
// node's rows ordered by feature cols[k]. It returns the node index.
func (b *treeBuilder) build(sorted [][]int, depth int) int {
	rows := sorted[0]
	var G, H float64
	for _, i := range rows {
		G += b.grad[i]
		H += b.hess[i]
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Leaf: true, Value: -G / (H + b.cfg.Lambda) * b.cfg.LearningRate})
	if depth >= b.cfg.MaxDepth || len(rows) < 2 {
		return idx
	}

	parent := G * G / (H + b.cfg.Lambda)
	bestGain, bestK, bestPos := 0.0, -1, -1
	for k, f := range b.cols {
		list := sorted[k]
		var GL, HL float64
		for pos := 0; pos < len(list)-1; pos++ {
			i := list[pos]
			GL += b.grad[i]
			HL += b.hess[i]
			if b.X[i][f] == b.X[list[pos+1]][f] {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < b.cfg.MinChildWeight || HR < b.cfg.MinChildWeight {
				continue
			}
			gain := 0.5*(GL*GL/(HL+b.cfg.Lambda)+GR*GR/(HR+b.cfg.Lambda)-parent) - b.cfg.Gamma
			if gain > bestGain {
				bestGain, bestK, bestPos = gain, k, pos
			}
		}
	}
	if bestK < 0 {
		return idx
	}

	f := b.cols[bestK]
	split := sorted[bestK]
	threshold := (b.X[split[bestPos]][f] + b.X[split[bestPos+1]][f]) / 2

	for _, i := range rows {
		b.goLeft[i] = b.X[i][f] < threshold
	}
	left := make([][]int, len(sorted))
	right := make([][]int, len(sorted))
	for k, list := range sorted {
		l := make([]int, 0, bestPos+1)
		r := make([]int, 0, len(list)-bestPos-1)
		for _, i := range list {
			if b.goLeft[i] {
				l = append(l, i)
			} else {
				r = append(r, i)
			}
		}
		left[k], right[k] = l, r
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	b.nodes[idx] = Node{Feature: f, Threshold: threshold, Left: leftIdx, Right: rightIdx}
	return idx
}
