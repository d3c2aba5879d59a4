package ml

import (
	"math/rand"
	"sort"
)

// treeNode is one node of a regression tree. Leaves have Feature == -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// RegressionTree is a CART tree grown to purity with the squared-error
// criterion. Rows with x[Feature] <= Threshold go left.
type RegressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeBuilder struct {
	x     [][]float64
	y     []float64
	rng   *rand.Rand
	nodes []treeNode
}

// growTree fits a tree on the rows listed in sample (duplicates allowed).
func growTree(x [][]float64, y []float64, sample []int, rng *rand.Rand) *RegressionTree {
	b := &treeBuilder{x: x, y: y, rng: rng}
	b.build(sample)
	return &RegressionTree{Nodes: b.nodes}
}

func (b *treeBuilder) build(sample []int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: -1, Value: b.mean(sample)})

	if len(sample) < 2 || b.pure(sample) {
		return id
	}

	feature, threshold, ok := b.bestSplit(sample)
	if !ok {
		return id
	}

	left := make([]int, 0, len(sample))
	right := make([]int, 0, len(sample))
	for _, i := range sample {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left)
	r := b.build(right)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit scans every feature, visited in a random order, and returns the
// threshold that maximizes the reduction in squared error. The first best
// candidate wins ties.
func (b *treeBuilder) bestSplit(sample []int) (int, float64, bool) {
	n := len(sample)
	order := make([]int, n)
	bestScore, bestFeature, bestThreshold := 0.0, -1, 0.0
	found := false

	total := 0.0
	for _, i := range sample {
		total += b.y[i]
	}

	for _, f := range b.rng.Perm(len(b.x[sample[0]])) {
		copy(order, sample)
		sort.SliceStable(order, func(p, q int) bool {
			return b.x[order[p]][f] < b.x[order[q]][f]
		})

		leftSum := 0.0
		for k := 0; k < n-1; k++ {
			leftSum += b.y[order[k]]
			lo, hi := b.x[order[k]][f], b.x[order[k+1]][f]
			if lo >= hi {
				continue
			}
			nl, nr := float64(k+1), float64(n-k-1)
			rightSum := total - leftSum
			score := leftSum*leftSum/nl + rightSum*rightSum/nr
			if !found || score > bestScore {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestScore, bestFeature, bestThreshold = score, f, threshold
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func (b *treeBuilder) mean(sample []int) float64 {
	if len(sample) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range sample {
		sum += b.y[i]
	}
	return sum / float64(len(sample))
}

func (b *treeBuilder) pure(sample []int) bool {
	first := b.y[sample[0]]
	for _, i := range sample[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// Predict walks the tree for one row.
func (t *RegressionTree) Predict(row []float64) float64 {
	id := 0
	for {
		n := t.Nodes[id]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			id = n.Left
		} else {
			id = n.Right
		}
	}
}
