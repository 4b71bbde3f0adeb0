// Copyright 2026 bubbly Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gbdt

import (
	"context"
	"io"
	"sort"

	"github.com/bubbly-io/recommender/base/encoding"
	"github.com/bubbly-io/recommender/base/log"
	"github.com/bubbly-io/recommender/common/parallel"
	"github.com/bubbly-io/recommender/dataset"
	"github.com/bubbly-io/recommender/model"
	"github.com/bubbly-io/recommender/model/feature"
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const header = "gbdt"

type FitConfig struct {
	Jobs    int
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// Node of a regression tree. A node is a leaf if Left is negative. Samples with
// x[Feature] < Threshold go to the left child.
type Node struct {
	Feature   int32
	Threshold float32
	Left      int32
	Right     int32
	Value     float32
}

// Tree is a regression tree stored as a flat list of nodes. The root is the first node.
type Tree struct {
	Nodes []Node
}

func (tree *Tree) predict(x *feature.Vector) float32 {
	i := 0
	for tree.Nodes[i].Left >= 0 {
		node := &tree.Nodes[i]
		if x[node.Feature] < node.Threshold {
			i = int(node.Left)
		} else {
			i = int(node.Right)
		}
	}
	return tree.Nodes[i].Value
}

// GBDT is a binary classifier of gradient boosted regression trees minimizing the logistic loss.
type GBDT struct {
	model.BaseModel
	Trees []Tree

	// Hyper parameters
	nEstimators    int
	maxDepth       int
	lr             float32
	lambda         float32
	gamma          float32
	minChildWeight float32
	scalePosWeight float32
}

var _ model.Model = (*GBDT)(nil)

func NewGBDT(params model.Params) *GBDT {
	m := new(GBDT)
	m.SetParams(params)
	return m
}

func (m *GBDT) SetParams(params model.Params) {
	m.BaseModel.SetParams(params)
	m.nEstimators = m.Params.GetInt(model.NEstimators, 100)
	m.maxDepth = m.Params.GetInt(model.MaxDepth, 6)
	m.lr = m.Params.GetFloat32(model.Lr, 0.1)
	m.lambda = m.Params.GetFloat32(model.Lambda, 1)
	m.gamma = m.Params.GetFloat32(model.Gamma, 0)
	m.minChildWeight = m.Params.GetFloat32(model.MinChildWeight, 1)
	m.scalePosWeight = m.Params.GetFloat32(model.ScalePosWeight, 1)
}

func (m *GBDT) Clear() {
	m.Trees = nil
}

func (m *GBDT) Invalid() bool {
	return m == nil || len(m.Trees) == 0
}

// PredictMargin returns the raw score before the sigmoid.
func (m *GBDT) PredictMargin(x feature.Vector) float32 {
	var margin float32
	for i := range m.Trees {
		margin += m.Trees[i].predict(&x)
	}
	return margin
}

// Predict returns the probability of the positive class.
func (m *GBDT) Predict(x feature.Vector) float32 {
	return sigmoid(m.PredictMargin(x))
}

// BatchPredict predicts probabilities of the positive class on jobs goroutines.
func (m *GBDT) BatchPredict(xs []feature.Vector, jobs int) []float32 {
	predictions := make([]float32, len(xs))
	_ = parallel.Parallel(context.Background(), len(xs), jobs, func(_, i int) error {
		predictions[i] = m.Predict(xs[i])
		return nil
	})
	return predictions
}

// Fit trains trees on the training set. The test set is evaluated for logging only.
func (m *GBDT) Fit(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) (Score, error) {
	config = config.LoadDefaultIfNil()
	log.Logger().Info("fit gbdt",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("test_set_size", testSet.Count()),
		zap.Any("params", m.GetParams()),
		zap.Any("config", config))
	m.Trees = nil
	n := trainSet.Count()
	if n == 0 {
		return Score{}, errors.Trace(dataset.ErrInsufficientData)
	}

	// sort samples by every feature once
	sorted := make([][]int32, feature.NumFields)
	for f := range sorted {
		sorted[f] = make([]int32, n)
		for i := range sorted[f] {
			sorted[f][i] = int32(i)
		}
		sort.SliceStable(sorted[f], func(a, b int) bool {
			return trainSet.Features[sorted[f][a]][f] < trainSet.Features[sorted[f][b]][f]
		})
	}
	weights := make([]float32, n)
	for i, y := range trainSet.Target {
		weights[i] = 1
		if y > 0 {
			weights[i] = m.scalePosWeight
		}
	}

	margins := make([]float32, n)
	grad := make([]float32, n)
	hess := make([]float32, n)
	for t := 0; t < m.nEstimators; t++ {
		if err := ctx.Err(); err != nil {
			return Score{}, errors.Trace(err)
		}
		for i, y := range trainSet.Target {
			p := sigmoid(margins[i])
			grad[i] = weights[i] * (p - y)
			hess[i] = weights[i] * math32.Max(p*(1-p), 1e-16)
		}
		builder := &treeBuilder{
			GBDT:     m,
			features: trainSet.Features,
			grad:     grad,
			hess:     hess,
			jobs:     config.Jobs,
		}
		tree, err := builder.build(ctx, sorted)
		if err != nil {
			return Score{}, errors.Trace(err)
		}
		m.Trees = append(m.Trees, tree)
		for i := range margins {
			margins[i] += tree.predict(&trainSet.Features[i])
		}
		if config.Verbose > 0 && (t+1)%config.Verbose == 0 {
			log.Logger().Debug("fit gbdt",
				zap.Int("tree", t+1),
				zap.Int("nodes", len(tree.Nodes)),
				zap.Float32("train_loss", logLoss(margins, trainSet.Target, weights)))
		}
	}
	score := Evaluate(m, testSet)
	log.Logger().Info("fit gbdt complete", score.ZapFields()...)
	return score, nil
}

type split struct {
	feature   int
	threshold float32
	gain      float32
}

type treeBuilder struct {
	*GBDT
	features []feature.Vector
	grad     []float32
	hess     []float32
	jobs     int
	nodes    []Node
}

func (b *treeBuilder) build(ctx context.Context, sorted [][]int32) (Tree, error) {
	if err := b.grow(ctx, sorted, 0); err != nil {
		return Tree{}, errors.Trace(err)
	}
	return Tree{Nodes: b.nodes}, nil
}

// grow appends the subtree of samples in sorted. The subtree root is the next node.
func (b *treeBuilder) grow(ctx context.Context, sorted [][]int32, depth int) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	var sumGrad, sumHess float32
	for _, i := range sorted[0] {
		sumGrad += b.grad[i]
		sumHess += b.hess[i]
	}
	index := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: -sumGrad / (sumHess + b.lambda) * b.lr})
	if depth >= b.maxDepth || sumHess < 2*b.minChildWeight || len(sorted[0]) < 2 {
		return nil
	}

	// find the best split of every feature in parallel
	best := make([]split, len(sorted))
	if err := parallel.Parallel(ctx, len(sorted), b.jobs, func(_, f int) error {
		best[f] = b.findSplit(f, sorted[f], sumGrad, sumHess)
		return nil
	}); err != nil {
		return errors.Trace(err)
	}
	bestSplit := split{feature: -1}
	for _, s := range best {
		if s.feature >= 0 && (bestSplit.feature < 0 || s.gain > bestSplit.gain) {
			bestSplit = s
		}
	}
	if bestSplit.feature < 0 || bestSplit.gain <= 0 {
		return nil
	}

	// partition samples and keep them sorted
	left := make([][]int32, len(sorted))
	right := make([][]int32, len(sorted))
	for f := range sorted {
		for _, i := range sorted[f] {
			if b.features[i][bestSplit.feature] < bestSplit.threshold {
				left[f] = append(left[f], i)
			} else {
				right[f] = append(right[f], i)
			}
		}
	}
	b.nodes[index].Feature = int32(bestSplit.feature)
	b.nodes[index].Threshold = bestSplit.threshold
	b.nodes[index].Left = int32(len(b.nodes))
	if err := b.grow(ctx, left, depth+1); err != nil {
		return errors.Trace(err)
	}
	b.nodes[index].Right = int32(len(b.nodes))
	return b.grow(ctx, right, depth+1)
}

// findSplit scans samples sorted by feature f and returns the split with the largest gain.
func (b *treeBuilder) findSplit(f int, sorted []int32, sumGrad, sumHess float32) split {
	best := split{feature: -1}
	parentScore := sumGrad * sumGrad / (sumHess + b.lambda)
	var leftGrad, leftHess float32
	for j := 0; j < len(sorted)-1; j++ {
		i := sorted[j]
		leftGrad += b.grad[i]
		leftHess += b.hess[i]
		value, next := b.features[i][f], b.features[sorted[j+1]][f]
		if value == next {
			continue
		}
		rightGrad, rightHess := sumGrad-leftGrad, sumHess-leftHess
		if leftHess < b.minChildWeight || rightHess < b.minChildWeight {
			continue
		}
		gain := 0.5*(leftGrad*leftGrad/(leftHess+b.lambda)+rightGrad*rightGrad/(rightHess+b.lambda)-parentScore) - b.gamma
		if best.feature < 0 || gain > best.gain {
			best = split{feature: f, threshold: value + (next-value)/2, gain: gain}
		}
	}
	return best
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func logLoss(margins, target, weights []float32) float32 {
	var sum, total float32
	for i, y := range target {
		p := math32.Min(math32.Max(sigmoid(margins[i]), 1e-7), 1-1e-7)
		sum -= weights[i] * (y*math32.Log(p) + (1-y)*math32.Log(1-p))
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// state is the persisted form of a GBDT.
type state struct {
	Params model.Params
	Trees  []Tree
}

func (m *GBDT) Marshal(w io.Writer) error {
	return encoding.WriteGob(w, state{Params: m.Params, Trees: m.Trees})
}

func (m *GBDT) Unmarshal(r io.Reader) error {
	var s state
	if err := encoding.ReadGob(r, &s); err != nil {
		return errors.Trace(err)
	}
	m.SetParams(s.Params)
	m.Trees = s.Trees
	return nil
}

// MarshalModel writes a header followed by the model.
func MarshalModel(w io.Writer, m *GBDT) error {
	if err := encoding.WriteString(w, header); err != nil {
		return errors.Trace(err)
	}
	return m.Marshal(w)
}

func UnmarshalModel(r io.Reader) (*GBDT, error) {
	h, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if h != header {
		return nil, errors.Errorf("unknown model: %v", h)
	}
	var m GBDT
	if err = m.Unmarshal(r); err != nil {
		return nil, errors.Trace(err)
	}
	return &m, nil
}
