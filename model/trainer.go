package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrNotEnoughExamples 样本不足，不产出新快照。
var ErrNotEnoughExamples = errors.New("model: not enough training examples")

// Example 是一条训练样本：曝光时刻的特征，以及是否被点击。
type Example struct {
	Features map[string]float64
	Label    float64 // 1 点击，0 未点击
}

// Trainer 用 SGD 训练带 L2 正则的逻辑回归。
// 样本按给定顺序遍历，特征按名字排序累加，同样的输入得到逐位相同的权重。
type Trainer struct {
	Epochs       int
	LearningRate float64
	L2           float64
	MinExamples  int
}

func DefaultTrainer() *Trainer {
	return &Trainer{
		Epochs:       20,
		LearningRate: 0.1,
		L2:           1e-4,
		MinExamples:  50,
	}
}

// Fit 训练并返回新快照。Version 由 FittedAt 生成。
func (t *Trainer) Fit(examples []Example, now time.Time) (*Snapshot, error) {
	if len(examples) == 0 || len(examples) < t.MinExamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughExamples, len(examples), t.MinExamples)
	}

	names := featureNames(examples)
	// 稠密化：第 i 维对应 names[i]，样本缺失的特征不参与该样本的更新
	type row struct {
		x       []float64
		present []bool
		label   float64
	}
	rows := make([]row, len(examples))
	for i, ex := range examples {
		r := row{x: make([]float64, len(names)), present: make([]bool, len(names)), label: ex.Label}
		for j, n := range names {
			r.x[j], r.present[j] = ex.Features[n]
		}
		rows[i] = r
	}

	w := make([]float64, len(names))
	var bias float64

	epochs := t.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	for e := 0; e < epochs; e++ {
		for _, r := range rows {
			z := bias
			for j := range w {
				if r.present[j] {
					z += w[j] * r.x[j]
				}
			}
			grad := sigmoid(z) - r.label
			bias -= t.LearningRate * grad
			for j := range w {
				if r.present[j] {
					w[j] -= t.LearningRate * (grad*r.x[j] + t.L2*w[j])
				}
			}
		}
	}

	weights := make(map[string]float64, len(names))
	for j, n := range names {
		if math.IsNaN(w[j]) || math.IsInf(w[j], 0) {
			return nil, fmt.Errorf("model: weight %s diverged", n)
		}
		weights[n] = w[j]
	}

	return &Snapshot{
		Version:  "lr-" + now.UTC().Format("20060102T150405Z"),
		Bias:     bias,
		Weights:  weights,
		FittedAt: now,
		Examples: len(examples),
	}, nil
}

func featureNames(examples []Example) []string {
	set := make(map[string]struct{})
	for _, ex := range examples {
		for k := range ex.Features {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
