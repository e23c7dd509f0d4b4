// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Attack sbox lookup of first round of AES-128 using correlation power analysis.
// https://wiki.newae.com/Correlation_Power_Analysis
package gocpa

import (
	"context"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// TraceSet holds one #traces x #samples matrix per key byte position. Sample
// counts may differ between positions.
type TraceSet []*mat.Dense

// HypothesisScore is the best correlation a key hypothesis reached over all
// sample indices of one byte position.
type HypothesisScore struct {
	Key         byte    `json:"key"`
	Correlation float64 `json:"corr"`
	Location    int     `json:"loc"`
	// Defined is false when every sample produced an undefined correlation.
	// Correlation is 0 and Location is -1 in that case.
	Defined bool `json:"defined"`
	// Undefined counts the samples with an undefined correlation.
	Undefined int `json:"undefined"`
}

func (s HypothesisScore) String() string {
	return fmt.Sprintf("<Key:0x%02x, Corr:%f, Loc: %d>", s.Key, s.Correlation, s.Location)
}

// better is the total order used to pick winners: undefined scores lose to
// defined ones, and equal scores keep the earlier candidate.
func (s HypothesisScore) better(o HypothesisScore) bool {
	if !s.Defined {
		return false
	}
	return !o.Defined || s.Correlation > o.Correlation
}

type KeyByteResult struct {
	Position    int     `json:"position"`
	Key         byte    `json:"key"`
	Correlation float64 `json:"corr"`
	Location    int     `json:"loc"`
	// Scores has one entry per hypothesis, indexed by hypothesis value.
	Scores []HypothesisScore `json:"scores"`
	// Undefined is the number of undefined (hypothesis, sample) correlations.
	Undefined int `json:"undefined"`
}

func (r KeyByteResult) String() string {
	return fmt.Sprintf("<Key:0x%02x, Corr:%f, Loc: %d>", r.Key, r.Correlation, r.Location)
}

// Rank returns the position of key in the scores ordered best first, 0 being
// the recovered byte. Returns -1 if key has no score.
func (r KeyByteResult) Rank(key byte) int {
	order := make([]HypothesisScore, len(r.Scores))
	copy(order, r.Scores)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].better(order[j])
	})
	for i, s := range order {
		if s.Key == key {
			return i
		}
	}
	return -1
}

type Result struct {
	// Key has KeyBytes entries. Positions that were not attacked are zero.
	Key   []byte          `json:"key"`
	Bytes []KeyByteResult `json:"bytes"`
}

func (r *Result) KeyHex() string {
	return hex.EncodeToString(r.Key)
}

//go:generate mockgen -destination=mocks/reporter.go -package=mocks github.com/google/gocpa Reporter
type Reporter interface {
	ByteStarted(position int)
	ByteDone(result KeyByteResult)
}

// LogReporter reports progress through glog.
type LogReporter struct{}

func (LogReporter) ByteStarted(position int) {
	glog.V(1).Infof("Calculating byte %d...", position)
}

func (LogReporter) ByteDone(result KeyByteResult) {
	glog.V(1).Infof("Best guess for index %d: %v", result.Position, result)
	if result.Undefined > 0 {
		glog.Warningf("Byte %d: %d undefined correlations excluded", result.Position, result.Undefined)
	}
}

type AttackOptions struct {
	// Workers bounds the number of hypotheses scored concurrently.
	// Defaults to runtime.NumCPU().
	Workers int
	// Reporter receives progress notifications. Defaults to LogReporter.
	Reporter Reporter
	// Positions restricts the attack to the given key byte positions.
	// All KeyBytes positions are attacked if empty.
	Positions []int
}

func validateAttack(traces TraceSet, model LeakageModel, positions []int) error {
	for _, b := range positions {
		if b < 0 || b >= KeyBytes {
			return &RangeError{What: "positions", Index: b, Value: b, Min: 0, Max: KeyBytes - 1}
		}
		if b >= len(traces) {
			return shapeErr("traces", "positions", KeyBytes, len(traces))
		}
		if b >= len(model) {
			return shapeErr("leakage model", "positions", KeyBytes, len(model))
		}
		if traces[b] == nil || model[b] == nil {
			return shapeErr(fmt.Sprintf("position %d", b), "matrices", 2, 0)
		}
		numTraces, numSamples := traces[b].Dims()
		hyps, modelTraces := model[b].Dims()
		if hyps != NumHypotheses {
			return shapeErr(fmt.Sprintf("leakage model[%d]", b), "hypotheses", NumHypotheses, hyps)
		}
		if modelTraces != numTraces {
			return shapeErr(fmt.Sprintf("leakage model[%d]", b), "traces", numTraces, modelTraces)
		}
		if numSamples == 0 {
			return shapeErr(fmt.Sprintf("traces[%d]", b), "samples", 1, 0)
		}
	}
	return nil
}

// RunCPA recovers the key byte at every position from the power traces and
// leakage model of that position. Every hypothesis is scored by its best
// correlation across all samples and the best scoring hypothesis wins. Ties
// go to the lowest hypothesis, and within a hypothesis to the lowest sample.
func RunCPA(ctx context.Context, traces TraceSet, model LeakageModel, opts AttackOptions) (*Result, error) {
	positions := opts.Positions
	if len(positions) == 0 {
		positions = make([]int, KeyBytes)
		for i := range positions {
			positions[i] = i
		}
	}
	if err := validateAttack(traces, model, positions); err != nil {
		return nil, err
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = LogReporter{}
	}

	res := &Result{Key: make([]byte, KeyBytes)}
	for _, b := range positions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reporter.ByteStarted(b)
		byteRes, err := attackByte(ctx, traces[b], model[b], opts.Workers)
		if err != nil {
			return nil, errors.Wrapf(err, "byte %d", b)
		}
		byteRes.Position = b
		reporter.ByteDone(*byteRes)
		res.Key[b] = byteRes.Key
		res.Bytes = append(res.Bytes, *byteRes)
	}
	return res, nil
}

// attackByte scores all hypotheses of one byte position.
func attackByte(ctx context.Context, power *mat.Dense, hw *mat.Dense, workers int) (*KeyByteResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Transpose the samples matrix such that samples are stored in the rows:
	//  _            _
	// |  | |      |  |
	// | T1 T2 ... TM |
	// |_ | |      | _|
	//
	// This lets us use RawRowView which is more efficient than copying a column
	// each time.
	T := mat.DenseCopyOf(power.T())

	scores := make([]HypothesisScore, NumHypotheses)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := 0; k < NumHypotheses; k++ {
		k := k
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scores[k] = scoreHypothesis(byte(k), hw.RawRowView(k), T)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &KeyByteResult{Location: -1, Scores: scores}
	var best HypothesisScore
	for _, s := range scores {
		res.Undefined += s.Undefined
		if s.better(best) {
			best = s
		}
	}
	if !best.Defined {
		return nil, ErrNoDefinedScore
	}
	res.Key = best.Key
	res.Correlation = best.Correlation
	res.Location = best.Location
	return res, nil
}

// scoreHypothesis correlates the expected leakage of one hypothesis with every
// sample index of T (#samples x #traces) and keeps the maximum.
func scoreHypothesis(key byte, hw []float64, T *mat.Dense) HypothesisScore {
	leak := newCentered(hw)
	numSamples, _ := T.Dims()

	best := HypothesisScore{Key: key, Location: -1}
	for i := 0; i < numSamples; i++ {
		pcc := leak.correlate(T.RawRowView(i))
		if IsUndefined(pcc) {
			best.Undefined++
			continue
		}
		if !best.Defined || pcc > best.Correlation {
			best.Correlation = pcc
			best.Location = i
			best.Defined = true
		}
	}
	return best
}
