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

// Realigns traces captured on a drifting clock to the edges of a reference
// clock.
package gocpa

import (
	"context"
	"fmt"
	"runtime"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

type ResampleOptions struct {
	// WindowSize is the number of samples copied around every reference edge.
	// Odd sizes round down to the next even size.
	WindowSize int
	// Threshold is the rising edge level of the target clocks.
	Threshold float64
	// Workers bounds the number of concurrently resampled traces in
	// ResampleAll. Defaults to runtime.NumCPU().
	Workers int
}

// ResampleStats makes the samples lost during resampling observable.
type ResampleStats struct {
	Traces int `json:"traces"`
	// DroppedEdges counts edges of either clock left without a partner because
	// the other clock had fewer edges.
	DroppedEdges int `json:"dropped_edges"`
	// OutOfRange counts output samples inside a window whose shifted source
	// index fell outside the trace. These are zero-filled.
	OutOfRange int `json:"out_of_range"`
}

func (s *ResampleStats) add(o ResampleStats) {
	s.Traces += o.Traces
	s.DroppedEdges += o.DroppedEdges
	s.OutOfRange += o.OutOfRange
}

func (s ResampleStats) String() string {
	return fmt.Sprintf("<Traces:%d, DroppedEdges:%d, OutOfRange:%d>",
		s.Traces, s.DroppedEdges, s.OutOfRange)
}

// edgeWindows walks the reference edges in order. Only the window of the
// current edge is ever active.
type edgeWindows struct {
	ref     []int
	offsets []int
	half    int
	cursor  int
}

// seek moves the cursor past every window whose right bound is at or before
// p and reports whether a window remains.
func (w *edgeWindows) seek(p int) bool {
	for w.cursor < len(w.ref) && w.ref[w.cursor]+w.half <= p {
		w.cursor++
	}
	return w.cursor < len(w.ref)
}

// source returns the index of trace to copy into output position p, or false
// if p lies before the current window. Bounds are signed, a window near the
// start of the trace simply begins at a negative position.
func (w *edgeWindows) source(p int) (int, bool) {
	left := w.ref[w.cursor] - w.half
	if p < left {
		return 0, false
	}
	return p + w.offsets[w.cursor], true
}

// Resample maps trace, captured alongside clock, onto the time base of the
// reference edges ref. For every pair of corresponding edges the samples in
// [ref-w/2, ref+w/2) are copied from the target trace shifted by the distance
// between the two edges. Positions outside every window, and positions whose
// shifted index falls outside the trace, are zero.
//
// When the clocks have a different number of edges the trailing edges of the
// longer one are ignored and counted in the returned stats.
func Resample(ref []int, trace, clock []float64, opts ResampleOptions) ([]float64, ResampleStats) {
	target := ClockEdges(clock, opts.Threshold)
	n := len(ref)
	if len(target) < n {
		n = len(target)
	}
	stats := ResampleStats{
		Traces:       1,
		DroppedEdges: len(ref) - n + len(target) - n,
	}

	w := edgeWindows{
		ref:     ref[:n],
		offsets: make([]int, n),
		half:    opts.WindowSize / 2,
	}
	for i := 0; i < n; i++ {
		w.offsets[i] = target[i] - ref[i]
	}

	out := make([]float64, len(trace))
	for p := range out {
		if !w.seek(p) {
			break
		}
		src, ok := w.source(p)
		if !ok {
			continue
		}
		if src < 0 || src >= len(trace) {
			stats.OutOfRange++
			continue
		}
		out[p] = trace[src]
	}
	return out, stats
}

// ReferenceEdges returns the rising edges of a single clock of the set, which
// becomes the time base for ResampleAll.
func ReferenceEdges(clocks TraceSet, position, trace int, threshold float64) ([]int, error) {
	if position < 0 || position >= len(clocks) {
		return nil, errors.Errorf("reference position %d out of range [0, %d)", position, len(clocks))
	}
	r, _ := clocks[position].Dims()
	if trace < 0 || trace >= r {
		return nil, errors.Errorf("reference trace %d out of range [0, %d)", trace, r)
	}
	edges := ClockEdges(clocks[position].RawRowView(trace), threshold)
	if len(edges) == 0 {
		return nil, errors.Errorf("reference clock [%d][%d] has no rising edges", position, trace)
	}
	return edges, nil
}

// ResampleAll resamples every trace of every byte position against its own
// clock. The result has the same shape as traces.
func ResampleAll(ctx context.Context, ref []int, traces, clocks TraceSet, opts ResampleOptions) (TraceSet, ResampleStats, error) {
	var total ResampleStats
	if len(clocks) != len(traces) {
		return nil, total, shapeErr("clocks", "positions", len(traces), len(clocks))
	}
	for b := range traces {
		tr, tc := traces[b].Dims()
		cr, cc := clocks[b].Dims()
		if cr != tr {
			return nil, total, shapeErr(fmt.Sprintf("clocks[%d]", b), "traces", tr, cr)
		}
		if cc != tc {
			return nil, total, shapeErr(fmt.Sprintf("clocks[%d]", b), "samples", tc, cc)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make(TraceSet, len(traces))
	stats := make([][]ResampleStats, len(traces))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := range traces {
		r, c := traces[b].Dims()
		out[b] = mat.NewDense(r, c, nil)
		stats[b] = make([]ResampleStats, r)
		for t := 0; t < r; t++ {
			b, t := b, t
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				row, s := Resample(ref, traces[b].RawRowView(t), clocks[b].RawRowView(t), opts)
				copy(out[b].RawRowView(t), row)
				stats[b][t] = s
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, total, err
	}

	for b := range stats {
		var pos ResampleStats
		for _, s := range stats[b] {
			pos.add(s)
		}
		if pos.DroppedEdges > 0 || pos.OutOfRange > 0 {
			glog.Warningf("Resampling byte %d lost data: %v", b, pos)
		} else {
			glog.V(1).Infof("Resampled byte %d: %v", b, pos)
		}
		total.add(pos)
	}
	return out, total, nil
}
