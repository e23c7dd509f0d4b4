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

// Synthetic acquisitions with a known key.
package gocpa

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type SynthOptions struct {
	Traces  int
	Samples int
	// Period of the device clock in samples. Must be even.
	Period int
	// Jitter is the largest random phase shift, in samples, of a trace's clock.
	// Values of Period/2 or more are clamped to Period/2-1 so every trace
	// sees the same sequence of edges.
	Jitter int
	// LeakEdge is the clock edge right after which the S-box output leaks.
	LeakEdge int
	// Noise is the standard deviation of the gaussian measurement noise.
	Noise float64
	// Baseline is added to every power sample.
	Baseline float64
}

func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		Traces:   100,
		Samples:  400,
		Period:   8,
		Jitter:   3,
		LeakEdge: 10,
		Noise:    0.5,
		Baseline: 1.0,
	}
}

// squareClock returns a clock that is low for the first half of every period,
// shifted right by phase samples.
func squareClock(n, period, phase int) []float64 {
	clock := make([]float64, n)
	for s := range clock {
		if ((s-phase)%period+period)%period >= period/2 {
			clock[s] = 1
		}
	}
	return clock
}

// Synthesize builds a dataset that leaks HW(Sbox[pt[b] ^ key[b]]) one sample
// after edge LeakEdge of every trace's clock. Each key byte position gets its
// own independent set of traces, all positions share the plaintexts. The same
// rng state produces the same dataset.
func Synthesize(key []byte, opts SynthOptions, rng *rand.Rand) *Dataset {
	if opts.Jitter >= opts.Period/2 {
		opts.Jitter = opts.Period/2 - 1
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}

	ds := &Dataset{
		ClearText: make(ClearText, opts.Traces),
		Traces:    make(TraceSet, KeyBytes),
		Clocks:    make(TraceSet, KeyBytes),
	}
	for t := range ds.ClearText {
		ds.ClearText[t] = make([]byte, KeyBytes)
		rng.Read(ds.ClearText[t])
	}

	for b := 0; b < KeyBytes; b++ {
		power := make([]float64, 0, opts.Traces*opts.Samples)
		clocks := make([]float64, 0, opts.Traces*opts.Samples)
		for t := 0; t < opts.Traces; t++ {
			clock := squareClock(opts.Samples, opts.Period, rng.Intn(opts.Jitter+1))
			trace := make([]float64, opts.Samples)
			for s := range trace {
				trace[s] = opts.Baseline + opts.Noise*rng.NormFloat64()
			}
			edges := ClockEdges(clock, DefaultClockThreshold)
			if b < len(key) && opts.LeakEdge < len(edges) && edges[opts.LeakEdge]+1 < len(trace) {
				trace[edges[opts.LeakEdge]+1] += float64(HammingWeight(Sbox[ds.ClearText[t][b]^key[b]]))
			}
			power = append(power, trace...)
			clocks = append(clocks, clock...)
		}
		ds.Traces[b] = mat.NewDense(opts.Traces, opts.Samples, power)
		ds.Clocks[b] = mat.NewDense(opts.Traces, opts.Samples, clocks)
	}
	return ds
}
